package resolver

import (
	"encoding/json"
	"testing"
)

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func TestParseInfo_Fields(t *testing.T) {
	info := &ytdlpInfo{
		Title:     "Some Video",
		Thumbnail: "https://example/thumb.jpg",
		Formats: []ytdlpFormat{
			{
				FormatID:   "22",
				URL:        "https://example/stream/22",
				Ext:        "mp4",
				Filesize:   f64Ptr(11010048), // bytes
				Acodec:     strPtr("mp4a.40.2"),
				Vcodec:     strPtr("avc1.64001F"),
				Language:   strPtr("en"),
				FormatNote: strPtr("720p"),
				Tbr:        f64Ptr(1571.5),
				Width:      1280,
				Height:     720,
			},
		},
	}

	res := parseInfo(info)
	if res.Title != "Some Video" {
		t.Errorf("title = %q", res.Title)
	}
	if res.Thumbnail != "https://example/thumb.jpg" {
		t.Errorf("thumbnail = %q", res.Thumbnail)
	}
	if len(res.Formats) != 1 {
		t.Fatalf("got %d formats, want 1", len(res.Formats))
	}

	f := res.Formats[0]
	if f.FormatID != "22" || f.Ext != "mp4" {
		t.Errorf("format = %+v", f)
	}
	if f.Filesize == nil || *f.Filesize != 10.5 {
		t.Errorf("filesize = %v, want 10.5 MB", f.Filesize)
	}
	if f.Tbr == nil || *f.Tbr != "1571.5" {
		t.Errorf("tbr = %v, want 1571.5", f.Tbr)
	}
	if f.Resolution == nil || *f.Resolution != "1280x720" {
		t.Errorf("resolution = %v, want 1280x720", f.Resolution)
	}
}

func TestParseInfo_OptionalFieldsAbsent(t *testing.T) {
	info := &ytdlpInfo{
		Title: "Audio Only",
		Formats: []ytdlpFormat{
			{FormatID: "140", URL: "https://example/stream/140", Ext: "m4a"},
		},
	}

	res := parseInfo(info)
	if len(res.Formats) != 1 {
		t.Fatalf("got %d formats, want 1", len(res.Formats))
	}

	f := res.Formats[0]
	if f.Filesize != nil || f.Tbr != nil || f.Resolution != nil {
		t.Errorf("expected nil optional fields, got %+v", f)
	}
}

func TestParseInfo_SkipsUnusableFormats(t *testing.T) {
	info := &ytdlpInfo{
		Formats: []ytdlpFormat{
			{FormatID: "sb0", URL: ""}, // storyboard, no stream URL
			{FormatID: "", URL: "https://example/stream"},
			{FormatID: "18", URL: "https://example/stream/18", Ext: "mp4"},
		},
	}

	res := parseInfo(info)
	if len(res.Formats) != 1 {
		t.Fatalf("got %d formats, want 1", len(res.Formats))
	}
	if res.Formats[0].FormatID != "18" {
		t.Errorf("kept format %q, want 18", res.Formats[0].FormatID)
	}
}

func TestParseInfo_ResolutionRequiresBothDimensions(t *testing.T) {
	info := &ytdlpInfo{
		Formats: []ytdlpFormat{
			{FormatID: "a", URL: "u", Width: 1920},
			{FormatID: "b", URL: "u", Height: 1080},
		},
	}

	res := parseInfo(info)
	for _, f := range res.Formats {
		if f.Resolution != nil {
			t.Errorf("format %s: resolution = %q, want nil", f.FormatID, *f.Resolution)
		}
	}
}

func TestYtdlpInfo_DecodesMetadataDump(t *testing.T) {
	raw := `{
		"title": "clip",
		"thumbnail": "https://example/t.jpg",
		"formats": [
			{"format_id": "22", "url": "https://example/s", "ext": "mp4", "filesize": 1048576, "tbr": 96, "width": 640, "height": 360}
		]
	}`

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res := parseInfo(&info)
	if len(res.Formats) != 1 {
		t.Fatalf("got %d formats, want 1", len(res.Formats))
	}
	f := res.Formats[0]
	if f.Filesize == nil || *f.Filesize != 1 {
		t.Errorf("filesize = %v, want 1 MB", f.Filesize)
	}
	if f.Tbr == nil || *f.Tbr != "96" {
		t.Errorf("tbr = %v, want 96", f.Tbr)
	}
}
