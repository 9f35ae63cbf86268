package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pimentellima/smulti/internal/config"
)

const bestStreamAttempts = 3

// YtDlp resolves media through the yt-dlp binary.
type YtDlp struct {
	binPath    string
	timeout    time.Duration
	cookieFile string
}

// NewYtDlp creates a resolver from config.
func NewYtDlp(cfg config.ResolverConfig) *YtDlp {
	return &YtDlp{
		binPath:    cfg.BinPath,
		timeout:    cfg.Timeout,
		cookieFile: cfg.CookieFile,
	}
}

func (r *YtDlp) Resolve(ctx context.Context, url string) (*Resolution, error) {
	out, err := r.run(ctx, "-J", "--no-warnings", url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ErrResolution, err)
	}

	return parseInfo(&info), nil
}

// BestStreamURL asks yt-dlp for the direct URL of the best combined
// audio+video stream. The retry budget is internal; callers see a single
// success or failure.
func (r *YtDlp) BestStreamURL(ctx context.Context, sourceURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < bestStreamAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		out, err := r.run(ctx, "-f", "bestvideo+bestaudio/best", "--get-url", "--no-warnings", sourceURL)
		if err != nil {
			lastErr = err
			continue
		}

		streamURL := strings.TrimSpace(string(out))
		if streamURL == "" {
			lastErr = fmt.Errorf("empty stream URL")
			continue
		}
		// Separate video+audio formats print one URL per line; take the first.
		if i := strings.IndexByte(streamURL, '\n'); i >= 0 {
			streamURL = streamURL[:i]
		}
		return streamURL, nil
	}
	return "", fmt.Errorf("%w: %v", ErrResolution, lastErr)
}

func (r *YtDlp) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.cookieFile != "" {
		args = append([]string{"--cookies", r.cookieFile}, args...)
	}
	cmd := exec.CommandContext(ctx, r.binPath, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, stderr.String())
	}
	return out.Bytes(), nil
}

type ytdlpInfo struct {
	Title     string        `json:"title"`
	Thumbnail string        `json:"thumbnail"`
	Formats   []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID   string   `json:"format_id"`
	URL        string   `json:"url"`
	Ext        string   `json:"ext"`
	Filesize   *float64 `json:"filesize"`
	Acodec     *string  `json:"acodec"`
	Vcodec     *string  `json:"vcodec"`
	Language   *string  `json:"language"`
	FormatNote *string  `json:"format_note"`
	Tbr        *float64 `json:"tbr"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
}

func parseInfo(info *ytdlpInfo) *Resolution {
	res := &Resolution{
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Formats:   make([]FormatInfo, 0, len(info.Formats)),
	}

	for _, f := range info.Formats {
		if f.URL == "" || f.FormatID == "" {
			continue
		}
		fi := FormatInfo{
			FormatID:   f.FormatID,
			URL:        f.URL,
			Ext:        f.Ext,
			Acodec:     f.Acodec,
			Vcodec:     f.Vcodec,
			Language:   f.Language,
			FormatNote: f.FormatNote,
		}
		if f.Filesize != nil {
			mb := math.Round(*f.Filesize/1024/1024*100) / 100
			fi.Filesize = &mb
		}
		if f.Tbr != nil {
			tbr := strconv.FormatFloat(*f.Tbr, 'f', -1, 64)
			fi.Tbr = &tbr
		}
		if f.Width > 0 && f.Height > 0 {
			resolution := fmt.Sprintf("%dx%d", f.Width, f.Height)
			fi.Resolution = &resolution
		}
		res.Formats = append(res.Formats, fi)
	}
	return res
}
