package models

import (
	"time"

	"github.com/google/uuid"
)

// FormatStatus is the lifecycle state of a single downloadable format.
type FormatStatus string

const (
	FormatPending             FormatStatus = "pending"
	FormatDownloading         FormatStatus = "downloading"
	FormatFinishedDownloading FormatStatus = "finished-downloading"
	FormatErrorDownloading    FormatStatus = "error-downloading"
)

var formatTransitions = map[FormatStatus][]FormatStatus{
	FormatPending:     {FormatDownloading},
	FormatDownloading: {FormatFinishedDownloading, FormatErrorDownloading},
}

// CanTransition reports whether a format may move from its current status
// to the given one. Re-applying the same status is allowed.
func (s FormatStatus) CanTransition(to FormatStatus) bool {
	if s == to {
		return true
	}
	for _, next := range formatTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s FormatStatus) Terminal() bool {
	return s == FormatFinishedDownloading || s == FormatErrorDownloading
}

// Format is one encoding/quality variant of a job's media. Rows are
// inserted in bulk by the discovery worker in the same transaction as the
// job's finished-processing transition. DownloadURL is set if and only if
// the status is finished-downloading.
type Format struct {
	ID          uuid.UUID    `db:"id"           json:"id"`
	FormatID    string       `db:"format_id"    json:"format_id"`
	JobID       uuid.UUID    `db:"job_id"       json:"job_id"`
	Ext         string       `db:"ext"          json:"ext"`
	Resolution  *string      `db:"resolution"   json:"resolution,omitempty"`
	Acodec      *string      `db:"acodec"       json:"acodec,omitempty"`
	Vcodec      *string      `db:"vcodec"       json:"vcodec,omitempty"`
	Filesize    *float64     `db:"filesize"     json:"filesize,omitempty"` // megabytes
	Tbr         *string      `db:"tbr"          json:"tbr,omitempty"`
	URL         string       `db:"url"          json:"url"` // source stream URL, may expire
	Language    *string      `db:"language"     json:"language,omitempty"`
	FormatNote  *string      `db:"format_note"  json:"format_note,omitempty"`
	Status      FormatStatus `db:"status"       json:"status"`
	DownloadURL *string      `db:"download_url" json:"download_url,omitempty"`
	CreatedAt   time.Time    `db:"created_at"   json:"created_at"`
}
