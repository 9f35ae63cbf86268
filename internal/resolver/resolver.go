package resolver

import (
	"context"
	"errors"
)

// ErrResolution marks a source that cannot be resolved (invalid URL,
// region lock, removed video). It is a terminal business failure, not a
// transient condition worth retrying at the queue level.
var ErrResolution = errors.New("media resolution failed")

// FormatInfo describes one downloadable format discovered for a source.
type FormatInfo struct {
	FormatID   string
	URL        string
	Ext        string
	Filesize   *float64 // megabytes
	Acodec     *string
	Vcodec     *string
	Language   *string
	FormatNote *string
	Tbr        *string
	Resolution *string
}

// Resolution is the discovered metadata for a source URL.
type Resolution struct {
	Title     string
	Thumbnail string
	Formats   []FormatInfo
}

// Resolver inspects a source URL and reports available formats and
// streams. Implementations may fail or return partial data.
type Resolver interface {
	// Resolve discovers the title, thumbnail and candidate formats for a
	// source video URL.
	Resolve(ctx context.Context, url string) (*Resolution, error)
	// BestStreamURL resolves the best combined audio+video stream for a
	// format's underlying source. Retries are bounded and internal to the
	// call.
	BestStreamURL(ctx context.Context, sourceURL string) (string, error)
}
