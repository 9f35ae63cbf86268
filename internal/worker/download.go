package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/blob"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/resolver"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

// contentTypes maps format extensions to the content type tagged on the
// uploaded object.
var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
	"3gp":  "video/3gpp",
	"m4a":  "audio/mp4",
	"mp3":  "audio/mpeg",
	"opus": "audio/ogg",
	"ogg":  "audio/ogg",
	"wav":  "audio/wav",
}

func contentTypeForExt(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// downloadKey is the deterministic object key for a format. Retried
// uploads land on the same key and simply overwrite.
func downloadKey(id uuid.UUID, ext string) string {
	return fmt.Sprintf("downloads/%s.%s", id, ext)
}

// Download consumes format references from the download queue, pipes each
// format's media stream into blob storage, and records the retrievable URL
// in the status store.
type Download struct {
	store     store.Store
	queue     queue.Queue
	resolver  resolver.Resolver
	blob      blob.Store
	client    *http.Client
	batchSize int
}

func NewDownload(s store.Store, q queue.Queue, r resolver.Resolver, b blob.Store, batchSize int) *Download {
	return &Download{
		store:    s,
		queue:    q,
		resolver: r,
		blob:     b,
		// No client-level timeout: media transfers can legitimately take a
		// long time and are bounded by the worker context instead.
		client:    &http.Client{},
		batchSize: batchSize,
	}
}

// Run consumes until the context is cancelled.
func (w *Download) Run(ctx context.Context) error {
	slog.Info("download worker started", "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("download worker stopping")
			return ctx.Err()
		default:
		}

		msgs, err := w.queue.Receive(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("receive from download queue", "error", err)
			sleepCtx(ctx, receiveBackoff)
			continue
		}

		for _, msg := range msgs {
			out := w.processMessage(ctx, msg.Body)
			out.log("format", msg.Body)
			if out.ack() {
				if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
					slog.Error("acknowledge format message", "body", msg.Body, "error", err)
				}
			}
		}
	}
}

func (w *Download) processMessage(ctx context.Context, body string) outcome {
	formatID, err := uuid.Parse(body)
	if err != nil {
		return outcome{kind: outcomeSkip, note: "invalid format reference", err: err}
	}

	format, err := w.store.GetFormat(ctx, formatID)
	if errors.Is(err, store.ErrNotFound) {
		return outcome{kind: outcomeSkip, note: "format not found"}
	}
	if err != nil {
		return outcome{kind: outcomeInfra, note: "load format", err: err}
	}

	if out, ok := w.claim(ctx, format); !ok {
		return out
	}

	downloadURL, err := w.transfer(ctx, format)
	if err != nil {
		return w.fail(ctx, formatID, "transfer media", err)
	}

	err = w.store.UpdateFormatStatus(ctx, formatID, models.FormatFinishedDownloading, store.WithDownloadURL(downloadURL))
	if err != nil {
		return outcome{kind: outcomeInfra, note: "record download URL", err: err}
	}

	return outcome{kind: outcomeOK, note: downloadURL}
}

// transfer resolves the best stream for the format's source and pipes it
// straight into blob storage: read chunk, write chunk, no full in-memory
// buffering.
func (w *Download) transfer(ctx context.Context, format *models.Format) (string, error) {
	streamURL, err := w.resolver.BestStreamURL(ctx, format.URL)
	if err != nil {
		return "", fmt.Errorf("resolve stream: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return "", fmt.Errorf("build stream request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	key := downloadKey(format.ID, format.Ext)
	downloadURL, err := w.blob.PutStream(ctx, key, resp.Body, contentTypeForExt(format.Ext))
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return downloadURL, nil
}

// claim mirrors the discovery claim rules: resume a row stuck in
// downloading from a crashed delivery, skip a terminal one.
func (w *Download) claim(ctx context.Context, format *models.Format) (outcome, bool) {
	err := w.store.ClaimFormat(ctx, format.ID, models.FormatPending, models.FormatDownloading)
	if err == nil {
		return outcome{}, true
	}
	if errors.Is(err, store.ErrConflict) {
		current, getErr := w.store.GetFormat(ctx, format.ID)
		if getErr != nil {
			return outcome{kind: outcomeInfra, note: "re-check format status", err: getErr}, false
		}
		if current.Status == models.FormatDownloading {
			return outcome{}, true
		}
		return outcome{kind: outcomeSkip, note: "format already " + string(current.Status)}, false
	}
	if errors.Is(err, store.ErrNotFound) {
		return outcome{kind: outcomeSkip, note: "format not found"}, false
	}
	return outcome{kind: outcomeInfra, note: "claim format", err: err}, false
}

func (w *Download) fail(ctx context.Context, formatID uuid.UUID, note string, cause error) outcome {
	if err := w.store.UpdateFormatStatus(ctx, formatID, models.FormatErrorDownloading); err != nil {
		return outcome{kind: outcomeInfra, note: note, err: errors.Join(cause, err)}
	}
	return outcome{kind: outcomeError, note: note, err: cause}
}
