package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/resolver"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

const receiveBackoff = 5 * time.Second

// Discovery consumes job references from the process queue, resolves each
// source into its downloadable formats, and records the result in the
// status store. Multiple instances may run concurrently against the same
// queue.
type Discovery struct {
	store     store.Store
	queue     queue.Queue
	resolver  resolver.Resolver
	batchSize int
}

func NewDiscovery(s store.Store, q queue.Queue, r resolver.Resolver, batchSize int) *Discovery {
	return &Discovery{store: s, queue: q, resolver: r, batchSize: batchSize}
}

// Run consumes until the context is cancelled. Failures inside a single
// unit of work never escape the per-message boundary; the loop always
// moves on to the next message.
func (w *Discovery) Run(ctx context.Context) error {
	slog.Info("discovery worker started", "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("discovery worker stopping")
			return ctx.Err()
		default:
		}

		msgs, err := w.queue.Receive(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("receive from process queue", "error", err)
			sleepCtx(ctx, receiveBackoff)
			continue
		}

		for _, msg := range msgs {
			out := w.processMessage(ctx, msg.Body)
			out.log("job", msg.Body)
			if out.ack() {
				if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
					slog.Error("acknowledge job message", "body", msg.Body, "error", err)
				}
			}
		}
	}
}

func (w *Discovery) processMessage(ctx context.Context, body string) outcome {
	jobID, err := uuid.Parse(body)
	if err != nil {
		// A reference that never parses is permanently invalid; requeueing
		// it would poison the queue.
		return outcome{kind: outcomeSkip, note: "invalid job reference", err: err}
	}

	job, err := w.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return outcome{kind: outcomeSkip, note: "job not found"}
	}
	if err != nil {
		return outcome{kind: outcomeInfra, note: "load job", err: err}
	}

	if out, ok := w.claim(ctx, job); !ok {
		return out
	}

	res, err := w.resolver.Resolve(ctx, job.URL)
	if err != nil {
		return w.fail(ctx, jobID, "resolve source", err)
	}

	formats := make([]*models.Format, 0, len(res.Formats))
	for _, fi := range res.Formats {
		formats = append(formats, formatFromInfo(jobID, fi))
	}

	if err := w.store.FinishJobProcessing(ctx, jobID, optional(res.Title), optional(res.Thumbnail), formats); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return outcome{kind: outcomeSkip, note: "job state changed mid-processing", err: err}
		}
		return w.fail(ctx, jobID, "persist discovered formats", err)
	}

	return outcome{kind: outcomeOK, note: fmt.Sprintf("%d formats discovered", len(formats))}
}

// claim takes ownership of the job. A conflict against a row already in
// processing means a previous delivery of this message crashed mid-flight;
// the queue's single-live-delivery contract makes it safe to resume. A
// conflict against a terminal row means the work is already done.
func (w *Discovery) claim(ctx context.Context, job *models.Job) (outcome, bool) {
	err := w.store.ClaimJob(ctx, job.ID, models.JobPending, models.JobProcessing)
	if err == nil {
		return outcome{}, true
	}
	if errors.Is(err, store.ErrConflict) {
		current, getErr := w.store.GetJob(ctx, job.ID)
		if getErr != nil {
			return outcome{kind: outcomeInfra, note: "re-check job status", err: getErr}, false
		}
		if current.Status == models.JobProcessing {
			return outcome{}, true
		}
		return outcome{kind: outcomeSkip, note: "job already " + string(current.Status)}, false
	}
	if errors.Is(err, store.ErrNotFound) {
		return outcome{kind: outcomeSkip, note: "job not found"}, false
	}
	return outcome{kind: outcomeInfra, note: "claim job", err: err}, false
}

func (w *Discovery) fail(ctx context.Context, jobID uuid.UUID, note string, cause error) outcome {
	if err := w.store.UpdateJobStatus(ctx, jobID, models.JobErrorProcessing); err != nil {
		// The error status itself could not be written; leave the message
		// unacknowledged so redelivery retries the whole unit.
		return outcome{kind: outcomeInfra, note: note, err: errors.Join(cause, err)}
	}
	return outcome{kind: outcomeError, note: note, err: cause}
}

func formatFromInfo(jobID uuid.UUID, fi resolver.FormatInfo) *models.Format {
	return &models.Format{
		FormatID:   fi.FormatID,
		JobID:      jobID,
		Ext:        fi.Ext,
		Resolution: fi.Resolution,
		Acodec:     fi.Acodec,
		Vcodec:     fi.Vcodec,
		Filesize:   fi.Filesize,
		Tbr:        fi.Tbr,
		URL:        fi.URL,
		Language:   fi.Language,
		FormatNote: fi.FormatNote,
		Status:     models.FormatPending,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
