package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/pkg/models"
)

// DLQReaper drains dead-lettered references and marks the corresponding
// rows with their error status, so work the queue gave up on is visible in
// the status store rather than silently stuck.
type DLQReaper struct {
	store         store.Store
	processQueue  queue.Queue
	downloadQueue queue.Queue
	interval      time.Duration
}

func NewDLQReaper(s store.Store, processQueue, downloadQueue queue.Queue, interval time.Duration) *DLQReaper {
	return &DLQReaper{
		store:         s,
		processQueue:  processQueue,
		downloadQueue: downloadQueue,
		interval:      interval,
	}
}

// Run drains both DLQs on a fixed interval until the context is cancelled.
func (r *DLQReaper) Run(ctx context.Context) error {
	slog.Info("dlq reaper started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dlq reaper stopping")
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *DLQReaper) drain(ctx context.Context) {
	for {
		body, ok, err := r.processQueue.PopDLQ(ctx)
		if err != nil {
			slog.Error("pop process dlq", "error", err)
			break
		}
		if !ok {
			break
		}
		r.markJobError(ctx, body)
	}

	for {
		body, ok, err := r.downloadQueue.PopDLQ(ctx)
		if err != nil {
			slog.Error("pop download dlq", "error", err)
			break
		}
		if !ok {
			break
		}
		r.markFormatError(ctx, body)
	}
}

// markJobError walks the job forward to error-processing. A dead-lettered
// job may still sit in pending if every delivery failed before claiming,
// so the claim step runs first to keep transitions forward-only.
func (r *DLQReaper) markJobError(ctx context.Context, body string) {
	jobID, err := uuid.Parse(body)
	if err != nil {
		slog.Warn("invalid job reference in dlq", "body", body)
		return
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		slog.Warn("load dead-lettered job", "job_id", jobID, "error", err)
		return
	}
	if job.Status.Terminal() {
		return
	}

	if job.Status == models.JobPending {
		if err := r.store.ClaimJob(ctx, jobID, models.JobPending, models.JobProcessing); err != nil &&
			!errors.Is(err, store.ErrConflict) {
			slog.Error("claim dead-lettered job", "job_id", jobID, "error", err)
			return
		}
	}

	if err := r.store.UpdateJobStatus(ctx, jobID, models.JobErrorProcessing); err != nil {
		slog.Error("mark dead-lettered job", "job_id", jobID, "error", err)
		return
	}
	slog.Info("dead-lettered job marked as error", "job_id", jobID)
}

func (r *DLQReaper) markFormatError(ctx context.Context, body string) {
	formatID, err := uuid.Parse(body)
	if err != nil {
		slog.Warn("invalid format reference in dlq", "body", body)
		return
	}

	format, err := r.store.GetFormat(ctx, formatID)
	if err != nil {
		slog.Warn("load dead-lettered format", "format_id", formatID, "error", err)
		return
	}
	if format.Status.Terminal() {
		return
	}

	if format.Status == models.FormatPending {
		if err := r.store.ClaimFormat(ctx, formatID, models.FormatPending, models.FormatDownloading); err != nil &&
			!errors.Is(err, store.ErrConflict) {
			slog.Error("claim dead-lettered format", "format_id", formatID, "error", err)
			return
		}
	}

	if err := r.store.UpdateFormatStatus(ctx, formatID, models.FormatErrorDownloading); err != nil {
		slog.Error("mark dead-lettered format", "format_id", formatID, "error", err)
		return
	}
	slog.Info("dead-lettered format marked as error", "format_id", formatID)
}
