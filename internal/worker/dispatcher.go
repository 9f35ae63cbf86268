package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/store"
)

// minPendingAge keeps the dispatcher from racing the enqueue that happens
// at submission time: only pending jobs this old are considered dropped
// and re-sent.
const minPendingAge = time.Minute

// Dispatcher periodically sweeps pending jobs whose queue reference may
// have been lost and re-enqueues them, keeping the number of in-queue
// items under the concurrent job limit. Duplicate enqueues are harmless:
// the conditional claim makes re-processing a no-op.
type Dispatcher struct {
	store    store.Store
	queue    queue.Queue
	limit    int
	interval time.Duration
}

func NewDispatcher(s store.Store, q queue.Queue, limit int, interval time.Duration) *Dispatcher {
	return &Dispatcher{store: s, queue: q, limit: limit, interval: interval}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher started", "interval", d.interval, "limit", d.limit)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := d.sweep(ctx); err != nil {
				slog.Error("dispatch sweep", "error", err)
			}
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) error {
	depth, err := d.queue.Len(ctx)
	if err != nil {
		return fmt.Errorf("queue depth: %w", err)
	}

	budget := d.limit - int(depth)
	if budget <= 0 {
		return nil
	}

	jobs, err := d.store.ListStalePendingJobs(ctx, minPendingAge, budget)
	if err != nil {
		return fmt.Errorf("list pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID.String())
	}
	if err := d.queue.SendBatch(ctx, ids); err != nil {
		return fmt.Errorf("enqueue jobs: %w", err)
	}

	slog.Info("re-enqueued stale pending jobs", "count", len(ids))
	return nil
}
