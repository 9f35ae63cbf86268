// Package main is the entrypoint for the smulti API server. Besides the
// HTTP surface it hosts the dispatcher sweep and the DLQ reaper, which
// need exactly one instance each.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pimentellima/smulti/internal/api"
	"github.com/pimentellima/smulti/internal/api/handler"
	"github.com/pimentellima/smulti/internal/api/response"
	"github.com/pimentellima/smulti/internal/config"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisClient, err := queue.NewClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	queueOpts := queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		WaitTime:          cfg.Queue.WaitTime,
		MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
	}
	processQueue := queue.New(redisClient, cfg.Queue.ProcessQueue, queueOpts)
	downloadQueue := queue.New(redisClient, cfg.Queue.DownloadQueue, queueOpts)

	pgStore := store.NewPostgresStore(pool)

	deps := api.Dependencies{
		HealthHandler:        healthHandler(pgStore, processQueue),
		SubmitJobsHandler:    handler.NewSubmitJobsHandler(pgStore, processQueue),
		GetJobHandler:        handler.NewGetJobHandler(pgStore),
		RetryJobHandler:      handler.NewRetryJobHandler(pgStore, processQueue),
		StartDownloadHandler: handler.NewStartDownloadHandler(pgStore, downloadQueue),
	}
	router := api.NewRouter(deps)

	dispatcher := worker.NewDispatcher(pgStore, processQueue,
		cfg.Queue.ConcurrentJobs, cfg.Queue.DispatchInterval)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("dispatcher stopped", "error", err)
		}
	}()

	reaper := worker.NewDLQReaper(pgStore, processQueue, downloadQueue, cfg.Queue.DispatchInterval)
	go func() {
		if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("dlq reaper stopped", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and queue connectivity.
func healthHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"queue":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["queue"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
