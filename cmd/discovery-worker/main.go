// Package main is the entrypoint for the discovery worker. It consumes job
// references from the process queue and resolves each source URL into its
// downloadable formats.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pimentellima/smulti/internal/config"
	"github.com/pimentellima/smulti/internal/queue"
	"github.com/pimentellima/smulti/internal/resolver"
	"github.com/pimentellima/smulti/internal/store"
	"github.com/pimentellima/smulti/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("discovery worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	redisClient, err := queue.NewClient(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	processQueue := queue.New(redisClient, cfg.Queue.ProcessQueue, queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		WaitTime:          cfg.Queue.WaitTime,
		MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
	})

	w := worker.NewDiscovery(
		store.NewPostgresStore(pool),
		processQueue,
		resolver.NewYtDlp(cfg.Resolver),
		cfg.Queue.BatchSize,
	)

	slog.Info("discovery worker started", "queue", cfg.Queue.ProcessQueue)
	return w.Run(ctx)
}
