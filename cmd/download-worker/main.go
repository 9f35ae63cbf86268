// Package main is the entrypoint for the download worker. It consumes
// format references from the download queue, streams each media file from
// its source, and uploads it to blob storage.
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
	"github.com/pimentellima/smulti/internal/blob"
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
		slog.Error("download worker failed", "error", err)
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

	downloadQueue := queue.New(redisClient, cfg.Queue.DownloadQueue, queue.Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		WaitTime:          cfg.Queue.WaitTime,
		MaxReceiveCount:   cfg.Queue.MaxReceiveCount,
	})

	blobStore, err := blob.NewMinioStore(cfg.Blob)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	w := worker.NewDownload(
		store.NewPostgresStore(pool),
		downloadQueue,
		resolver.NewYtDlp(cfg.Resolver),
		blobStore,
		cfg.Queue.BatchSize,
	)

	slog.Info("download worker started", "queue", cfg.Queue.DownloadQueue)
	return w.Run(ctx)
}
