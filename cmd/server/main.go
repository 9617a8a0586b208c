package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/api"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/blob"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/bus"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/config"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/maintenance"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/queue"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/upload"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "open database", err)
	}
	defer store.Close()

	blobStore, err := blob.NewS3(ctx, blob.S3Options{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		Bucket:          cfg.S3.Bucket,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		UsePathStyle:    cfg.S3.UsePathStyle,
		PublicBaseURL:   cfg.S3.PublicBaseURL,
	})
	if err != nil {
		fatal(logger, "open blob store", err)
	}

	// The event bus is optional; without NATS_URL the pipeline runs locally.
	var publisher *bus.Client
	if cfg.NATSURL != "" {
		publisher, err = bus.Connect(cfg.NATSURL, cfg.DoneSubject, cfg.RegisteredSubject, logger)
		if err != nil {
			fatal(logger, "connect to nats", err)
		}
		defer publisher.Close()
	}

	worker := queue.NewWorker(blobStore, cfg.JPEGQuality, cfg.StoreTimeout, logger)

	var donePub queue.Publisher
	var registeredPub upload.RegisteredPublisher
	if publisher != nil {
		donePub = publisher
		registeredPub = publisher
	}

	jobs := queue.New(cfg.QueueWorkers, worker.Process, store, donePub, logger)
	jobs.Start(ctx)
	logger.Info("derivative queue started", "ceiling", jobs.Ceiling())

	orch := upload.New(blobStore, store, jobs, registeredPub, upload.Options{
		Bucket:       cfg.S3.Bucket,
		Sizes:        cfg.Sizes,
		SignTTL:      cfg.SignTTL,
		PartTimeout:  cfg.PartProxyTimeout,
		MaxPartSize:  cfg.MaxPartSize,
		AllowedTypes: cfg.AllowedContentTypes,
		Logger:       logger,
	})

	regen := maintenance.New(store, jobs, cfg.Sizes, cfg.RegenBatchSize, logger)

	srv := api.NewServer(cfg.ServerAddr, orch, store, jobs, regen, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			fatal(logger, "http server", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	logger.Info("server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
