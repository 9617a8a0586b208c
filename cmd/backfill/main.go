// Command backfill re-enqueues derivative generation for photos whose
// thumbnails are missing or failed, then waits for the queue to drain.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/blob"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/config"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/maintenance"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/queue"
)

func main() {
	var (
		batch   = flag.Int("batch", 100, "photos per database page")
		limit   = flag.Int("limit", 0, "maximum photos to process, 0 for no cap")
		dryRun  = flag.Bool("dry-run", true, "report what would be enqueued without doing it")
		execute = flag.Bool("execute", false, "actually enqueue and process jobs")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *execute {
		*dryRun = false
	}

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

	worker := queue.NewWorker(blobStore, cfg.JPEGQuality, cfg.StoreTimeout, logger)
	jobs := queue.New(cfg.QueueWorkers, worker.Process, store, nil, logger)
	jobs.Start(ctx)

	regen := maintenance.New(store, jobs, cfg.Sizes, *batch, logger)

	pending, err := store.CountByStatus(ctx, db.ThumbnailPending)
	if err != nil {
		fatal(logger, "count pending photos", err)
	}
	failed, err := store.CountByStatus(ctx, db.ThumbnailFailed)
	if err != nil {
		fatal(logger, "count failed photos", err)
	}

	logger.Info("backfill starting",
		"pending", pending, "failed", failed,
		"batch", *batch, "limit", *limit, "dry_run", *dryRun, "ceiling", jobs.Ceiling())

	stats, err := regen.Run(ctx, *limit, *dryRun)
	if err != nil {
		fatal(logger, "regeneration pass", err)
	}
	logger.Info("backfill scan finished",
		"scanned", stats.Scanned, "enqueued", stats.Enqueued, "skipped", stats.Skipped)

	if *dryRun {
		return
	}

	// Wait for the queue to drain before exiting.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted before the queue drained")
			return
		case <-ticker.C:
			st := jobs.Status()
			if st.Queued == 0 && st.Active == 0 {
				logger.Info("backfill complete",
					"completed", st.Completed, "failed", st.Failed)
				return
			}
			logger.Info("draining queue",
				"queued", st.Queued, "active", st.Active,
				"completed", st.Completed, "failed", st.Failed)
		}
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
