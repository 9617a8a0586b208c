// Package maintenance re-enqueues derivative jobs for photos whose originals
// uploaded fine but whose thumbnails are missing or failed.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/queue"
)

// PhotoLister pages through retry-eligible photos. *db.Store satisfies it.
type PhotoLister interface {
	ListRetryable(ctx context.Context, limit int, after uuid.UUID) ([]db.Photo, error)
}

// Enqueuer accepts a photo's derivative jobs as one unit. *queue.Queue
// satisfies it.
type Enqueuer interface {
	AddSet(jobs []queue.Job) error
}

// RunStats summarizes one regeneration pass.
type RunStats struct {
	Scanned  int `json:"scanned"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

type Regenerator struct {
	photos    PhotoLister
	jobs      Enqueuer
	sizes     []img.Size
	batchSize int
	logger    *slog.Logger
}

func New(photos PhotoLister, jobs Enqueuer, sizes []img.Size, batchSize int, logger *slog.Logger) *Regenerator {
	if batchSize <= 0 {
		batchSize = 100
	}
	if len(sizes) == 0 {
		sizes = img.DefaultSizes()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Regenerator{photos: photos, jobs: jobs, sizes: sizes, batchSize: batchSize, logger: logger}
}

// Run scans retry-eligible photos in keyset batches and queues the full size
// set for each. limit <= 0 means no cap. In dry-run mode nothing is enqueued;
// the stats report what a real pass would do. A photo that cannot be enqueued
// (saturated queue) counts as skipped and is picked up by the next pass.
func (r *Regenerator) Run(ctx context.Context, limit int, dryRun bool) (RunStats, error) {
	var stats RunStats
	var after uuid.UUID

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch := r.batchSize
		if limit > 0 && limit-stats.Scanned < batch {
			batch = limit - stats.Scanned
		}
		if batch <= 0 {
			return stats, nil
		}

		photos, err := r.photos.ListRetryable(ctx, batch, after)
		if err != nil {
			return stats, fmt.Errorf("list retryable photos: %w", err)
		}
		if len(photos) == 0 {
			return stats, nil
		}

		for _, photo := range photos {
			stats.Scanned++
			after = photo.ID
			if dryRun {
				stats.Enqueued++
				continue
			}
			if err := r.enqueue(photo); err != nil {
				r.logger.Warn("regeneration enqueue failed",
					"photo_id", photo.ID, "err", err)
				stats.Skipped++
				continue
			}
			stats.Enqueued++
		}

		if len(photos) < batch {
			return stats, nil
		}
	}
}

func (r *Regenerator) enqueue(photo db.Photo) error {
	jobs := make([]queue.Job, len(r.sizes))
	for i, size := range r.sizes {
		jobs[i] = queue.Job{
			PhotoID:    photo.ID,
			FolderID:   photo.FolderID,
			SourceKey:  photo.StorageKey,
			Filename:   photo.Filename,
			Size:       size,
			TotalSizes: len(r.sizes),
		}
	}
	return r.jobs.AddSet(jobs)
}
