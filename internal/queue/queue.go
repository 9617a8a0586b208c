// Package queue schedules derivative-generation jobs. A single dispatcher
// goroutine owns the pending FIFO, the active count, and the per-photo
// progress map; workers only ever talk to it over channels.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/schema"
)

// ErrSaturated is returned by Add and AddSet when the intake buffer is
// exhausted. The caller logs it and leaves the photo PENDING for a later
// regeneration pass.
var ErrSaturated = errors.New("queue: intake buffer full")

const intakeBuffer = 8192

// Job is one derivative size for one photo. Jobs for a photo are always
// enqueued as a full size set; TotalSizes tells the aggregator how many
// distinct sizes to expect regardless of arrival order.
type Job struct {
	PhotoID    uuid.UUID
	FolderID   uuid.UUID
	SourceKey  string
	Filename   string
	Size       img.Size
	TotalSizes int
}

type result struct {
	job Job
	url string
	err error
}

// Snapshot is a point-in-time view of queue state.
type Snapshot struct {
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunFunc performs one job and returns the derivative's public URL.
type RunFunc func(ctx context.Context, job Job) (string, error)

// Recorder persists photo status transitions as jobs resolve. *db.Store
// satisfies it.
type Recorder interface {
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	FinishThumbnails(ctx context.Context, id uuid.UUID, urls map[string]string, status db.ThumbnailStatus) error
}

// Publisher emits a completion event per resolved photo.
type Publisher interface {
	PublishThumbnailDone(evt schema.ThumbnailDone)
}

type Queue struct {
	ceiling  int
	run      RunFunc
	recorder Recorder
	pub      Publisher
	logger   *slog.Logger

	enqueueCh chan []Job
	resultCh  chan result
	statusCh  chan chan Snapshot
	done      chan struct{}
}

// photoProgress tracks fan-in of the independent size jobs for one photo.
// Each size name resolves at most once: a size is either pending (enqueued or
// running) or resolved, and duplicate enqueues and duplicate results for a
// size already tracked are ignored. The photo finalizes only when every
// expected size name has resolved.
type photoProgress struct {
	folderID   uuid.UUID
	filename   string
	expected   int
	pending    map[string]bool
	resolved   map[string]bool
	failures   int
	urls       map[string]string
	results    []schema.SizeResult
	started    time.Time
	dispatched bool
}

// New builds a queue. ceiling <= 0 means one worker slot per usable CPU core,
// never fewer than one.
func New(ceiling int, run RunFunc, recorder Recorder, pub Publisher, logger *slog.Logger) *Queue {
	if ceiling <= 0 {
		ceiling = runtime.GOMAXPROCS(0)
	}
	if ceiling < 1 {
		ceiling = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ceiling:   ceiling,
		run:       run,
		recorder:  recorder,
		pub:       pub,
		logger:    logger,
		enqueueCh: make(chan []Job, intakeBuffer),
		resultCh:  make(chan result),
		statusCh:  make(chan chan Snapshot),
		done:      make(chan struct{}),
	}
}

// Ceiling reports the configured concurrency bound.
func (q *Queue) Ceiling() int { return q.ceiling }

// Start launches the dispatcher. It runs until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	go q.dispatch(ctx)
}

// Add enqueues a single job without blocking the caller.
func (q *Queue) Add(job Job) error {
	return q.AddSet([]Job{job})
}

// AddSet enqueues a photo's jobs as one unit: either the whole set is
// accepted or none of it is, so the aggregator never starts a photo with a
// partial size set.
func (q *Queue) AddSet(jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	select {
	case q.enqueueCh <- jobs:
		return nil
	default:
		return ErrSaturated
	}
}

// Status returns a snapshot reflecting state as of the last completed
// mutation the dispatcher has processed. After shutdown it returns a zero
// snapshot instead of blocking.
func (q *Queue) Status() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case q.statusCh <- reply:
	case <-q.done:
		return Snapshot{}
	}
	select {
	case st := <-reply:
		return st
	case <-q.done:
		return Snapshot{}
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	defer close(q.done)

	var (
		pending   []Job
		active    int
		completed int
		failed    int
		progress  = make(map[uuid.UUID]*photoProgress)
	)

	for {
		select {
		case <-ctx.Done():
			return

		case batch := <-q.enqueueCh:
			pending = q.admit(progress, pending, batch)

		case res := <-q.resultCh:
			active--
			if res.err != nil {
				failed++
			} else {
				completed++
			}
			q.settle(ctx, progress, res)

		case reply := <-q.statusCh:
			reply <- Snapshot{Queued: len(pending), Active: active, Completed: completed, Failed: failed}
		}

		for active < q.ceiling && len(pending) > 0 {
			job := pending[0]
			pending = pending[1:]
			pr := progress[job.PhotoID]
			first := pr != nil && !pr.dispatched
			if pr != nil {
				pr.dispatched = true
			}
			active++
			q.launch(ctx, job, first)
		}
	}
}

// admit folds a batch of jobs into the progress map and returns the extended
// FIFO. A size already pending or already resolved for its photo is a
// duplicate enqueue (regeneration racing in-flight jobs) and is dropped.
func (q *Queue) admit(progress map[uuid.UUID]*photoProgress, pending []Job, batch []Job) []Job {
	for _, job := range batch {
		pr, ok := progress[job.PhotoID]
		if !ok {
			pr = &photoProgress{
				folderID: job.FolderID,
				filename: job.Filename,
				expected: job.TotalSizes,
				pending:  make(map[string]bool),
				resolved: make(map[string]bool),
				urls:     make(map[string]string),
				started:  time.Now(),
			}
			progress[job.PhotoID] = pr
		}
		if job.TotalSizes > pr.expected {
			pr.expected = job.TotalSizes
		}
		if pr.pending[job.Size.Name] || pr.resolved[job.Size.Name] {
			q.logger.Debug("duplicate enqueue ignored",
				"photo_id", job.PhotoID, "size", job.Size.Name)
			continue
		}
		pr.pending[job.Size.Name] = true
		pending = append(pending, job)
	}
	return pending
}

func (q *Queue) launch(ctx context.Context, job Job, first bool) {
	go func() {
		if first {
			if err := q.recorder.MarkProcessing(ctx, job.PhotoID); err != nil {
				q.logger.Warn("mark processing failed", "photo_id", job.PhotoID, "err", err)
			}
		}

		url, err := q.runSafe(ctx, job)

		select {
		case q.resultCh <- result{job: job, url: url, err: err}:
		case <-ctx.Done():
		}
	}()
}

// runSafe converts a worker panic into a failure result so a codec fault
// never takes the dispatcher down.
func (q *Queue) runSafe(ctx context.Context, job Job) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return q.run(ctx, job)
}

// settle folds one result into the photo's progress entry and, once every
// expected size has resolved, persists the final row state and publishes the
// event. Results may arrive in any order.
func (q *Queue) settle(ctx context.Context, progress map[uuid.UUID]*photoProgress, res result) {
	pr, ok := progress[res.job.PhotoID]
	if !ok {
		q.logger.Warn("result for unknown photo", "photo_id", res.job.PhotoID, "size", res.job.Size.Name)
		return
	}
	size := res.job.Size.Name
	if !pr.pending[size] {
		q.logger.Warn("duplicate result ignored", "photo_id", res.job.PhotoID, "size", size)
		return
	}
	delete(pr.pending, size)
	pr.resolved[size] = true

	sr := schema.SizeResult{Size: size, Status: "processed", URL: res.url}
	if res.err != nil {
		pr.failures++
		sr.Status = "failed"
		sr.Error = res.err.Error()
		sr.FailureType = classifyFailure(res.err)
		q.logger.Error("derivative job failed",
			"photo_id", res.job.PhotoID, "size", size, "err", res.err)
	} else {
		pr.urls[size] = res.url
	}
	pr.results = append(pr.results, sr)

	if len(pr.pending) > 0 || len(pr.resolved) < pr.expected {
		return
	}
	delete(progress, res.job.PhotoID)

	status := db.ThumbnailCompleted
	urls := pr.urls
	if pr.failures > 0 {
		status = db.ThumbnailFailed
		urls = nil
	}

	evt := schema.ThumbnailDone{
		PhotoID:          res.job.PhotoID.String(),
		FolderID:         pr.folderID.String(),
		Filename:         pr.filename,
		Status:           string(status),
		TotalProcessed:   len(pr.results) - pr.failures,
		TotalFailed:      pr.failures,
		ProcessingTimeMs: time.Since(pr.started).Milliseconds(),
		Results:          pr.results,
		HappenedAt:       time.Now().Unix(),
	}

	// Record-store writes happen off the dispatcher goroutine so a slow
	// database never stalls job scheduling.
	go func(photoID uuid.UUID) {
		if err := q.recorder.FinishThumbnails(ctx, photoID, urls, status); err != nil {
			q.logger.Error("persist thumbnail outcome failed", "photo_id", photoID, "err", err)
		}
		if q.pub != nil {
			q.pub.PublishThumbnailDone(evt)
		}
	}(res.job.PhotoID)
}
