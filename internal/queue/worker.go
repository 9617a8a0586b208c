package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/blob"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/apperr"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/schema"
)

// Worker executes one derivative job: download the original, transcode (or
// synthesize a placeholder), upload the derivative, return its URL. It shares
// no mutable state with the dispatcher beyond the job payload and the store
// handle, which is safe for concurrent use.
type Worker struct {
	store        blob.Store
	quality      int
	storeTimeout time.Duration
	logger       *slog.Logger
}

func NewWorker(store blob.Store, quality int, storeTimeout time.Duration, logger *slog.Logger) *Worker {
	if quality <= 0 {
		quality = img.DefaultQuality
	}
	if storeTimeout <= 0 {
		storeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, quality: quality, storeTimeout: storeTimeout, logger: logger}
}

// Process implements RunFunc.
func (w *Worker) Process(ctx context.Context, job Job) (string, error) {
	data, err := w.fetchOriginal(ctx, job.SourceKey)
	if err != nil {
		return "", err
	}

	out, err := w.render(ctx, job, data)
	if err != nil {
		return "", err
	}

	key := img.DerivativeKey(job.FolderID.String(), job.PhotoID.String(), job.Filename, job.Size.Name)

	putCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
	defer cancel()
	if err := w.store.Put(putCtx, key, out, "image/jpeg"); err != nil {
		return "", apperr.Wrap(apperr.KindTransientStore, "upload derivative", err)
	}

	return w.store.URL(key), nil
}

func (w *Worker) fetchOriginal(ctx context.Context, key string) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, w.storeTimeout)
	defer cancel()

	obj, err := w.store.Get(getCtx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindSourceNotFound, "original missing from store", err)
		}
		return nil, apperr.Wrap(apperr.KindTransientStore, "fetch original", err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "read original", err)
	}
	return data, nil
}

// render produces the derivative bytes. Formats the transcoder cannot decode
// get a placeholder; so does a nominally decodable file that turns out to be
// corrupt, so one bad file never leaves its photo without a thumbnail.
func (w *Worker) render(ctx context.Context, job Job, data []byte) ([]byte, error) {
	if img.Decodable(job.Filename) {
		out, _, _, err := img.FitJPEG(ctx, data, job.Size.Width, job.Size.Height, w.quality)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "transcode cancelled", err)
		}
		w.logger.Warn("transcode failed, falling back to placeholder",
			"photo_id", job.PhotoID, "size", job.Size.Name, "err", err)
	}

	out, err := img.Placeholder(job.Filename, job.Size.Width, job.Size.Height)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCodec, "render placeholder", err)
	}
	return out, nil
}

// classifyFailure maps a job error onto the event taxonomy.
func classifyFailure(err error) schema.FailureType {
	switch apperr.KindOf(err) {
	case apperr.KindSourceNotFound, apperr.KindCodec:
		return schema.FailureTypePermanent
	case apperr.KindValidation:
		return schema.FailureTypeValidation
	default:
		return schema.FailureTypeRetryable
	}
}
