// Package upload drives chunked multipart uploads against the blob store and
// registers finished uploads as photos, queueing their derivative jobs.
package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/blob"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/queue"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/apperr"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/schema"
)

// PhotoStore is the slice of db.Store the orchestrator needs.
type PhotoStore interface {
	Folder(ctx context.Context, id uuid.UUID) (*db.Folder, error)
	CreatePhoto(ctx context.Context, p *db.Photo) error
}

// Enqueuer accepts a photo's derivative jobs as one unit. *queue.Queue
// satisfies it.
type Enqueuer interface {
	AddSet(jobs []queue.Job) error
}

// RegisteredPublisher announces newly registered photos. Optional.
type RegisteredPublisher interface {
	PublishPhotoRegistered(evt schema.PhotoRegistered)
}

type Options struct {
	Bucket       string
	Sizes        []img.Size
	SignTTL      time.Duration
	PartTimeout  time.Duration
	MaxPartSize  int64
	AllowedTypes []string
	Logger       *slog.Logger
}

type Orchestrator struct {
	store       blob.Store
	photos      PhotoStore
	jobs        Enqueuer
	pub         RegisteredPublisher
	bucket      string
	sizes       []img.Size
	signTTL     time.Duration
	partTimeout time.Duration
	maxPart     int64
	allowed     []string
	logger      *slog.Logger
}

func New(store blob.Store, photos PhotoStore, jobs Enqueuer, pub RegisteredPublisher, opts Options) *Orchestrator {
	if opts.SignTTL <= 0 {
		opts.SignTTL = 15 * time.Minute
	}
	if opts.PartTimeout <= 0 {
		opts.PartTimeout = time.Minute
	}
	if opts.MaxPartSize <= 0 {
		opts.MaxPartSize = 64 << 20
	}
	if len(opts.Sizes) == 0 {
		opts.Sizes = img.DefaultSizes()
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = []string{"image/*", "application/octet-stream"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		store:       store,
		photos:      photos,
		jobs:        jobs,
		pub:         pub,
		bucket:      opts.Bucket,
		sizes:       opts.Sizes,
		signTTL:     opts.SignTTL,
		partTimeout: opts.PartTimeout,
		maxPart:     opts.MaxPartSize,
		allowed:     opts.AllowedTypes,
		logger:      opts.Logger,
	}
}

// CreateRequest opens a multipart session for one file.
type CreateRequest struct {
	FolderID    uuid.UUID `json:"folder_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	FileSize    int64     `json:"file_size"`
}

// CreateSession is handed back to the client, which threads Key and UploadID
// through every subsequent part and completion call.
type CreateSession struct {
	Key      string `json:"key"`
	UploadID string `json:"upload_id"`
}

func (o *Orchestrator) Create(ctx context.Context, ownerID uuid.UUID, req CreateRequest) (*CreateSession, error) {
	if req.FolderID == uuid.Nil {
		return nil, apperr.New(apperr.KindValidation, "folder_id is required")
	}
	if strings.TrimSpace(req.Filename) == "" || req.Filename != path.Base(req.Filename) {
		return nil, apperr.New(apperr.KindValidation, "filename must be a bare file name")
	}
	if req.FileSize <= 0 {
		return nil, apperr.New(apperr.KindValidation, "file_size must be positive")
	}
	if !o.contentTypeAllowed(req.ContentType) {
		return nil, apperr.Newf(apperr.KindValidation, "content type %q is not accepted", req.ContentType)
	}

	folder, err := o.photos.Folder(ctx, req.FolderID)
	if err != nil {
		if errors.Is(err, db.ErrNoRow) {
			return nil, apperr.New(apperr.KindNotFound, "folder not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "look up folder", err)
	}
	if folder.OwnerID != ownerID {
		return nil, apperr.New(apperr.KindForbidden, "folder belongs to another account")
	}

	key := img.OriginalKey(req.FolderID.String(), uuid.New().String(), req.Filename)
	uploadID, err := o.store.CreateMultipart(ctx, key, req.ContentType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "open multipart session", err)
	}

	o.logger.Info("multipart session opened",
		"folder_id", req.FolderID, "key", key, "upload_id", uploadID, "file_size", req.FileSize)
	return &CreateSession{Key: key, UploadID: uploadID}, nil
}

// SignPart returns a presigned URL for one part. The client uploads the part
// body straight to the store and keeps the returned ETag for completion.
func (o *Orchestrator) SignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	if key == "" || uploadID == "" {
		return "", apperr.New(apperr.KindValidation, "key and upload_id are required")
	}
	if partNumber < 1 {
		return "", apperr.New(apperr.KindValidation, "part_number must be at least 1")
	}
	url, err := o.store.SignPart(ctx, key, uploadID, partNumber, o.signTTL)
	if err != nil {
		if errors.Is(err, blob.ErrNoSuchUpload) {
			return "", apperr.New(apperr.KindNotFound, "no such upload session")
		}
		return "", apperr.Wrap(apperr.KindTransientStore, "presign part", err)
	}
	return url, nil
}

// ProxyPart relays one part body through this process for clients whose direct
// store upload is blocked. The body is size-capped and the whole relay runs
// under a hard timeout.
func (o *Orchestrator) ProxyPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, length int64) (string, error) {
	if key == "" || uploadID == "" {
		return "", apperr.New(apperr.KindValidation, "key and upload_id are required")
	}
	if partNumber < 1 {
		return "", apperr.New(apperr.KindValidation, "part_number must be at least 1")
	}
	if length <= 0 {
		return "", apperr.New(apperr.KindValidation, "content length is required for proxied parts")
	}
	if length > o.maxPart {
		return "", apperr.Newf(apperr.KindValidation, "part exceeds %d byte limit", o.maxPart)
	}

	ctx, cancel := context.WithTimeout(ctx, o.partTimeout)
	defer cancel()

	etag, err := o.store.UploadPart(ctx, key, uploadID, partNumber, io.LimitReader(body, length), length)
	if err != nil {
		if errors.Is(err, blob.ErrNoSuchUpload) {
			return "", apperr.New(apperr.KindNotFound, "no such upload session")
		}
		return "", apperr.Wrap(apperr.KindTransientStore, "relay part", err)
	}
	return etag, nil
}

// CompletedPart is one client-reported part of a finished upload.
type CompletedPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// CompleteRequest finalizes a multipart session and registers the photo.
type CompleteRequest struct {
	Key      string          `json:"key"`
	UploadID string          `json:"upload_id"`
	FolderID uuid.UUID       `json:"folder_id"`
	Filename string          `json:"filename"`
	FileSize int64           `json:"file_size"`
	Parts    []CompletedPart `json:"parts"`
}

func (o *Orchestrator) Complete(ctx context.Context, ownerID uuid.UUID, req CompleteRequest) (*db.Photo, error) {
	if req.Key == "" || req.UploadID == "" {
		return nil, apperr.New(apperr.KindValidation, "key and upload_id are required")
	}
	if req.FolderID == uuid.Nil || strings.TrimSpace(req.Filename) == "" {
		return nil, apperr.New(apperr.KindValidation, "folder_id and filename are required")
	}
	if len(req.Parts) == 0 {
		return nil, apperr.New(apperr.KindIncompleteParts, "no parts reported")
	}

	parts, err := normalizeParts(req.Parts)
	if err != nil {
		return nil, err
	}

	folder, err := o.photos.Folder(ctx, req.FolderID)
	if err != nil {
		if errors.Is(err, db.ErrNoRow) {
			return nil, apperr.New(apperr.KindNotFound, "folder not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "look up folder", err)
	}
	if folder.OwnerID != ownerID {
		return nil, apperr.New(apperr.KindForbidden, "folder belongs to another account")
	}

	if _, err := o.store.CompleteMultipart(ctx, req.Key, req.UploadID, parts); err != nil {
		if errors.Is(err, blob.ErrNoSuchUpload) {
			return nil, apperr.New(apperr.KindNotFound, "no such upload session")
		}
		return nil, apperr.Wrap(apperr.KindStoreCompletion, "complete multipart session", err)
	}

	photo := &db.Photo{
		FolderID:        req.FolderID,
		Filename:        req.Filename,
		StorageBucket:   o.bucket,
		StorageKey:      req.Key,
		SourceURL:       o.store.URL(req.Key),
		FileSize:        req.FileSize,
		ThumbnailStatus: db.ThumbnailPending,
		UploadStatus:    db.UploadCompleted,
	}
	if err := o.photos.CreatePhoto(ctx, photo); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "record photo", err)
	}

	o.enqueueDerivatives(photo)

	if o.pub != nil {
		o.pub.PublishPhotoRegistered(schema.PhotoRegistered{
			PhotoID:    photo.ID.String(),
			FolderID:   photo.FolderID.String(),
			Filename:   photo.Filename,
			StorageKey: photo.StorageKey,
			FileSize:   photo.FileSize,
			HappenedAt: time.Now().Unix(),
		})
	}

	o.logger.Info("upload completed",
		"photo_id", photo.ID, "folder_id", photo.FolderID, "key", photo.StorageKey, "parts", len(parts))
	return photo, nil
}

// Abort discards an open session and any parts already stored for it.
func (o *Orchestrator) Abort(ctx context.Context, key, uploadID string) error {
	if key == "" || uploadID == "" {
		return apperr.New(apperr.KindValidation, "key and upload_id are required")
	}
	if err := o.store.AbortMultipart(ctx, key, uploadID); err != nil {
		if errors.Is(err, blob.ErrNoSuchUpload) {
			return apperr.New(apperr.KindNotFound, "no such upload session")
		}
		return apperr.Wrap(apperr.KindTransientStore, "abort multipart session", err)
	}
	return nil
}

// enqueueDerivatives queues the full size set for a photo as one unit, so
// the queue never sees a partial set. A saturated queue is logged, not fatal;
// the photo stays PENDING and regeneration picks it up.
func (o *Orchestrator) enqueueDerivatives(photo *db.Photo) {
	jobs := make([]queue.Job, len(o.sizes))
	for i, size := range o.sizes {
		jobs[i] = queue.Job{
			PhotoID:    photo.ID,
			FolderID:   photo.FolderID,
			SourceKey:  photo.StorageKey,
			Filename:   photo.Filename,
			Size:       size,
			TotalSizes: len(o.sizes),
		}
	}
	if err := o.jobs.AddSet(jobs); err != nil {
		o.logger.Error("enqueue derivative set failed",
			"photo_id", photo.ID, "sizes", len(jobs), "err", err)
	}
}

func (o *Orchestrator) contentTypeAllowed(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return false
	}
	for _, allowed := range o.allowed {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == ct {
			return true
		}
		if strings.HasSuffix(allowed, "/*") && strings.HasPrefix(ct, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

// normalizeParts validates the client-reported part list and returns it
// sorted by part number, which the store requires.
func normalizeParts(in []CompletedPart) ([]blob.Part, error) {
	out := make([]blob.Part, 0, len(in))
	seen := make(map[int32]bool, len(in))
	for _, p := range in {
		if p.PartNumber < 1 {
			return nil, apperr.Newf(apperr.KindValidation, "invalid part number %d", p.PartNumber)
		}
		if seen[p.PartNumber] {
			return nil, apperr.Newf(apperr.KindValidation, "duplicate part number %d", p.PartNumber)
		}
		if strings.TrimSpace(p.ETag) == "" {
			return nil, apperr.Newf(apperr.KindIncompleteParts, "part %d has no etag", p.PartNumber)
		}
		seen[p.PartNumber] = true
		out = append(out, blob.Part{Number: p.PartNumber, ETag: p.ETag})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
