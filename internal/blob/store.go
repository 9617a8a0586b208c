// Package blob abstracts the S3-compatible object store the pipeline reads
// originals from and writes derivatives to.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("blob: object not found")
	// ErrNoSuchUpload is returned for operations against a multipart session
	// that was completed, aborted, or never created.
	ErrNoSuchUpload = errors.New("blob: no such upload")
)

// Part identifies one completed piece of a multipart upload.
type Part struct {
	Number int32
	ETag   string
}

// Object is a fetched blob. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	Length      int64
	ContentType string
}

// Store is the object-store contract the pipeline consumes. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Delete is idempotent: deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	CreateMultipart(ctx context.Context, key, contentType string) (uploadID string, err error)
	// SignPart returns a short-lived URL authorizing exactly one part upload.
	SignPart(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	// UploadPart pushes part bytes through the server. Fallback for clients
	// that cannot reach the store directly.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, length int64) (etag string, err error)
	// CompleteMultipart finalizes the upload. Parts must already be sorted by
	// part number.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) (location string, err error)
	AbortMultipart(ctx context.Context, key, uploadID string) error

	// URL returns the public URL an object is served from.
	URL(key string) string
}
