package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNoRow is returned when a lookup matches nothing.
var ErrNoRow = errors.New("db: no such row")

type ThumbnailStatus string

const (
	ThumbnailPending    ThumbnailStatus = "PENDING"
	ThumbnailProcessing ThumbnailStatus = "PROCESSING"
	ThumbnailCompleted  ThumbnailStatus = "COMPLETED"
	ThumbnailFailed     ThumbnailStatus = "FAILED"
)

type UploadStatus string

const (
	UploadPending   UploadStatus = "PENDING"
	UploadCompleted UploadStatus = "COMPLETED"
)

// Photo is one uploaded original plus the state of its derivatives.
// Thumbnails maps size name to public URL and is non-empty only once
// ThumbnailStatus is COMPLETED. Bucket and key are stored explicitly; nothing
// is ever parsed back out of URLs.
type Photo struct {
	ID              uuid.UUID         `json:"id"`
	FolderID        uuid.UUID         `json:"folder_id"`
	Filename        string            `json:"filename"`
	StorageBucket   string            `json:"storage_bucket"`
	StorageKey      string            `json:"storage_key"`
	SourceURL       string            `json:"source_url"`
	FileSize        int64             `json:"file_size"`
	Thumbnails      map[string]string `json:"thumbnails"`
	ThumbnailStatus ThumbnailStatus   `json:"thumbnail_status"`
	UploadStatus    UploadStatus      `json:"upload_status"`
	CreatedAt       time.Time         `json:"created_at"`
}

type Folder struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Name    string
}

const photoColumns = `id, folder_id, filename, storage_bucket, storage_key, source_url,
	file_size, thumbnails, thumbnail_status, upload_status, created_at`

func (s *Store) CreatePhoto(ctx context.Context, p *Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Thumbnails == nil {
		p.Thumbnails = map[string]string{}
	}
	if p.ThumbnailStatus == "" {
		p.ThumbnailStatus = ThumbnailPending
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO photos (`+photoColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.FolderID, p.Filename, p.StorageBucket, p.StorageKey, p.SourceURL,
		p.FileSize, p.Thumbnails, p.ThumbnailStatus, p.UploadStatus, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("db: create photo: %w", err)
	}
	return nil
}

func (s *Store) Photo(ctx context.Context, id uuid.UUID) (*Photo, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, id)
	p, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: photo %s", ErrNoRow, id)
		}
		return nil, fmt.Errorf("db: get photo: %w", err)
	}
	return p, nil
}

func (s *Store) Folder(ctx context.Context, id uuid.UUID) (*Folder, error) {
	var f Folder
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name FROM folders WHERE id = $1`, id).
		Scan(&f.ID, &f.OwnerID, &f.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: folder %s", ErrNoRow, id)
		}
		return nil, fmt.Errorf("db: get folder: %w", err)
	}
	return &f, nil
}

// MarkProcessing flips a photo to PROCESSING when its first derivative job is
// dispatched. Already-completed photos are left alone.
func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE photos SET thumbnail_status = $2
		 WHERE id = $1 AND thumbnail_status IN ($3, $4)`,
		id, ThumbnailProcessing, ThumbnailPending, ThumbnailFailed)
	if err != nil {
		return fmt.Errorf("db: mark processing: %w", err)
	}
	return nil
}

// FinishThumbnails records the final outcome for a photo. A FAILED photo
// keeps an empty thumbnail map so it stays eligible for regeneration.
func (s *Store) FinishThumbnails(ctx context.Context, id uuid.UUID, urls map[string]string, status ThumbnailStatus) error {
	if status != ThumbnailCompleted || urls == nil {
		urls = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE photos SET thumbnails = $2, thumbnail_status = $3 WHERE id = $1`,
		id, urls, status)
	if err != nil {
		return fmt.Errorf("db: finish thumbnails: %w", err)
	}
	return nil
}

func (s *Store) CountByStatus(ctx context.Context, status ThumbnailStatus) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM photos WHERE thumbnail_status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db: count by status: %w", err)
	}
	return n, nil
}

// ListRetryable returns the next batch of photos whose derivatives need
// (re)generating: uploaded, and either PENDING/FAILED or missing their URLs.
// COMPLETED photos with URLs never match, which makes regeneration idempotent.
// Keyset pagination: pass the last ID of the previous batch as after.
func (s *Store) ListRetryable(ctx context.Context, limit int, after uuid.UUID) ([]Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos
		 WHERE upload_status = $1
		   AND (thumbnail_status IN ($2, $3) OR thumbnails = '{}'::jsonb)
		   AND id > $4
		 ORDER BY id
		 LIMIT $5`,
		UploadCompleted, ThumbnailPending, ThumbnailFailed, after, limit)
	if err != nil {
		return nil, fmt.Errorf("db: list retryable: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("db: scan retryable photo: %w", err)
		}
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: list retryable: %w", err)
	}
	return photos, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.FolderID, &p.Filename, &p.StorageBucket, &p.StorageKey,
		&p.SourceURL, &p.FileSize, &p.Thumbnails, &p.ThumbnailStatus, &p.UploadStatus, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
