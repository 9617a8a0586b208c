package upload

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/blob"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/db"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/queue"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/apperr"
)

type fakePhotoStore struct {
	folders map[uuid.UUID]*db.Folder
	created []*db.Photo
}

func (f *fakePhotoStore) Folder(_ context.Context, id uuid.UUID) (*db.Folder, error) {
	folder, ok := f.folders[id]
	if !ok {
		return nil, db.ErrNoRow
	}
	return folder, nil
}

func (f *fakePhotoStore) CreatePhoto(_ context.Context, p *db.Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.created = append(f.created, p)
	return nil
}

type fakeEnqueuer struct {
	jobs []queue.Job
	err  error
}

func (f *fakeEnqueuer) AddSet(jobs []queue.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, jobs...)
	return nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *blob.MemoryStore, *fakePhotoStore, *fakeEnqueuer, uuid.UUID, uuid.UUID) {
	t.Helper()
	store := blob.NewMemory()
	ownerID := uuid.New()
	folderID := uuid.New()
	photos := &fakePhotoStore{folders: map[uuid.UUID]*db.Folder{
		folderID: {ID: folderID, OwnerID: ownerID, Name: "Summer Trip"},
	}}
	jobs := &fakeEnqueuer{}
	o := New(store, photos, jobs, nil, Options{
		Bucket: "photos-test",
		Sizes: []img.Size{
			{Name: "small", Width: 400, Height: 400},
			{Name: "medium", Width: 1200, Height: 1200},
		},
		MaxPartSize: 1 << 20,
	})
	return o, store, photos, jobs, ownerID, folderID
}

func TestCreateRejectsDisallowedContentType(t *testing.T) {
	o, _, _, _, ownerID, folderID := newTestOrchestrator(t)

	_, err := o.Create(context.Background(), ownerID, CreateRequest{
		FolderID: folderID, Filename: "clip.mp4", ContentType: "video/mp4", FileSize: 10,
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	// The image/* wildcard admits any image subtype.
	if _, err := o.Create(context.Background(), ownerID, CreateRequest{
		FolderID: folderID, Filename: "shot.webp", ContentType: "image/webp", FileSize: 10,
	}); err != nil {
		t.Fatalf("image/webp should be accepted: %v", err)
	}
}

func TestCreateChecksFolderOwnership(t *testing.T) {
	o, _, _, _, _, folderID := newTestOrchestrator(t)

	req := CreateRequest{FolderID: folderID, Filename: "a.jpg", ContentType: "image/jpeg", FileSize: 10}

	_, err := o.Create(context.Background(), uuid.New(), req)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for foreign owner, got %v", err)
	}

	req.FolderID = uuid.New()
	_, err = o.Create(context.Background(), uuid.New(), req)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not_found for unknown folder, got %v", err)
	}
}

func TestCreateRejectsPathTraversalFilename(t *testing.T) {
	o, _, _, _, ownerID, folderID := newTestOrchestrator(t)

	_, err := o.Create(context.Background(), ownerID, CreateRequest{
		FolderID: folderID, Filename: "../../etc/passwd", ContentType: "image/jpeg", FileSize: 10,
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadLifecycleOutOfOrderParts(t *testing.T) {
	ctx := context.Background()
	o, store, photos, jobs, ownerID, folderID := newTestOrchestrator(t)

	sess, err := o.Create(ctx, ownerID, CreateRequest{
		FolderID: folderID, Filename: "photo.jpg", ContentType: "image/jpeg", FileSize: 11,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.Contains(sess.Key, "originals") {
		t.Fatalf("unexpected key layout: %q", sess.Key)
	}

	// Parts arrive out of order; completion must still assemble 1 then 2.
	etag2, err := o.ProxyPart(ctx, sess.Key, sess.UploadID, 2, strings.NewReader(" world"), 6)
	if err != nil {
		t.Fatalf("ProxyPart 2: %v", err)
	}
	etag1, err := o.ProxyPart(ctx, sess.Key, sess.UploadID, 1, strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("ProxyPart 1: %v", err)
	}

	photo, err := o.Complete(ctx, ownerID, CompleteRequest{
		Key: sess.Key, UploadID: sess.UploadID, FolderID: folderID,
		Filename: "photo.jpg", FileSize: 11,
		Parts: []CompletedPart{
			{PartNumber: 2, ETag: etag2},
			{PartNumber: 1, ETag: etag1},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	obj, err := store.Get(ctx, sess.Key)
	if err != nil {
		t.Fatalf("assembled object missing: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if !bytes.Equal(data, []byte("hello world")) {
		t.Fatalf("assembled %q", data)
	}

	if photo.UploadStatus != db.UploadCompleted || photo.ThumbnailStatus != db.ThumbnailPending {
		t.Fatalf("unexpected photo state: %+v", photo)
	}
	if photo.StorageBucket != "photos-test" || photo.StorageKey != sess.Key {
		t.Fatalf("storage location not recorded: %+v", photo)
	}
	if len(photos.created) != 1 {
		t.Fatalf("expected one photo record, got %d", len(photos.created))
	}

	if len(jobs.jobs) != 2 {
		t.Fatalf("expected 2 derivative jobs, got %d", len(jobs.jobs))
	}
	for _, job := range jobs.jobs {
		if job.PhotoID != photo.ID || job.SourceKey != sess.Key || job.TotalSizes != 2 {
			t.Fatalf("malformed job: %+v", job)
		}
	}
}

func TestCompleteWithSaturatedQueueEnqueuesNoPartialSet(t *testing.T) {
	ctx := context.Background()
	o, _, photos, jobs, ownerID, folderID := newTestOrchestrator(t)

	sess, err := o.Create(ctx, ownerID, CreateRequest{
		FolderID: folderID, Filename: "photo.jpg", ContentType: "image/jpeg", FileSize: 5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	etag, err := o.ProxyPart(ctx, sess.Key, sess.UploadID, 1, strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("ProxyPart: %v", err)
	}

	jobs.err = queue.ErrSaturated

	// Registration still succeeds; the photo stays PENDING for a later
	// regeneration pass instead of receiving a partial job set.
	photo, err := o.Complete(ctx, ownerID, CompleteRequest{
		Key: sess.Key, UploadID: sess.UploadID, FolderID: folderID,
		Filename: "photo.jpg", FileSize: 5,
		Parts: []CompletedPart{{PartNumber: 1, ETag: etag}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if photo.ThumbnailStatus != db.ThumbnailPending {
		t.Fatalf("expected PENDING, got %s", photo.ThumbnailStatus)
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("expected no jobs on a saturated queue, got %d", len(jobs.jobs))
	}
	if len(photos.created) != 1 {
		t.Fatalf("expected the photo record to exist, got %d", len(photos.created))
	}
}

func TestCompleteRejectsMissingETag(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, ownerID, folderID := newTestOrchestrator(t)

	sess, err := o.Create(ctx, ownerID, CreateRequest{
		FolderID: folderID, Filename: "photo.jpg", ContentType: "image/jpeg", FileSize: 5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = o.Complete(ctx, ownerID, CompleteRequest{
		Key: sess.Key, UploadID: sess.UploadID, FolderID: folderID,
		Filename: "photo.jpg", FileSize: 5,
		Parts:    []CompletedPart{{PartNumber: 1, ETag: ""}},
	})
	if apperr.KindOf(err) != apperr.KindIncompleteParts {
		t.Fatalf("expected incomplete_parts, got %v", err)
	}
}

func TestCompleteRejectsDuplicatePartNumbers(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, ownerID, folderID := newTestOrchestrator(t)

	_, err := o.Complete(ctx, ownerID, CompleteRequest{
		Key: "k", UploadID: "u", FolderID: folderID, Filename: "photo.jpg",
		Parts: []CompletedPart{
			{PartNumber: 1, ETag: "a"},
			{PartNumber: 1, ETag: "b"},
		},
	})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProxyPartEnforcesSizeCeiling(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, ownerID, folderID := newTestOrchestrator(t)

	sess, err := o.Create(ctx, ownerID, CreateRequest{
		FolderID: folderID, Filename: "photo.jpg", ContentType: "image/jpeg", FileSize: 5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = o.ProxyPart(ctx, sess.Key, sess.UploadID, 1, strings.NewReader("x"), (1<<20)+1)
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for oversized part, got %v", err)
	}
}

func TestAbortInvalidatesSession(t *testing.T) {
	ctx := context.Background()
	o, _, _, _, ownerID, folderID := newTestOrchestrator(t)

	sess, err := o.Create(ctx, ownerID, CreateRequest{
		FolderID: folderID, Filename: "photo.jpg", ContentType: "image/jpeg", FileSize: 5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := o.Abort(ctx, sess.Key, sess.UploadID); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	_, err = o.SignPart(ctx, sess.Key, sess.UploadID, 1)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not_found after abort, got %v", err)
	}
}
