package queue

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Sinnan1/PhotoPortal-sub002/internal/blob"
	"github.com/Sinnan1/PhotoPortal-sub002/internal/img"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/apperr"
	"github.com/Sinnan1/PhotoPortal-sub002/pkg/schema"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	im := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		im.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, im, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func testJob(filename string, size img.Size) Job {
	return Job{
		PhotoID:    uuid.New(),
		FolderID:   uuid.New(),
		SourceKey:  "galleries/f/originals/u_" + filename,
		Filename:   filename,
		Size:       size,
		TotalSizes: 1,
	}
}

func TestWorkerProcessStoresFittedDerivative(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	if err := store.Put(ctx, "galleries/f/originals/u_photo.jpg", jpegBytes(t, 800, 400), "image/jpeg"); err != nil {
		t.Fatalf("seed original: %v", err)
	}

	w := NewWorker(store, 80, 0, nil)
	job := testJob("photo.jpg", img.Size{Name: "small", Width: 400, Height: 400})

	url, err := w.Process(ctx, job)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	key := img.DerivativeKey(job.FolderID.String(), job.PhotoID.String(), job.Filename, "small")
	if !strings.HasSuffix(url, key) {
		t.Fatalf("URL %q does not point at derivative key %q", url, key)
	}

	obj, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("derivative missing from store: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("derivative is not a JPEG: %v", err)
	}
	if cfg.Width > 400 || cfg.Height > 400 {
		t.Fatalf("derivative %dx%d exceeds bounding box", cfg.Width, cfg.Height)
	}
	if obj.ContentType != "image/jpeg" {
		t.Fatalf("derivative content type %q", obj.ContentType)
	}
}

func TestWorkerProcessMissingOriginal(t *testing.T) {
	w := NewWorker(blob.NewMemory(), 80, 0, nil)
	job := testJob("gone.jpg", img.Size{Name: "small", Width: 400, Height: 400})

	_, err := w.Process(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for missing original")
	}
	if kind := apperr.KindOf(err); kind != apperr.KindSourceNotFound {
		t.Fatalf("expected source_not_found, got %s", kind)
	}
	if classifyFailure(err) != schema.FailureTypePermanent {
		t.Fatalf("missing source must classify as permanent")
	}
}

func TestWorkerProcessUndecodableFormatGetsPlaceholder(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	// RAW files are stored as-is and never decoded.
	if err := store.Put(ctx, "galleries/f/originals/u_shot.cr2", []byte("raw sensor data"), "application/octet-stream"); err != nil {
		t.Fatalf("seed original: %v", err)
	}

	w := NewWorker(store, 80, 0, nil)
	job := testJob("shot.cr2", img.Size{Name: "medium", Width: 1200, Height: 1200})

	if _, err := w.Process(ctx, job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	key := img.DerivativeKey(job.FolderID.String(), job.PhotoID.String(), job.Filename, "medium")
	obj, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("placeholder missing from store: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		t.Fatalf("placeholder is not a JPEG: %v", err)
	}
}

func TestWorkerProcessCorruptDecodableFallsBackToPlaceholder(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	if err := store.Put(ctx, "galleries/f/originals/u_broken.jpg", []byte("not actually a jpeg"), "image/jpeg"); err != nil {
		t.Fatalf("seed original: %v", err)
	}

	w := NewWorker(store, 80, 0, nil)
	job := testJob("broken.jpg", img.Size{Name: "small", Width: 400, Height: 400})

	url, err := w.Process(ctx, job)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if url == "" {
		t.Fatal("expected derivative URL for placeholder fallback")
	}
}

func TestClassifyFailureTaxonomy(t *testing.T) {
	cases := []struct {
		kind apperr.Kind
		want schema.FailureType
	}{
		{apperr.KindSourceNotFound, schema.FailureTypePermanent},
		{apperr.KindCodec, schema.FailureTypePermanent},
		{apperr.KindValidation, schema.FailureTypeValidation},
		{apperr.KindTransientStore, schema.FailureTypeRetryable},
		{apperr.KindInternal, schema.FailureTypeRetryable},
	}
	for _, tc := range cases {
		if got := classifyFailure(apperr.New(tc.kind, "x")); got != tc.want {
			t.Errorf("kind %s: got %s, want %s", tc.kind, got, tc.want)
		}
	}
}
