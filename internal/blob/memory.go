package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and local development. It
// mirrors S3 semantics closely enough for the pipeline: md5 ETags, multipart
// sessions that disappear on complete/abort, idempotent deletes.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	uploads map[string]*memUpload
	nextID  int
}

type memObject struct {
	data        []byte
	contentType string
}

type memUpload struct {
	key         string
	contentType string
	parts       map[int32]memPart
}

type memPart struct {
	data []byte
	etag string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memObject),
		uploads: make(map[string]*memUpload),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		Length:      int64(len(obj.data)),
		ContentType: obj.contentType,
	}, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) CreateMultipart(_ context.Context, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	uploadID := fmt.Sprintf("upload-%d", m.nextID)
	m.uploads[uploadID] = &memUpload{
		key:         key,
		contentType: contentType,
		parts:       make(map[int32]memPart),
	}
	return uploadID, nil
}

func (m *MemoryStore) SignPart(_ context.Context, key, uploadID string, partNumber int32, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return "", fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}
	return fmt.Sprintf("memory://%s?uploadId=%s&partNumber=%d", key, uploadID, partNumber), nil
}

func (m *MemoryStore) UploadPart(_ context.Context, key, uploadID string, partNumber int32, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return "", fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}

	sum := md5.Sum(data)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	up.parts[partNumber] = memPart{data: data, etag: etag}
	return etag, nil
}

func (m *MemoryStore) CompleteMultipart(_ context.Context, key, uploadID string, parts []Part) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return "", fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}

	var assembled []byte
	for _, p := range parts {
		stored, ok := up.parts[p.Number]
		if !ok {
			return "", fmt.Errorf("memory: part %d was never uploaded", p.Number)
		}
		if stored.etag != p.ETag {
			return "", fmt.Errorf("memory: etag mismatch for part %d", p.Number)
		}
		assembled = append(assembled, stored.data...)
	}

	m.objects[key] = memObject{data: assembled, contentType: up.contentType}
	delete(m.uploads, uploadID)
	return m.URL(key), nil
}

func (m *MemoryStore) AbortMultipart(_ context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	up, ok := m.uploads[uploadID]
	if !ok || up.key != key {
		return fmt.Errorf("%w: %s", ErrNoSuchUpload, uploadID)
	}
	delete(m.uploads, uploadID)
	return nil
}

func (m *MemoryStore) URL(key string) string {
	return "memory://" + key
}

// PendingUploads lists open multipart session IDs, sorted. Test helper.
func (m *MemoryStore) PendingUploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.uploads))
	for id := range m.uploads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
