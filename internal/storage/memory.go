package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type memObject struct {
	body []byte
	url  string
}

// MemoryBackend keeps objects in process memory. The first write for a key
// wins; later writes to the same key are dropped.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memObject
	puts    int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]memObject)}
}

func (m *MemoryBackend) Head(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryBackend) Put(ctx context.Context, key string, body io.Reader, size int64, meta Metadata) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return nil
	}
	m.objects[key] = memObject{body: b, url: meta.URL}
	m.puts++
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (*StoredObject, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false, nil
	}
	return &StoredObject{
		Key:  key,
		URL:  obj.url,
		Size: int64(len(obj.body)),
		Body: io.NopCloser(bytes.NewReader(obj.body)),
	}, true, nil
}

// Len returns the number of stored objects.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Puts returns the number of writes that created an object.
func (m *MemoryBackend) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
