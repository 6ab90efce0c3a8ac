package persist

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a process-local BlobStore.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	puts  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = slices.Clone(data)
	m.puts++
	return nil
}

// Puts reports how many writes the store has accepted.
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
