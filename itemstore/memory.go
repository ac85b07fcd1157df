package itemstore

import (
	"context"
	"sync"

	"github.com/lostboard/vismatch/embedding"
	"github.com/lostboard/vismatch/item"
)

// MemoryStore keeps items in memory. It is meant for tests and demos.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]item.Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]item.Record)}
}

func (m *MemoryStore) Put(_ context.Context, rec item.Record) error {
	if err := Validate(&rec); err != nil {
		return err
	}
	rec.Embedding = rec.Embedding.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[rec.ID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (item.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.items[id]
	if !ok {
		return item.Record{}, ErrNotFound
	}
	rec.Embedding = rec.Embedding.Clone()
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context) ([]item.Record, error) {
	m.mu.RLock()
	out := make([]item.Record, 0, len(m.items))
	for _, rec := range m.items {
		rec.Embedding = rec.Embedding.Clone()
		out = append(out, rec)
	}
	m.mu.RUnlock()

	SortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) SetEmbedding(_ context.Context, id string, e embedding.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	rec.Embedding = e.Clone()
	if err := Validate(&rec); err != nil {
		return err
	}
	m.items[id] = rec
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
