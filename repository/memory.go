package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. It is the default backend and
// the one unit tests run against.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Kind]map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[Kind]map[string]*Record{}}
}

func (m *MemoryStore) Get(ctx context.Context, kind Kind, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("get", kind, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[kind][id]
	if !ok {
		return nil, notFound(kind, id)
	}
	return rec.clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, kind Kind) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceError("list", kind, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.data[kind]))
	for _, rec := range m.data[kind] {
		out = append(out, rec.clone())
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) currentVersion(kind Kind, id string) int64 {
	if rec, ok := m.data[kind][id]; ok {
		return rec.Version
	}
	return 0
}

func (m *MemoryStore) set(rec *Record) {
	bucket, ok := m.data[rec.Kind]
	if !ok {
		bucket = map[string]*Record{}
		m.data[rec.Kind] = bucket
	}
	bucket[rec.ID] = rec.clone()
}

func (m *MemoryStore) Put(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return persistenceError("put", rec.Kind, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentVersion(rec.Kind, rec.ID) != rec.Version {
		return conflict(rec.Kind, rec.ID)
	}
	rec.Version++
	m.set(rec)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, kind Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return persistenceError("delete", kind, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[kind][id]; !ok {
		return notFound(kind, id)
	}
	delete(m.data[kind], id)
	return nil
}

func (m *MemoryStore) Tx(ctx context.Context, fn func(Store) error) error {
	staged := newStagedStore(m)
	if err := fn(staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return persistenceError("commit", "", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	writes := staged.pending()
	for _, w := range writes {
		if m.currentVersion(w.key.kind, w.key.id) != w.expected {
			return conflict(w.key.kind, w.key.id)
		}
	}
	for _, w := range writes {
		if w.rec == nil {
			delete(m.data[w.key.kind], w.key.id)
			continue
		}
		m.set(w.rec)
	}
	return nil
}
