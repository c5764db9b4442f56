package persistence

import (
	"context"
	"sync"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// MemoryStore is an in-process Store fake, grounded on
// internal/configstore's MemoryStore: useful for tests and for a
// development deployment with no Postgres instance to re-adopt ids from.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[elementid.ID]ElementRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[elementid.ID]ElementRecord)}
}

func (m *MemoryStore) Save(_ context.Context, rec ElementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id elementid.ID) (ElementRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	return rec, ok, nil
}

func (m *MemoryStore) All(_ context.Context) ([]ElementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ElementRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id elementid.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}
