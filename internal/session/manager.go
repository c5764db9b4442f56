package session

import (
	"sort"
	"sync"

	"github.com/r3e-network/pool-orchestrator/internal/elementid"
)

// Manager tracks every live Session by controller id, giving the
// Scheduler and Hot-Reload Orchestrator the ascending-ctrl_id lock-order
// traversal they require.
type Manager struct {
	mu       sync.RWMutex
	sessions map[elementid.ID]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[elementid.ID]*Session)}
}

func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
}

func (m *Manager) Remove(id elementid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Get(id elementid.ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Ordered returns the sessions for ids, sorted ascending by controller
// id, which is the process-wide lock acquisition order.
func (m *Manager) Ordered(ids []elementid.ID) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	unique := make(map[elementid.ID]*Session, len(ids))
	for _, id := range ids {
		if s, ok := m.sessions[id]; ok {
			unique[id] = s
		}
	}
	sorted := make([]elementid.ID, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]*Session, len(sorted))
	for i, id := range sorted {
		out[i] = unique[id]
	}
	return out
}

// ByFile returns every session currently bound to fileName.
func (m *Manager) ByFile(fileName string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.FileName() == fileName {
			out = append(out, s)
		}
	}
	return out
}
