package schema

import (
	"context"
	"sync"
)

// MemoryStore keeps schema versions in process memory. It backs the inline
// CLI run and tests; deployments use the postgres or badger stores.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string][]*Schema
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: map[string][]*Schema{}}
}

func (m *MemoryStore) Latest(ctx context.Context, scope string) (*Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs := m.versions[scope]
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	return vs[len(vs)-1].Clone(), nil
}

func (m *MemoryStore) Append(ctx context.Context, scope string, expectedVersion int, s *Schema, reason string) (*Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs := m.versions[scope]
	current := 0
	if len(vs) > 0 {
		current = vs[len(vs)-1].Version
	}
	if current != expectedVersion {
		return nil, ErrVersionConflict
	}

	saved := s.Clone()
	saved.Scope = scope
	saved.Version = expectedVersion + 1
	m.versions[scope] = append(vs, saved)
	return saved.Clone(), nil
}

// History returns every stored version of scope, oldest first.
func (m *MemoryStore) History(scope string) []*Schema {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Schema, len(m.versions[scope]))
	for i, s := range m.versions[scope] {
		out[i] = s.Clone()
	}
	return out
}
