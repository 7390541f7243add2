package memory

import (
	"context"
	"slices"
	"sync"

	"medorder/internal/audit"
)

// InMemoryStore keeps audit entries in append order. It backs local runs and
// tests; entries are lost on restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	byKey   map[string][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byKey: make(map[string][]int)}
}

func (s *InMemoryStore) Append(ctx context.Context, entry audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.EntityKey()
	s.byKey[key] = append(s.byKey[key], len(s.entries))
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns every entry in append order.
func (s *InMemoryStore) Entries(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries), nil
}

// ListByEntity returns the entries for one entity key ("order:ord-1") in
// append order.
func (s *InMemoryStore) ListByEntity(_ context.Context, entityKey string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byKey[entityKey]
	out := make([]audit.Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i])
	}
	return out, nil
}
