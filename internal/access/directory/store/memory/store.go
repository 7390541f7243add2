package memory

import (
	"context"
	"sync"

	"medorder/internal/access/models"
	"medorder/pkg/platform/sentinel"
)

// InMemoryStore is a role directory for development and tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	roles map[string]models.Role
}

// NewInMemoryStore copies seed into a new store.
func NewInMemoryStore(seed map[string]models.Role) *InMemoryStore {
	roles := make(map[string]models.Role, len(seed))
	for id, role := range seed {
		roles[id] = role
	}
	return &InMemoryStore{roles: roles}
}

func (s *InMemoryStore) FindRole(_ context.Context, principalID string) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[principalID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return role, nil
}

// SetRole creates or replaces a principal's directory record.
func (s *InMemoryStore) SetRole(principalID string, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[principalID] = role
}
