package admin

import (
	"context"
	"sync"

	id "shopgate/pkg/domain"
)

// InMemoryStore tracks admin users in a set. Development and test backing
// for the authoritative admin table.
type InMemoryStore struct {
	mu     sync.RWMutex
	admins map[id.UserID]struct{}
}

func New() *InMemoryStore {
	return &InMemoryStore{admins: make(map[id.UserID]struct{})}
}

func (s *InMemoryStore) IsAdmin(_ context.Context, userID id.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok, nil
}

func (s *InMemoryStore) Grant(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[userID] = struct{}{}
	return nil
}

func (s *InMemoryStore) Revoke(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins, userID)
	return nil
}
