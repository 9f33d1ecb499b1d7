package flag

import (
	"context"
	"strings"
	"sync"

	"shopgate/internal/authz"
	id "shopgate/pkg/domain"
)

// InMemoryFlagStore keeps persisted admin flags per (scope, user). Values
// are stored as raw strings so the strict-parse contract is exercised the
// same way as against Redis.
type InMemoryFlagStore struct {
	mu    sync.RWMutex
	flags map[string]string
}

func New() *InMemoryFlagStore {
	return &InMemoryFlagStore{flags: make(map[string]string)}
}

func key(scope string, userID id.UserID) string {
	return "admin_status:" + scope + ":" + userID.String()
}

func (s *InMemoryFlagStore) Get(_ context.Context, scope string, userID id.UserID) (authz.Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return authz.ParseFlag(s.flags[key(scope, userID)]), nil
}

func (s *InMemoryFlagStore) Set(_ context.Context, scope string, userID id.UserID, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isAdmin {
		s.flags[key(scope, userID)] = "true"
	} else {
		s.flags[key(scope, userID)] = "false"
	}
	return nil
}

func (s *InMemoryFlagStore) Delete(_ context.Context, scope string, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key(scope, userID))
	return nil
}

func (s *InMemoryFlagStore) PurgeScope(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := "admin_status:" + scope + ":"
	for k := range s.flags {
		if strings.HasPrefix(k, prefix) {
			delete(s.flags, k)
		}
	}
	return nil
}

// SetRaw stores an arbitrary string, letting tests simulate corrupted
// persisted values.
func (s *InMemoryFlagStore) SetRaw(scope string, userID id.UserID, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key(scope, userID)] = raw
}
