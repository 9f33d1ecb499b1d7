// Package store holds the authoritative backends for the singleton
// settings row.
package store

import (
	"context"
	"sync"
	"time"

	"shopgate/internal/settings"
	"shopgate/pkg/platform/sentinel"
)

// InMemoryStore is the in-process authoritative row, used in tests and
// single-node runs without Postgres.
type InMemoryStore struct {
	mu  sync.Mutex
	row *settings.Settings
}

func NewInMemory() *InMemoryStore {
	row := settings.Defaults()
	return &InMemoryStore{row: &row}
}

func (s *InMemoryStore) Load(_ context.Context) (*settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row.Clone(), nil
}

// Save accepts the write only when the caller saw the current version.
func (s *InMemoryStore) Save(_ context.Context, next *settings.Settings) (*settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next.Version != s.row.Version {
		return nil, sentinel.ErrConflict
	}
	accepted := next.Clone()
	accepted.Version = s.row.Version + 1
	accepted.UpdatedAt = time.Now()
	s.row = accepted
	return accepted.Clone(), nil
}
