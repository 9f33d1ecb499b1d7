package resettoken

import (
	"context"
	"sync"
	"time"

	"shopgate/internal/identity/models"
	"shopgate/pkg/platform/sentinel"
)

// InMemoryStore holds one-shot password reset tokens.
type InMemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*models.ResetToken
}

func New() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*models.ResetToken)}
}

func (s *InMemoryStore) Save(_ context.Context, token *models.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

// Consume atomically validates and burns a token. Expired tokens return
// ErrExpired, reused ones ErrAlreadyUsed.
func (s *InMemoryStore) Consume(_ context.Context, token string, now time.Time) (*models.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if rt.Used {
		return nil, sentinel.ErrAlreadyUsed
	}
	if now.After(rt.ExpiresAt) {
		return nil, sentinel.ErrExpired
	}
	rt.Used = true
	cp := *rt
	return &cp, nil
}
