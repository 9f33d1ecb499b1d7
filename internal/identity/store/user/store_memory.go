package user

import (
	"context"
	"strings"
	"sync"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
	"shopgate/pkg/platform/sentinel"
)

// InMemoryStore keeps users keyed by ID with an email index. Used in
// development and unit tests; production runs the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func New() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

// Create stores a new user. Duplicate emails (case-insensitive) return
// sentinel.ErrConflict.
func (s *InMemoryStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.byEmail[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[key] = user.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.users[userID]
	return &cp, nil
}

// UpdatePasswordHash replaces the stored hash for a user.
func (s *InMemoryStore) UpdatePasswordHash(_ context.Context, userID id.UserID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}
