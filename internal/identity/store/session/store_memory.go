package session

import (
	"context"
	"sync"

	"shopgate/internal/identity/models"
	id "shopgate/pkg/domain"
	"shopgate/pkg/platform/sentinel"
)

// InMemorySessionStore keeps sessions keyed by ID with a scope index.
// At most one session is live per scope: creating a session for a scope
// replaces any previous one.
type InMemorySessionStore struct {
	mu      sync.RWMutex
	byID    map[id.SessionID]*models.Session
	byScope map[string]id.SessionID
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{
		byID:    make(map[id.SessionID]*models.Session),
		byScope: make(map[string]id.SessionID),
	}
}

func (s *InMemorySessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.byScope[session.Scope]; ok {
		delete(s.byID, prevID)
	}
	cp := *session
	s.byID[session.ID] = &cp
	s.byScope[session.Scope] = session.ID
	return nil
}

func (s *InMemorySessionStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.byID[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *InMemorySessionStore) FindByScope(_ context.Context, scope string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, ok := s.byScope[scope]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[sessionID]
	return &cp, nil
}

// Update replaces a stored session (token rotation, activity bump).
func (s *InMemorySessionStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[session.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *session
	s.byID[session.ID] = &cp
	return nil
}

// Delete removes a session and its scope index entry. Deleting a missing
// session is a no-op so sign-out stays idempotent.
func (s *InMemorySessionStore) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[sessionID]
	if !ok {
		return nil
	}
	delete(s.byID, sessionID)
	if s.byScope[session.Scope] == sessionID {
		delete(s.byScope, session.Scope)
	}
	return nil
}
