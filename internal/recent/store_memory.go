package recent

import (
	"context"
	"sync"
)

// InMemoryStore keeps the lists in process memory.
type InMemoryStore struct {
	mu    sync.Mutex
	limit int
	lists map[string][]string
}

func NewInMemory(limit int) *InMemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &InMemoryStore{limit: limit, lists: make(map[string][]string)}
}

func (s *InMemoryStore) Record(_ context.Context, scope, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[scope]
	out := make([]string, 0, len(list)+1)
	out = append(out, productID)
	for _, id := range list {
		if id != productID {
			out = append(out, id)
		}
	}
	if len(out) > s.limit {
		out = out[:s.limit]
	}
	s.lists[scope] = out
	return nil
}

func (s *InMemoryStore) List(_ context.Context, scope string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[scope]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (s *InMemoryStore) PurgeScope(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, scope)
	return nil
}
