package memory

import (
	"context"
	"sync"

	audit "accolade/pkg/platform/audit"
)

// InMemoryStore keeps audit events per actor. Used in development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ActorID] = append(s.events[event.ActorID], event)
	s.order = append(s.order, event)
	return nil
}

func (s *InMemoryStore) ListByActor(_ context.Context, actorID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[actorID]...), nil
}

// ListRecent returns up to limit of the most recently appended events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.order)-limit, 0)
	return append([]audit.Event{}, s.order[start:]...), nil
}
