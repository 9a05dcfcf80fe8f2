package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"accolade/internal/auth/models"
	"accolade/pkg/platform/sentinel"
)

// DefaultCapacity bounds outstanding challenges in one process.
const DefaultCapacity = 10000

// InMemoryChallengeStore keeps challenges in process for tests and single
// instance deployments. Saves past capacity fail with sentinel.ErrUnavailable.
type InMemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge
	// expiries holds challenges in save order. With a fixed TTL that is also
	// expiry order, so eviction only pops the head.
	expiries []*models.Challenge
	capacity int
	now      func() time.Time
}

type InMemoryOption func(*InMemoryChallengeStore)

// WithCapacity overrides DefaultCapacity. Non-positive values are ignored.
func WithCapacity(n int) InMemoryOption {
	return func(s *InMemoryChallengeStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemoryChallengeStore {
	s := &InMemoryChallengeStore{
		challenges: make(map[string]*models.Challenge),
		capacity:   DefaultCapacity,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryChallengeStore) Save(_ context.Context, challenge *models.Challenge) error {
	if err := validateTTL(challenge.ExpiresAt.Sub(challenge.IssuedAt)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	if _, ok := s.challenges[challenge.Nonce]; ok {
		return fmt.Errorf("challenge nonce exists: %w", sentinel.ErrConflict)
	}
	if len(s.challenges) >= s.capacity {
		return fmt.Errorf("challenge store full: %w", sentinel.ErrUnavailable)
	}
	stored := *challenge
	s.challenges[challenge.Nonce] = &stored
	s.expiries = append(s.expiries, &stored)
	return nil
}

// Consume removes and returns the challenge. A nonce can be consumed once.
func (s *InMemoryChallengeStore) Consume(_ context.Context, nonce string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[nonce]
	if !ok {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	delete(s.challenges, nonce)
	if challenge.IsExpired(s.now()) {
		return nil, fmt.Errorf("challenge expired: %w", sentinel.ErrExpired)
	}
	return challenge, nil
}

// evictExpiredLocked pops expired or already consumed challenges off the
// head of the queue. Each saved challenge is popped at most once.
func (s *InMemoryChallengeStore) evictExpiredLocked() {
	now := s.now()
	for len(s.expiries) > 0 {
		head := s.expiries[0]
		live := s.challenges[head.Nonce] == head
		if live && !head.IsExpired(now) {
			break
		}
		if live {
			delete(s.challenges, head.Nonce)
		}
		s.expiries[0] = nil
		s.expiries = s.expiries[1:]
	}
	if len(s.expiries) == 0 {
		s.expiries = nil
	}
}
