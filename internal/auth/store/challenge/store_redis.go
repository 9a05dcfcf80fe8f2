package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"accolade/internal/auth/models"
	"accolade/pkg/platform/sentinel"
)

const challengeKeyPrefix = "auth:challenge:"

// RedisChallengeStore shares challenges across instances. Redis expiry
// enforces the TTL; GETDEL makes consumption atomic.
type RedisChallengeStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) Save(ctx context.Context, challenge *models.Challenge) error {
	ttl := challenge.ExpiresAt.Sub(challenge.IssuedAt)
	if err := validateTTL(ttl); err != nil {
		return err
	}
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	ok, err := s.client.SetNX(ctx, challengeKeyPrefix+challenge.Nonce, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	if !ok {
		return fmt.Errorf("challenge nonce exists: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, nonce string) (*models.Challenge, error) {
	payload, err := s.client.GetDel(ctx, challengeKeyPrefix+nonce).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("challenge not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	var challenge models.Challenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &challenge, nil
}
