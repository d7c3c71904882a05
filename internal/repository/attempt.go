package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/redis"
)

// AttemptStore holds in-flight authorization attempts keyed by state token.
// Entries expire on their own; Consume removes the entry atomically so a
// state token can never be redeemed twice.
type AttemptStore interface {
	Save(ctx context.Context, state string, attempt model.AuthorizationAttempt, ttl time.Duration) error
	Consume(ctx context.Context, state string) (*model.AuthorizationAttempt, error)
}

type attemptStore struct {
	client *redis.Client
}

func NewAttemptStore(client *redis.Client) AttemptStore {
	return &attemptStore{client: client}
}

func (s *attemptStore) Save(ctx context.Context, state string, attempt model.AuthorizationAttempt, ttl time.Duration) error {
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	if err := s.client.Set(ctx, redis.AttemptKey(state), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

// Consume returns nil without error when the state is unknown, expired, or
// already consumed. GETDEL makes read-and-remove a single atomic step.
func (s *attemptStore) Consume(ctx context.Context, state string) (*model.AuthorizationAttempt, error) {
	payload, err := s.client.GetDel(ctx, redis.AttemptKey(state)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume attempt: %w", err)
	}

	var attempt model.AuthorizationAttempt
	if err := json.Unmarshal([]byte(payload), &attempt); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return &attempt, nil
}
