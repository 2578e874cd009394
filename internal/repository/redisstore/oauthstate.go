// Package redisstore keeps short-lived OAuth authorize states in redis
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authcore/internal/apperrors"
	"github.com/nkiryanov/authcore/internal/models"
)

const defaultPrefix = "authcore:oauth:state:"

type OAuthStateStore struct {
	rdb    redis.Cmdable
	prefix string
}

// Connect creates client from URL (like redis://:pass@host:6379/0) and pings it
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url. Err: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis is not reachable. Err: %w", err)
	}

	return rdb, nil
}

// NewOAuthStateStore uses default key prefix if prefix is empty
func NewOAuthStateStore(rdb redis.Cmdable, prefix string) *OAuthStateStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &OAuthStateStore{rdb: rdb, prefix: prefix}
}

func (s *OAuthStateStore) key(value string) string { return s.prefix + value }

// Save stores the state. Same state value saved twice is an error.
func (s *OAuthStateStore) Save(ctx context.Context, state models.OAuthState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("error while encoding oauth state. Err: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(state.Value), payload, ttl).Result()
	switch {
	case err != nil:
		return fmt.Errorf("redis error: %w", err)
	case !ok:
		return errors.New("oauth state already exists")
	default:
		return nil
	}
}

// Consume gets and deletes state in one command, so a state may be used once only
func (s *OAuthStateStore) Consume(ctx context.Context, value string) (models.OAuthState, error) {
	var state models.OAuthState

	payload, err := s.rdb.GetDel(ctx, s.key(value)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return state, fmt.Errorf("store error: %w", apperrors.ErrOAuthStateNotFound)
	case err != nil:
		return state, fmt.Errorf("redis error: %w", err)
	}

	if err := json.Unmarshal(payload, &state); err != nil {
		return state, fmt.Errorf("error while decoding oauth state. Err: %w", err)
	}

	return state, nil
}
