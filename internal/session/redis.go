package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "session:v1:"

// RedisStore keeps sessions in Redis without a TTL.
type RedisStore struct {
	cache *redis.Client
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(cache *redis.Client) *RedisStore {
	return &RedisStore{cache: cache}
}

func (s *RedisStore) Load(ctx context.Context, identity string) (*State, error) {
	raw, err := s.cache.Get(ctx, redisPrefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, identity string, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.Set(ctx, redisPrefix+identity, payload, 0).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, identity string) error {
	return s.cache.Del(ctx, redisPrefix+identity).Err()
}
