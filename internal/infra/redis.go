package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMissingURL is returned when a backend is selected without its URL.
var ErrMissingURL = errors.New("connection url is required")

// RedisClientName tags connections in CLIENT LIST.
const RedisClientName = "akatsuki"

const connectTimeout = 5 * time.Second

// NewRedisClient connects the cache behind the session store, the run lock,
// the trigger rate limit and the deposit tally. Options in the URL win over
// the defaults applied here.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redisOptions(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func redisOptions(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("redis: %w", ErrMissingURL)
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ClientName == "" {
		opt.ClientName = RedisClientName
	}
	// one run at a time plus the API handlers
	if opt.PoolSize == 0 {
		opt.PoolSize = 8
	}
	return opt, nil
}
