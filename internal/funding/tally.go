package funding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tally tracks how much has been deposited per day.
type Tally interface {
	Deposited(ctx context.Context, day string) (int64, error)
	Add(ctx context.Context, day string, amount int64) (int64, error)
}

const tallyTTL = 48 * time.Hour

// RedisTally counts deposits with INCRBY on a per-day key that expires after two days.
type RedisTally struct {
	client *redis.Client
}

func NewRedisTally(client *redis.Client) *RedisTally {
	return &RedisTally{client: client}
}

func tallyKey(day string) string {
	return "funding:deposits:v1:" + day
}

func (t *RedisTally) Deposited(ctx context.Context, day string) (int64, error) {
	v, err := t.client.Get(ctx, tallyKey(day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (t *RedisTally) Add(ctx context.Context, day string, amount int64) (int64, error) {
	key := tallyKey(day)
	total, err := t.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, err
	}
	if total == amount {
		t.client.Expire(ctx, key, tallyTTL)
	}
	return total, nil
}

// MemoryTally is a process-local Tally.
type MemoryTally struct {
	mu     sync.Mutex
	totals map[string]int64
}

func NewMemoryTally() *MemoryTally {
	return &MemoryTally{totals: map[string]int64{}}
}

func (t *MemoryTally) Deposited(_ context.Context, day string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[day], nil
}

func (t *MemoryTally) Add(_ context.Context, day string, amount int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals[day] += amount
	return t.totals[day], nil
}
