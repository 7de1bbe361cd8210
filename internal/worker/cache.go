package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateCache remembers the last value observed for a key across sweeps.
type StateCache interface {
	// Swap stores value and returns the previous one ("" if none).
	Swap(ctx context.Context, key, value string) (string, error)
}

type redisStateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStateCache creates a StateCache backed by a dedicated Redis client,
// separate from the Asynq internal connection.
func NewRedisStateCache(redisURL string) (StateCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &redisStateCache{rdb: redis.NewClient(opts), ttl: 36 * time.Hour}, nil
}

func (c *redisStateCache) Swap(ctx context.Context, key, value string) (string, error) {
	prev, err := c.rdb.SetArgs(ctx, "planner:state:"+key, value, redis.SetArgs{Get: true, TTL: c.ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to swap state %s: %w", key, err)
	}
	return prev, nil
}
