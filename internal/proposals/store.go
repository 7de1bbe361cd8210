// Package proposals keeps reschedule proposals between the request that
// produces them and the explicit apply or discard that follows.
package proposals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jimdaga/capacity-planner/internal/apperr"
	"github.com/jimdaga/capacity-planner/internal/reschedule"
)

// DefaultTTL bounds how long an unapplied proposal can be applied.
const DefaultTTL = 12 * time.Hour

// Store holds pending proposals by proposal id.
type Store interface {
	Put(ctx context.Context, r *reschedule.Result) error
	Get(ctx context.Context, proposalID string) (*reschedule.Result, error)
	Delete(ctx context.Context, proposalID string) error
}

// RedisStore keeps proposals as JSON values with a TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive ttl uses DefaultTTL.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

func key(id string) string { return "planner:proposal:" + id }

func (s *RedisStore) Put(ctx context.Context, r *reschedule.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}
	if err := s.rdb.Set(ctx, key(r.ProposalID), data, s.ttl).Err(); err != nil {
		return apperr.External("redis", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, proposalID string) (*reschedule.Result, error) {
	data, err := s.rdb.Get(ctx, key(proposalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("proposal", proposalID)
	}
	if err != nil {
		return nil, apperr.External("redis", err)
	}
	var r reschedule.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}
	return &r, nil
}

func (s *RedisStore) Delete(ctx context.Context, proposalID string) error {
	if err := s.rdb.Del(ctx, key(proposalID)).Err(); err != nil {
		return apperr.External("redis", err)
	}
	return nil
}

// Close closes the Redis client connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

type entry struct {
	result  reschedule.Result
	expires time.Time
}

// MemoryStore is a process-local Store for single-instance runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, entries: map[string]entry{}, Now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, r *reschedule.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	for id, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, id)
		}
	}
	s.entries[r.ProposalID] = entry{result: *r, expires: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, proposalID string) (*reschedule.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[proposalID]
	if !ok || s.Now().After(e.expires) {
		return nil, apperr.NotFound("proposal", proposalID)
	}
	r := e.result
	return &r, nil
}

func (s *MemoryStore) Delete(_ context.Context, proposalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, proposalID)
	return nil
}
