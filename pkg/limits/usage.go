package limits

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageStore keeps period-bucketed usage counters.
type UsageStore interface {
	// Increment adds delta to key, setting ttl when the key is created.
	Increment(ctx context.Context, key string, delta float64, ttl time.Duration) error
	// Value returns the counter value, 0 when absent.
	Value(ctx context.Context, key string) (float64, error)
}

// RedisUsageStore implements UsageStore with INCRBYFLOAT counters.
type RedisUsageStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisUsageStore creates a Redis-backed usage store.
func NewRedisUsageStore(client redis.Cmdable, prefix string) (*RedisUsageStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &RedisUsageStore{client: client, prefix: prefix}, nil
}

// Increment adds delta to the counter. The expiry is only set on creation
// so a bucket always lives one ttl past its first write.
func (s *RedisUsageStore) Increment(ctx context.Context, key string, delta float64, ttl time.Duration) error {
	full := s.prefix + key
	if err := s.client.IncrByFloat(ctx, full, delta).Err(); err != nil {
		return fmt.Errorf("redis incrbyfloat %s: %w", full, err)
	}
	if err := s.client.ExpireNX(ctx, full, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", full, err)
	}
	return nil
}

// Value returns the counter value.
func (s *RedisUsageStore) Value(ctx context.Context, key string) (float64, error) {
	full := s.prefix + key
	raw, err := s.client.Get(ctx, full).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", full, err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse usage counter %s: %w", full, err)
	}
	return v, nil
}

type memoryCounter struct {
	value     float64
	expiresAt time.Time
}

// MemoryUsageStore implements UsageStore in process memory.
type MemoryUsageStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

// NewMemoryUsageStore creates an in-memory usage store.
func NewMemoryUsageStore(now func() time.Time) *MemoryUsageStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryUsageStore{counters: make(map[string]*memoryCounter), now: now}
}

// Increment adds delta to the counter.
func (s *MemoryUsageStore) Increment(ctx context.Context, key string, delta float64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &memoryCounter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.value += delta
	return nil
}

// Value returns the counter value.
func (s *MemoryUsageStore) Value(ctx context.Context, key string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !s.now().Before(c.expiresAt) {
		return 0, nil
	}
	return c.value, nil
}

// Sweep drops expired counters.
func (s *MemoryUsageStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
			removed++
		}
	}
	return removed
}
