package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to every key written by RedisStore.
const DefaultRedisPrefix = "eventbus:delivered:"

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix, e.g. per environment or tenant.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// RedisStore implements Store on Redis so several processes share state.
//
// IsDuplicate uses SET NX with the default TTL, so the first caller claims the
// key atomically and concurrent callers see a duplicate. Keys expire on their
// own; no background goroutine is needed.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a store on client. Any go-redis client works
// (single node, failover, cluster).
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := idempotency.NewRedisStore(rdb, 24*time.Hour, idempotency.WithPrefix("campus:dedup:"))
func NewRedisStore(client redis.Cmdable, ttl time.Duration, opts ...RedisOption) *RedisStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsDuplicate claims key with SET NX. It returns true when the key already
// existed.
func (s *RedisStore) IsDuplicate(ctx context.Context, key string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.prefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !set, nil
}

// MarkProcessed records key with the default TTL, refreshing the claim made
// by IsDuplicate.
func (s *RedisStore) MarkProcessed(ctx context.Context, key string) error {
	return s.MarkProcessedWithTTL(ctx, key, s.ttl)
}

// MarkProcessedWithTTL records key with a custom TTL.
func (s *RedisStore) MarkProcessedWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes key.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Compile-time check
var _ Store = (*RedisStore)(nil)
