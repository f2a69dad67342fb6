// Package idempotency tracks which deliveries were already handled so that a
// redelivered or replayed envelope is not processed twice by the same
// subscriber.
//
// Keys are opaque strings. The eventbus Deduplicate middleware uses
// "<event id>:<subscription id>", which keeps fan-out intact: every
// subscriber still sees an envelope once.
//
// Two stores are provided:
//   - MemoryStore for a single process
//   - RedisStore for several processes sharing one Redis
//
// Usage:
//
//	store := idempotency.NewMemoryStore(time.Hour)
//	defer store.Close()
//
//	dup, err := store.IsDuplicate(ctx, key)
//	if err != nil || dup {
//	    return err
//	}
//	if err := process(ctx); err != nil {
//	    store.Remove(ctx, key)
//	    return err
//	}
//	return store.MarkProcessed(ctx, key)
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyProcessed can be returned by handlers that detect a duplicate
// themselves.
var ErrAlreadyProcessed = errors.New("message already processed")

// Store defines the interface for idempotency tracking.
// Implementations must be safe for concurrent use.
type Store interface {
	// IsDuplicate reports whether key was already processed.
	//
	// Atomic implementations (RedisStore) also claim the key when they
	// return false, so a concurrent caller sees a duplicate. Callers that
	// fail to process must Remove the key to release it.
	IsDuplicate(ctx context.Context, key string) (bool, error)

	// MarkProcessed records key with the store's default TTL.
	MarkProcessed(ctx context.Context, key string) error

	// MarkProcessedWithTTL records key with a custom TTL.
	MarkProcessedWithTTL(ctx context.Context, key string, ttl time.Duration) error

	// Remove forgets key. Removing an unknown key is not an error.
	Remove(ctx context.Context, key string) error
}
