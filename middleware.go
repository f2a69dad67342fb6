package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ArrinPaul/Campus-Connect-sub003/idempotency"
	"golang.org/x/time/rate"
)

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// Chain applies mw to h so that mw[0] is the outermost wrapper.
func Chain(h Handler, mw ...Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			h = mw[i](h)
		}
	}
	return h
}

// Deduplicate skips envelopes the subscription already handled successfully.
// The key is the event id joined with the subscription id, so the same
// envelope still reaches every subscriber once. A failed attempt releases the
// key so the retry runs.
//
// Example:
//
//	store := idempotency.NewMemoryStore(time.Hour)
//	defer store.Close()
//	bus.Subscribe("posts.created", handler, eventbus.WithMiddleware(eventbus.Deduplicate(store)))
func Deduplicate(store idempotency.Store) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env Envelope) error {
			key := deliveryKey(ctx, env)

			dup, err := store.IsDuplicate(ctx, key)
			if err != nil {
				return fmt.Errorf("idempotency check: %w", err)
			}
			if dup {
				ContextLogger(ctx).Debug("skipping duplicate delivery", "key", key)
				return nil
			}

			if err := next(ctx, env); err != nil {
				if rmErr := store.Remove(ctx, key); rmErr != nil {
					ContextLogger(ctx).Warn("failed to release idempotency key", "key", key, "error", rmErr)
				}
				return err
			}

			if err := store.MarkProcessed(ctx, key); err != nil {
				ContextLogger(ctx).Warn("failed to mark delivery processed", "key", key, "error", err)
			}
			return nil
		}
	}
}

func deliveryKey(ctx context.Context, env Envelope) string {
	if sub := ContextSubscriptionID(ctx); sub != "" {
		return env.EventID + ":" + string(sub)
	}
	return env.EventID
}

// Timeout bounds each attempt with a context deadline. Handlers must observe
// ctx for the deadline to take effect.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env Envelope) error {
			if d <= 0 {
				return next(ctx, env)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, env)
		}
	}
}

// RateLimit waits for a token from l before each attempt.
func RateLimit(l *rate.Limiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, env Envelope) error {
			if err := l.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
			return next(ctx, env)
		}
	}
}
