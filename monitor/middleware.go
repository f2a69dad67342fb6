package monitor

import (
	"context"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"go.opentelemetry.io/otel/trace"
)

// Middleware records every delivery attempt in store.
//
// The entry is written as pending before the handler runs and updated with
// the outcome afterwards: completed on success, retrying when another attempt
// follows, failed when the envelope is dead-lettered. A panicking handler is
// recorded like a failed attempt. Store errors are logged and never fail the
// delivery.
//
// Example:
//
//	store := monitor.NewMemoryStore()
//	bus.Subscribe("posts.created", handler,
//	    eventbus.WithMiddleware(monitor.Middleware(store)),
//	)
func Middleware(store Store) eventbus.Middleware {
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, env eventbus.Envelope) error {
			subID := string(eventbus.ContextSubscriptionID(ctx))
			attempt := eventbus.ContextAttempt(ctx)

			entry := &Entry{
				EventID:        env.EventID,
				SubscriptionID: subID,
				EventType:      env.Type,
				Source:         env.Source,
				CorrelationID:  env.CorrelationID,
				Status:         StatusPending,
				Attempts:       attempt,
				StartedAt:      time.Now(),
			}
			if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
				entry.TraceID = sc.TraceID().String()
				entry.SpanID = sc.SpanID().String()
			}

			if err := store.Record(ctx, entry); err != nil {
				eventbus.ContextLogger(ctx).Warn("monitor record failed", "error", err)
			}

			start := time.Now()
			complete := func(handlerErr error) {
				status := outcome(ctx, attempt, handlerErr)
				if err := store.UpdateStatus(ctx, env.EventID, subID, status, handlerErr, time.Since(start)); err != nil {
					eventbus.ContextLogger(ctx).Warn("monitor update failed", "error", err)
				}
			}

			// The bus recovers handler panics; record the attempt and let it continue up.
			defer func() {
				if r := recover(); r != nil {
					complete(&eventbus.PanicError{Value: r})
					panic(r)
				}
			}()

			handlerErr := next(ctx, env)
			complete(handlerErr)
			return handlerErr
		}
	}
}

func outcome(ctx context.Context, attempt int, err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case eventbus.IsRejected(err), attempt > eventbus.ContextMaxRetries(ctx):
		return StatusFailed
	default:
		return StatusRetrying
	}
}
