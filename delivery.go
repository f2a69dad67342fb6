package eventbus

import (
	"context"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// deliver fans env out to subs and waits for every delivery to settle.
// Goroutines start in registration order; completion order is not defined.
func (b *Bus) deliver(ctx context.Context, env Envelope, subs []*subscription) {
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.dispatch(ctx, sub, env.clone())
		}()
	}
	wg.Wait()
}

// dispatch runs the retry loop for one subscription:
// pending -> attempt 1..N -> delivered | dead-lettered.
func (b *Bus) dispatch(ctx context.Context, sub *subscription, env Envelope) {
	if !b.accepts(sub, env) {
		return
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= sub.maxRetries; attempt++ {
		if attempt > 0 {
			b.instruments.retries.Add(ctx, 1, eventTypeAttr(env.Type))
			sleep(backoff(sub.retryDelay, attempt-1))
		}
		attempts++

		lastErr = b.invoke(ctx, sub, env, attempts)
		if lastErr == nil {
			b.counters.delivered.Add(1)
			b.instruments.delivered.Add(ctx, 1, eventTypeAttr(env.Type))
			return
		}

		b.logger.Debug("delivery attempt failed",
			"event", env.Type,
			"event_id", env.EventID,
			"subscription", sub.id,
			"attempt", attempts,
			"error", lastErr)

		if IsRejected(lastErr) {
			break
		}
	}

	b.counters.failed.Add(1)
	b.deadLetters.add(DeadLetterEntry{
		Envelope:       env,
		Err:            lastErr,
		Attempts:       attempts,
		SubscriptionID: sub.id,
		ExhaustedAt:    time.Now().UTC(),
	})
	b.instruments.failed.Add(ctx, 1, eventTypeAttr(env.Type))
	b.instruments.deadLettered.Add(ctx, 1, eventTypeAttr(env.Type))

	b.logger.Warn("delivery dead-lettered",
		"event", env.Type,
		"event_id", env.EventID,
		"subscription", sub.id,
		"name", sub.name,
		"attempts", attempts,
		"error", lastErr)
}

// accepts evaluates the subscription filter. A panicking filter rejects the
// envelope.
func (b *Bus) accepts(sub *subscription, env Envelope) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("filter panic recovered",
				"event", env.Type,
				"subscription", sub.id,
				"error", r)
			ok = false
		}
	}()
	return sub.filter(env)
}

// invoke runs a single attempt inside a consumer span.
func (b *Bus) invoke(ctx context.Context, sub *subscription, env Envelope, attempt int) (err error) {
	ctx, span := b.tracer.Start(ctx, env.Type+" deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String(spanKeyEventID, env.EventID),
			attribute.String(spanKeyEventType, env.Type),
			attribute.String(spanKeyEventBus, b.name),
			attribute.String(spanKeySubscriptionID, string(sub.id)),
			attribute.Int(spanKeyAttempt, attempt)))
	start := time.Now()
	defer func() {
		b.instruments.duration.Record(ctx, time.Since(start).Seconds(), eventTypeAttr(env.Type))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx = contextWithDelivery(ctx, &deliveryInfo{
		eventID:        env.EventID,
		eventType:      env.Type,
		source:         env.Source,
		correlationID:  env.CorrelationID,
		subscriptionID: sub.id,
		attempt:        attempt,
		maxRetries:     sub.maxRetries,
		logger: b.logger.With(
			"event", env.Type,
			"event_id", env.EventID,
			"subscription", sub.id),
	})

	if b.recoveryEnabled {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				b.logger.Error("handler panic recovered",
					"event", env.Type,
					"subscription", sub.id,
					"error", r,
					"stack", string(stack))
				err = &PanicError{Value: r, Stack: stack}
			}
		}()
	}

	return sub.handler(ctx, env)
}

// backoff returns base * 2^k, saturating instead of overflowing.
func backoff(base time.Duration, k int) time.Duration {
	if base <= 0 {
		return 0
	}
	if k >= 62 || base > math.MaxInt64>>k {
		return math.MaxInt64
	}
	return base << k
}

// sleep waits on a timer so other deliveries keep running.
func sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	<-t.C
}
