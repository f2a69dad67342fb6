package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// DefaultBusName is the name of the bus returned by Default.
var DefaultBusName = "eventbus"

// Bus is an in-process event bus.
//
// A Bus is safe for concurrent use. It is meant to live for the whole process;
// Reset returns it to its initial empty state for test isolation.
type Bus struct {
	id     string
	name   string
	source string
	logger *slog.Logger

	registry    *registry
	deadLetters deadLetterStore
	counters    counters

	instruments     *instruments
	tracer          trace.Tracer
	recoveryEnabled bool

	maxRetries     int
	retryDelay     time.Duration
	requestTimeout time.Duration
	limiter        *rate.Limiter
}

// New creates a new bus.
//
// Example:
//
//	bus := eventbus.New("campus",
//	    eventbus.WithSource("feed"),
//	    eventbus.WithRetryPolicy(5, 200*time.Millisecond),
//	)
func New(name string, opts ...Option) *Bus {
	o := newOptions(opts...)
	if name == "" {
		name = DefaultBusName
	}

	b := &Bus{
		id:              NewID(),
		name:            name,
		source:          o.source,
		logger:          o.logger.With("component", "eventbus>"+name),
		registry:        newRegistry(),
		recoveryEnabled: o.recoveryEnabled,
		maxRetries:      o.maxRetries,
		retryDelay:      o.retryDelay,
		requestTimeout:  o.requestTimeout,
		limiter:         o.limiter,
	}

	mp, tp := o.providers()
	inst, err := newInstruments(mp, name)
	if err != nil {
		b.logger.Warn("failed to register metrics instruments", "error", err)
	}
	b.instruments = inst
	b.tracer = tp.Tracer(name)

	return b
}

var defaultBus = sync.OnceValue(func() *Bus {
	return New(DefaultBusName)
})

// Default returns the process-wide bus, creating it on first use.
func Default() *Bus {
	return defaultBus()
}

// ID returns the bus ID
func (b *Bus) ID() string {
	return b.id
}

// Name returns the bus name
func (b *Bus) Name() string {
	return b.name
}

// Logger returns the bus logger
func (b *Bus) Logger() *slog.Logger {
	return b.logger
}

// Subscribe registers handler for eventType, or for every type when eventType
// is WildcardType. The returned id removes exactly this subscription when
// passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler, opts ...SubscribeOption) (SubscriptionID, error) {
	return b.subscribe(SubscriptionID(NewID()), eventType, handler, opts...)
}

func (b *Bus) subscribe(id SubscriptionID, eventType string, handler Handler, opts ...SubscribeOption) (SubscriptionID, error) {
	if eventType == "" {
		return "", ErrEmptyEventType
	}
	if handler == nil {
		return "", ErrNilHandler
	}

	o := newSubscribeOptions(b.maxRetries, b.retryDelay, opts...)
	b.registry.add(&subscription{
		id:         id,
		eventType:  eventType,
		name:       o.name,
		handler:    Chain(handler, o.middleware...),
		maxRetries: o.maxRetries,
		retryDelay: o.retryDelay,
		filter:     o.filter,
	})

	b.logger.Debug("subscribed",
		"event", eventType,
		"subscription", id,
		"name", o.name,
		"max_retries", o.maxRetries,
		"retry_delay", o.retryDelay)
	return id, nil
}

// Unsubscribe removes the subscription. Deliveries already in flight finish.
// Returns false if the subscription is unknown or was already removed.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	sub, ok := b.registry.remove(id)
	if ok {
		b.logger.Debug("unsubscribed", "event", sub.eventType, "subscription", id)
	}
	return ok
}

// Publish delivers env to every subscription of its type plus every wildcard
// subscription, and returns once each delivery succeeded or was dead-lettered.
//
// Handler failures never surface here. Publish fails only when env has no
// type, or when a publish rate limit is configured and ctx ends while waiting
// for a token. Cancelling ctx after delivery started does not abort retries.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	if env.Type == "" {
		return ErrEmptyEventType
	}
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("publish rate limit: %w", err)
		}
	}

	env = b.stamp(env)
	b.counters.emitted.Add(1)
	b.instruments.emitted.Add(ctx, 1, eventTypeAttr(env.Type))

	subs := b.registry.match(env.Type)

	ctx, span := b.tracer.Start(ctx, env.Type+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String(spanKeyEventID, env.EventID),
			attribute.String(spanKeyEventType, env.Type),
			attribute.String(spanKeyEventSource, env.Source),
			attribute.String(spanKeyEventBus, b.name),
			attribute.String(spanKeyCorrelationID, env.CorrelationID),
			attribute.Int(spanKeySubscribers, len(subs))))
	defer span.End()

	b.deliver(context.WithoutCancel(ctx), env, subs)
	return nil
}

// Redeliver runs env through a single subscription: its filter, middleware,
// retries and dead-lettering, exactly as Publish would. Other subscribers of
// env.Type, wildcards included, do not see it. The emitted counter is left
// alone since nothing new was published.
//
// Redeliver fails with ErrSubscriptionNotFound when id is not registered.
func (b *Bus) Redeliver(ctx context.Context, id SubscriptionID, env Envelope) error {
	if env.Type == "" {
		return ErrEmptyEventType
	}
	sub, ok := b.registry.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}

	env = b.stamp(env)
	ctx, span := b.tracer.Start(ctx, env.Type+" redeliver",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String(spanKeyEventID, env.EventID),
			attribute.String(spanKeyEventType, env.Type),
			attribute.String(spanKeyEventBus, b.name),
			attribute.String(spanKeySubscriptionID, string(id))))
	defer span.End()

	b.dispatch(context.WithoutCancel(ctx), sub, env.clone())
	return nil
}

// stamp fills the fields Publish guarantees to handlers.
func (b *Bus) stamp(env Envelope) Envelope {
	if env.EventID == "" {
		env.EventID = NewID()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	if env.Source == "" {
		env.Source = b.source
	}
	env.Metadata = env.Metadata.Copy()
	return env
}

// DrainDeadLetterQueue returns every dead-letter entry and clears the queue.
// The dead-letter count drops to zero in the same step.
func (b *Bus) DrainDeadLetterQueue() []DeadLetterEntry {
	return b.deadLetters.drain()
}

// DeadLetterQueue returns a copy of the dead-letter entries without removing them.
func (b *Bus) DeadLetterQueue() []DeadLetterEntry {
	return b.deadLetters.snapshot()
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	return Metrics{
		TotalEmitted:    b.counters.emitted.Load(),
		TotalDelivered:  b.counters.delivered.Load(),
		TotalFailed:     b.counters.failed.Load(),
		DeadLetterCount: int64(b.deadLetters.len()),
	}
}

// Subscriptions returns the number of handlers per event type.
// Wildcard handlers are counted under "*".
func (b *Bus) Subscriptions() map[string]int {
	return b.registry.counts()
}

// Reset removes every subscription, empties the dead-letter queue and zeroes
// the counters. OpenTelemetry instruments are cumulative and are not reset.
func (b *Bus) Reset() {
	b.registry.clear()
	b.deadLetters.drain()
	b.counters.reset()
	b.logger.Debug("bus reset")
}
