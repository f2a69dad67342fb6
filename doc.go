// Package eventbus provides an in-process publish/subscribe router used to
// decouple application modules from each other.
//
// Producers publish envelopes keyed by a dot-namespaced event type
// ("posts.created", "notifications.sent"). Consumers subscribe to an exact type
// or to every type via the wildcard "*". Each subscription carries its own retry
// policy and filter predicate. Handlers run concurrently, failures are retried
// with exponential back-off, and deliveries that exhaust their retries end up in
// an in-memory dead-letter queue for operators to inspect and drain.
//
// Basic example:
//
//	bus := eventbus.New("campus")
//
//	id, err := bus.Subscribe("posts.created", func(ctx context.Context, env eventbus.Envelope) error {
//	    return notify(ctx, env.Payload)
//	}, eventbus.WithMaxRetries(5))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Unsubscribe(id)
//
//	// Publish returns once every matched handler succeeded or was dead-lettered.
//	bus.Publish(ctx, eventbus.Envelope{Type: "posts.created", Payload: post})
//
// Typed payloads:
//
//	eventbus.SubscribeTyped(bus, "posts.created", func(ctx context.Context, env eventbus.Envelope, p Post) error {
//	    return cache.Invalidate(ctx, p.AuthorID)
//	})
//
// Request/reply:
//
//	eventbus.HandleRequests(bus, "math.add", func(ctx context.Context, req eventbus.Envelope) (any, error) {
//	    in := req.Payload.(AddRequest)
//	    return AddResult{Result: in.A + in.B}, nil
//	})
//
//	reply, err := bus.Request(ctx, eventbus.Envelope{Type: "math.add", Payload: AddRequest{A: 2, B: 3}},
//	    eventbus.WithRequestTimeout(time.Second))
//	if eventbus.IsTimeout(err) {
//	    // nobody answered
//	}
//
// Bus Options:
//   - WithLogger: slog logger for the bus (default: slog.Default())
//   - WithSource: source stamped on envelopes published without one
//   - WithRetryPolicy: default retry budget and base delay for new subscriptions
//   - WithDefaultRequestTimeout: default deadline for Request (default: 5s)
//   - WithTracing, WithMetrics, WithRecovery: toggle OpenTelemetry and panic recovery
//   - WithPublishRateLimit: token bucket applied to Publish
//
// Subscription Options:
//   - WithMaxRetries, WithRetryDelay: per-subscription retry policy
//   - WithFilter: predicate evaluated before delivery; false skips the handler
//   - WithMiddleware: wrap the handler (Deduplicate, Timeout, RateLimit)
//
// Handlers that know a failure is permanent return Reject(err) to skip the
// remaining retries and dead-letter the envelope immediately.
//
// Producers and consumers should depend on the ServiceBus interface rather
// than *Bus so the in-process implementation can be swapped for a
// broker-backed one.
package eventbus
