package eventbus

import "context"

// Publisher publishes envelopes.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Subscriber manages subscriptions.
type Subscriber interface {
	Subscribe(eventType string, handler Handler, opts ...SubscribeOption) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID) bool
}

// Requester performs request/reply exchanges.
type Requester interface {
	Request(ctx context.Context, env Envelope, opts ...RequestOption) (Envelope, error)
}

// ServiceBus is what producers and consumers depend on. A broker-backed
// implementation can replace *Bus behind it.
type ServiceBus interface {
	Publisher
	Subscriber
	Requester
}

// Inspector exposes the operator view of a bus.
type Inspector interface {
	Metrics() Metrics
	Subscriptions() map[string]int
	DeadLetterQueue() []DeadLetterEntry
	DrainDeadLetterQueue() []DeadLetterEntry
}

// Compile-time checks
var (
	_ ServiceBus = (*Bus)(nil)
	_ Inspector  = (*Bus)(nil)
)
