package eventbus

import (
	"context"
	"time"
)

// Request publishes env and waits for the first reply on ReplyType(env.Type)
// carrying the same correlation id. A correlation id is generated when env has
// none.
//
// The reply subscription is registered before env is published and removed
// before Request returns. When no reply arrives within the timeout Request
// returns a *TimeoutError; the request publish itself keeps running. Replies
// after the first are not observed.
func (b *Bus) Request(ctx context.Context, env Envelope, opts ...RequestOption) (Envelope, error) {
	if env.Type == "" {
		return Envelope{}, ErrEmptyEventType
	}
	o := newRequestOptions(b.requestTimeout, opts...)

	if env.CorrelationID == "" {
		env.CorrelationID = NewID()
	}
	correlationID := env.CorrelationID

	replies := make(chan Envelope, 1)
	id, err := b.subscribe(SubscriptionID("reply-"+NewID()), ReplyType(env.Type),
		func(_ context.Context, reply Envelope) error {
			select {
			case replies <- reply:
			default:
			}
			return nil
		},
		WithMaxRetries(0),
		WithName("request:"+env.Type),
		WithFilter(func(reply Envelope) bool {
			return reply.CorrelationID == correlationID
		}))
	if err != nil {
		return Envelope{}, err
	}
	defer b.Unsubscribe(id)

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	published := make(chan error, 1)
	go func() {
		published <- b.Publish(context.WithoutCancel(ctx), env)
	}()

	for {
		select {
		case reply := <-replies:
			return reply, nil
		case err := <-published:
			if err != nil {
				return Envelope{}, err
			}
			published = nil
		case <-timer.C:
			b.logger.Debug("request timed out",
				"event", env.Type,
				"correlation_id", correlationID,
				"timeout", o.timeout)
			return Envelope{}, &TimeoutError{EventType: env.Type, Timeout: o.timeout}
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// RequestHandler answers a request. The returned payload is published as the
// reply; an error fails the delivery and is retried like any handler error.
type RequestHandler func(ctx context.Context, req Envelope) (any, error)

// HandleRequests subscribes h to eventType and publishes each result to
// ReplyType(eventType) with the request's correlation id.
func HandleRequests(bus ServiceBus, eventType string, h RequestHandler, opts ...SubscribeOption) (SubscriptionID, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	return bus.Subscribe(eventType, func(ctx context.Context, req Envelope) error {
		payload, err := h(ctx, req)
		if err != nil {
			return err
		}
		return bus.Publish(ctx, Reply(req, payload))
	}, opts...)
}
