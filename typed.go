package eventbus

import (
	"context"
	"fmt"
	"reflect"
)

// TypedHandler receives the envelope payload already converted to T.
type TypedHandler[T any] func(ctx context.Context, env Envelope, payload T) error

// SubscribeTyped subscribes h to eventType. Payloads that are not a T (or a
// non-nil *T) are rejected without retry and land in the dead-letter queue.
func SubscribeTyped[T any](s Subscriber, eventType string, h TypedHandler[T], opts ...SubscribeOption) (SubscriptionID, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	return s.Subscribe(eventType, func(ctx context.Context, env Envelope) error {
		payload, err := PayloadAs[T](env)
		if err != nil {
			return Reject(err)
		}
		return h(ctx, env, payload)
	}, opts...)
}

// PayloadAs returns the payload of env as a T.
func PayloadAs[T any](env Envelope) (T, error) {
	if v, ok := env.Payload.(T); ok {
		return v, nil
	}
	if p, ok := env.Payload.(*T); ok && p != nil {
		return *p, nil
	}
	var zero T
	return zero, &PayloadTypeError{
		EventType: env.Type,
		Want:      reflect.TypeFor[T]().String(),
		Got:       fmt.Sprintf("%T", env.Payload),
	}
}

// Respond answers requests for eventType with typed payloads.
func Respond[Req, Resp any](bus ServiceBus, eventType string, h func(ctx context.Context, req Req) (Resp, error), opts ...SubscribeOption) (SubscriptionID, error) {
	if h == nil {
		return "", ErrNilHandler
	}
	return HandleRequests(bus, eventType, func(ctx context.Context, env Envelope) (any, error) {
		req, err := PayloadAs[Req](env)
		if err != nil {
			return nil, Reject(err)
		}
		return h(ctx, req)
	}, opts...)
}

// RequestAs performs a request and converts the reply payload to T.
func RequestAs[T any](ctx context.Context, r Requester, env Envelope, opts ...RequestOption) (T, error) {
	reply, err := r.Request(ctx, env, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return PayloadAs[T](reply)
}
