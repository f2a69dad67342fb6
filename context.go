package eventbus

import (
	"context"
	"log/slog"
)

type contextKey int

const deliveryContextKey contextKey = iota

// deliveryInfo is attached to the handler context for every attempt.
type deliveryInfo struct {
	eventID        string
	eventType      string
	source         string
	correlationID  string
	subscriptionID SubscriptionID
	attempt        int
	maxRetries     int
	logger         *slog.Logger
}

func contextWithDelivery(ctx context.Context, d *deliveryInfo) context.Context {
	return context.WithValue(ctx, deliveryContextKey, d)
}

func deliveryFrom(ctx context.Context) *deliveryInfo {
	d, _ := ctx.Value(deliveryContextKey).(*deliveryInfo)
	return d
}

// ContextEventID returns the id of the envelope being delivered.
func ContextEventID(ctx context.Context) string {
	if d := deliveryFrom(ctx); d != nil {
		return d.eventID
	}
	return ""
}

// ContextEventType returns the type of the envelope being delivered.
func ContextEventType(ctx context.Context) string {
	if d := deliveryFrom(ctx); d != nil {
		return d.eventType
	}
	return ""
}

// ContextSource returns the source of the envelope being delivered.
func ContextSource(ctx context.Context) string {
	if d := deliveryFrom(ctx); d != nil {
		return d.source
	}
	return ""
}

// ContextCorrelationID returns the correlation id of the envelope being delivered.
func ContextCorrelationID(ctx context.Context) string {
	if d := deliveryFrom(ctx); d != nil {
		return d.correlationID
	}
	return ""
}

// ContextSubscriptionID returns the id of the subscription receiving the envelope.
func ContextSubscriptionID(ctx context.Context) SubscriptionID {
	if d := deliveryFrom(ctx); d != nil {
		return d.subscriptionID
	}
	return ""
}

// ContextAttempt returns the 1-based attempt number, or 0 outside a delivery.
func ContextAttempt(ctx context.Context) int {
	if d := deliveryFrom(ctx); d != nil {
		return d.attempt
	}
	return 0
}

// ContextMaxRetries returns the retry budget of the subscription receiving
// the envelope. An attempt greater than it is the last one.
func ContextMaxRetries(ctx context.Context) int {
	if d := deliveryFrom(ctx); d != nil {
		return d.maxRetries
	}
	return 0
}

// ContextLogger returns a logger scoped to the delivery, or slog.Default()
// outside one.
func ContextLogger(ctx context.Context) *slog.Logger {
	if d := deliveryFrom(ctx); d != nil && d.logger != nil {
		return d.logger
	}
	return slog.Default()
}
