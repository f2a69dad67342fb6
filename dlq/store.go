// Package dlq holds dead-lettered envelopes on the operator side.
//
// The bus keeps its dead-letter queue in memory until someone drains it. A
// Manager harvests that queue into a Store where entries can be filtered,
// inspected, exported, replayed to the subscription that failed them and expired:
//
//	mgr := dlq.NewManager(bus, bus)
//	go mgr.Run(ctx, 30*time.Second) // periodic Collect
//
//	msgs, _ := mgr.List(ctx, dlq.Filter{EventType: "posts.created", ExcludeReplayed: true})
//	n, _ := mgr.Replay(ctx, dlq.Filter{EventType: "posts.created"})
//	mgr.Cleanup(ctx, 7*24*time.Hour)
package dlq

import (
	"context"
	"errors"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
)

// ErrNotFound is returned for an unknown message id.
var ErrNotFound = errors.New("dlq message not found")

// Message is a dead-lettered envelope held by the operator store.
type Message struct {
	ID             string            `json:"id"`
	EventType      string            `json:"eventType"`
	EventID        string            `json:"eventId"`
	CorrelationID  string            `json:"correlationId,omitempty"`
	Source         string            `json:"source,omitempty"`
	Payload        any               `json:"payload"`
	Metadata       eventbus.Metadata `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	SubscriptionID string            `json:"subscriptionId"`
	ExhaustedAt    time.Time         `json:"exhaustedAt"`
	CollectedAt    time.Time         `json:"collectedAt"`
	ReplayedAt     *time.Time        `json:"replayedAt,omitempty"`
}

// FromEntry converts a bus dead-letter entry to a Message with a fresh id.
func FromEntry(e eventbus.DeadLetterEntry, collectedAt time.Time) *Message {
	var msg string
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &Message{
		ID:             eventbus.NewID(),
		EventType:      e.Envelope.Type,
		EventID:        e.Envelope.EventID,
		CorrelationID:  e.Envelope.CorrelationID,
		Source:         e.Envelope.Source,
		Payload:        e.Envelope.Payload,
		Metadata:       e.Envelope.Metadata.Copy(),
		Timestamp:      e.Envelope.Timestamp,
		Error:          msg,
		Attempts:       e.Attempts,
		SubscriptionID: string(e.SubscriptionID),
		ExhaustedAt:    e.ExhaustedAt,
		CollectedAt:    collectedAt,
	}
}

// Envelope rebuilds the envelope that failed.
func (m *Message) Envelope() eventbus.Envelope {
	return eventbus.Envelope{
		Type:          m.EventType,
		Payload:       m.Payload,
		Source:        m.Source,
		EventID:       m.EventID,
		CorrelationID: m.CorrelationID,
		Timestamp:     m.Timestamp,
		Metadata:      m.Metadata.Copy(),
	}
}

// Filter selects messages. Zero fields match everything.
type Filter struct {
	EventType       string    // exact event type
	Source          string    // exact source
	SubscriptionID  string    // exact subscription
	Since           time.Time // exhausted at or after
	Until           time.Time // exhausted at or before
	ErrorContains   string    // substring of the error text
	ExcludeReplayed bool      // skip messages already replayed
	Limit           int       // 0 = no limit
	Offset          int
}

// Match reports whether msg passes every criterion except paging.
func (f Filter) Match(msg *Message) bool {
	switch {
	case f.EventType != "" && msg.EventType != f.EventType:
		return false
	case f.Source != "" && msg.Source != f.Source:
		return false
	case f.SubscriptionID != "" && msg.SubscriptionID != f.SubscriptionID:
		return false
	case !f.Since.IsZero() && msg.ExhaustedAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && msg.ExhaustedAt.After(f.Until):
		return false
	case f.ErrorContains != "" && !containsFold(msg.Error, f.ErrorContains):
		return false
	case f.ExcludeReplayed && msg.ReplayedAt != nil:
		return false
	}
	return true
}

// Stats summarizes a store.
type Stats struct {
	Total       int64            `json:"total"`
	Pending     int64            `json:"pending"`
	Replayed    int64            `json:"replayed"`
	ByEventType map[string]int64 `json:"byEventType"`
	Oldest      *time.Time       `json:"oldest,omitempty"`
	Newest      *time.Time       `json:"newest,omitempty"`
}

// Store persists operator-side dead letters.
// Implementations must be safe for concurrent use.
type Store interface {
	// Store saves msg. An existing message with the same id is replaced.
	Store(ctx context.Context, msg *Message) error

	// Get returns a copy of the message, or ErrNotFound.
	Get(ctx context.Context, id string) (*Message, error)

	// List returns matching messages ordered by ExhaustedAt, oldest first.
	List(ctx context.Context, filter Filter) ([]*Message, error)

	// Count returns the number of matching messages, ignoring paging.
	Count(ctx context.Context, filter Filter) (int64, error)

	// MarkReplayed stamps ReplayedAt.
	MarkReplayed(ctx context.Context, id string) error

	// Delete removes a message, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteOlderThan removes messages exhausted more than age ago.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)

	// Stats summarizes the store.
	Stats(ctx context.Context) (*Stats, error)
}
