package monitor

import (
	"context"
	"errors"
	"time"
)

// Store errors
var (
	ErrEntryNotFound = errors.New("monitor entry not found")
	ErrStoreClosed   = errors.New("monitor store is closed")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Store persists delivery entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Record creates or updates an entry keyed by (EventID, SubscriptionID).
	// Updating keeps the StartedAt of the first attempt.
	Record(ctx context.Context, entry *Entry) error

	// UpdateStatus sets the outcome of the latest attempt.
	UpdateStatus(ctx context.Context, eventID, subscriptionID string, status Status, err error, duration time.Duration) error

	// Get returns one entry or ErrEntryNotFound.
	Get(ctx context.Context, eventID, subscriptionID string) (*Entry, error)

	// GetByEventID returns one entry per subscription that received the event.
	GetByEventID(ctx context.Context, eventID string) ([]*Entry, error)

	// List returns a page of entries matching the filter.
	List(ctx context.Context, filter Filter) (*Page, error)

	// Count returns the number of entries matching the filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// DeleteOlderThan removes entries started more than age ago.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Filter specifies criteria for listing entries.
// All fields are optional. Empty filter returns all entries.
type Filter struct {
	EventID        string
	SubscriptionID string
	EventType      string

	Status   []Status // empty = all statuses
	HasError *bool    // nil = ignore

	StartTime time.Time // inclusive
	EndTime   time.Time // exclusive

	MinDuration time.Duration
	MinAttempts int

	// Cursor-based pagination
	Cursor    string // opaque cursor from the previous page
	Limit     int    // 0 = DefaultLimit
	OrderDesc bool   // by StartedAt, ascending by default
}

// Page is a page of entries.
type Page struct {
	Entries    []*Entry `json:"entries"`
	NextCursor string   `json:"nextCursor,omitempty"`
	HasMore    bool     `json:"hasMore"`
}

// DefaultLimit is the default page size when Limit is 0.
const DefaultLimit = 100

// MaxLimit is the maximum allowed page size.
const MaxLimit = 1000

// EffectiveLimit returns the effective limit, applying defaults and bounds.
func (f *Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	if f.Limit > MaxLimit {
		return MaxLimit
	}
	return f.Limit
}

// Match reports whether e satisfies the filter, ignoring pagination.
func (f *Filter) Match(e *Entry) bool {
	if f.EventID != "" && e.EventID != f.EventID {
		return false
	}
	if f.SubscriptionID != "" && e.SubscriptionID != f.SubscriptionID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if e.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.HasError != nil && *f.HasError != e.HasError() {
		return false
	}
	if !f.StartTime.IsZero() && e.StartedAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.StartedAt.Before(f.EndTime) {
		return false
	}
	if f.MinDuration > 0 && e.Duration < f.MinDuration {
		return false
	}
	if f.MinAttempts > 0 && e.Attempts < f.MinAttempts {
		return false
	}
	return true
}
