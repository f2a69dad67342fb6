package monitor

import (
	"time"
)

// Status represents the processing status of a delivery.
type Status string

const (
	// StatusPending indicates an attempt has started but not completed.
	StatusPending Status = "pending"

	// StatusCompleted indicates the handler succeeded.
	StatusCompleted Status = "completed"

	// StatusRetrying indicates the last attempt failed and another one is scheduled.
	StatusRetrying Status = "retrying"

	// StatusFailed indicates the delivery was dead-lettered, either because the
	// retries ran out or because the handler rejected the envelope.
	StatusFailed Status = "failed"
)

// ParseStatus parses a status name.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusRetrying, StatusFailed:
		return st, true
	default:
		return "", false
	}
}

// Entry records one delivery: an envelope reaching one subscription.
// Every attempt of the same delivery updates the same entry.
type Entry struct {
	// (EventID, SubscriptionID) is the unique key
	EventID        string `json:"eventId"`
	SubscriptionID string `json:"subscriptionId"`

	EventType     string `json:"eventType"`
	Source        string `json:"source,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`

	// StartedAt is the start of the first attempt; Duration is the last attempt's.
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`

	TraceID string `json:"traceId,omitempty"`
	SpanID  string `json:"spanId,omitempty"`
}

// IsComplete returns true if the delivery reached a final status.
func (e *Entry) IsComplete() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// HasError returns true if the entry has an error recorded.
func (e *Entry) HasError() bool {
	return e.Error != ""
}

func (e *Entry) key() string {
	return entryKey(e.EventID, e.SubscriptionID)
}

func entryKey(eventID, subscriptionID string) string {
	return eventID + ":" + subscriptionID
}

func (e *Entry) clone() *Entry {
	c := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
