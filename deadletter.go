package eventbus

import (
	"sync"
	"time"
)

// DeadLetterEntry records a delivery whose retries were exhausted.
type DeadLetterEntry struct {
	// Envelope is the envelope as the failing handler received it.
	Envelope Envelope
	// Err is the last error the handler returned.
	Err error
	// Attempts is the number of times the handler was invoked.
	Attempts int
	// SubscriptionID identifies the failing subscription.
	SubscriptionID SubscriptionID
	// ExhaustedAt is when the last attempt failed.
	ExhaustedAt time.Time
}

// deadLetterStore is an append-only list until drained.
// Its length is the dead-letter count reported by Metrics.
type deadLetterStore struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
}

func (s *deadLetterStore) add(e DeadLetterEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

// drain returns every entry and empties the store in one step.
func (s *deadLetterStore) drain() []DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.entries
	s.entries = nil
	if out == nil {
		return []DeadLetterEntry{}
	}
	return out
}

func (s *deadLetterStore) snapshot() []DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeadLetterEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *deadLetterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
