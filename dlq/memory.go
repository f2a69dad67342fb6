package dlq

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*Message
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string]*Message)}
}

func clone(msg *Message) *Message {
	out := *msg
	out.Metadata = msg.Metadata.Copy()
	if msg.ReplayedAt != nil {
		t := *msg.ReplayedAt
		out.ReplayedAt = &t
	}
	return &out
}

func (s *MemoryStore) Store(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("dlq: message id is required")
	}
	s.mu.Lock()
	s.messages[msg.ID] = clone(msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(msg), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Message, error) {
	s.mu.RLock()
	matched := make([]*Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if filter.Match(msg) {
			matched = append(matched, clone(msg))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *Message) int {
		if c := a.ExhaustedAt.Compare(b.ExhaustedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if filter.Offset >= len(matched) {
		return []*Message{}, nil
	}
	matched = matched[max(filter.Offset, 0):]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, msg := range s.messages {
		if filter.Match(msg) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkReplayed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := time.Now().UTC()
	msg.ReplayedAt = &now
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-age)
	var deleted int64
	for id, msg := range s.messages {
		if msg.ExhaustedAt.Before(cutoff) {
			delete(s.messages, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByEventType: make(map[string]int64)}
	for _, msg := range s.messages {
		stats.Total++
		if msg.ReplayedAt != nil {
			stats.Replayed++
		} else {
			stats.Pending++
		}
		stats.ByEventType[msg.EventType]++

		at := msg.ExhaustedAt
		if stats.Oldest == nil || at.Before(*stats.Oldest) {
			stats.Oldest = &at
		}
		if stats.Newest == nil || at.After(*stats.Newest) {
			stats.Newest = &at
		}
	}
	return stats, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Compile-time check
var _ Store = (*MemoryStore)(nil)
