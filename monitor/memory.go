package monitor

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a MemoryStore unless WithMaxEntries overrides it.
const DefaultMaxEntries = 10000

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxEntries sets how many entries are kept. When full, the entry with
// the oldest StartedAt is dropped. Zero or negative means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxEntries = n
	}
}

// MemoryStore implements Store in memory.
//
// Example:
//
//	store := monitor.NewMemoryStore()
//	defer store.Close()
//
//	bus.Subscribe("posts.created", handler, eventbus.WithMiddleware(monitor.Middleware(store)))
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int
	closed     bool
}

// NewMemoryStore creates a new in-memory monitor store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]*Entry),
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record creates or updates an entry.
func (s *MemoryStore) Record(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	e := entry.clone()
	key := e.key()
	if prev, ok := s.entries[key]; ok {
		e.StartedAt = prev.StartedAt
	} else if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range s.entries {
		if oldestKey == "" || e.StartedAt.Before(oldest) {
			oldestKey, oldest = key, e.StartedAt
		}
	}
	delete(s.entries, oldestKey)
}

// UpdateStatus sets the outcome of the latest attempt.
func (s *MemoryStore) UpdateStatus(ctx context.Context, eventID, subscriptionID string, status Status, err error, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	e, ok := s.entries[entryKey(eventID, subscriptionID)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryKey(eventID, subscriptionID))
	}

	e.Status = status
	e.Error = ""
	if err != nil {
		e.Error = err.Error()
	}
	e.Duration = duration
	now := time.Now()
	e.CompletedAt = &now
	return nil
}

// Get returns one entry.
func (s *MemoryStore) Get(ctx context.Context, eventID, subscriptionID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	e, ok := s.entries[entryKey(eventID, subscriptionID)]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return e.clone(), nil
}

// GetByEventID returns every entry for eventID ordered by StartedAt.
func (s *MemoryStore) GetByEventID(ctx context.Context, eventID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []*Entry
	for _, e := range s.entries {
		if e.EventID == eventID {
			out = append(out, e.clone())
		}
	}
	sortEntries(out, false)
	return out, nil
}

type cursor struct {
	StartedAt time.Time `json:"s"`
	Key       string    `json:"k"`
}

func encodeCursor(c cursor) string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	return c, nil
}

// compareEntries orders by StartedAt, then key.
func compareEntries(a, b *Entry) int {
	if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.key(), b.key())
}

func sortEntries(entries []*Entry, desc bool) {
	slices.SortFunc(entries, func(a, b *Entry) int {
		if desc {
			return compareEntries(b, a)
		}
		return compareEntries(a, b)
	})
}

// List returns a page of entries matching the filter.
func (s *MemoryStore) List(ctx context.Context, filter Filter) (*Page, error) {
	var after *Entry
	if filter.Cursor != "" {
		cur, err := decodeCursor(filter.Cursor)
		if err != nil {
			return nil, err
		}
		eventID, subscriptionID := splitKey(cur.Key)
		after = &Entry{EventID: eventID, SubscriptionID: subscriptionID, StartedAt: cur.StartedAt}
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	var matches []*Entry
	for _, e := range s.entries {
		if !filter.Match(e) {
			continue
		}
		if after != nil {
			c := compareEntries(e, after)
			if (!filter.OrderDesc && c <= 0) || (filter.OrderDesc && c >= 0) {
				continue
			}
		}
		matches = append(matches, e.clone())
	}
	s.mu.RUnlock()

	sortEntries(matches, filter.OrderDesc)

	limit := filter.EffectiveLimit()
	page := &Page{Entries: matches}
	if len(matches) > limit {
		page.Entries = matches[:limit]
		page.HasMore = true
		last := page.Entries[limit-1]
		page.NextCursor = encodeCursor(cursor{StartedAt: last.StartedAt, Key: last.key()})
	}
	if page.Entries == nil {
		page.Entries = []*Entry{}
	}
	return page, nil
}

// splitKey reverses entryKey. Subscription ids never contain ':' but event
// ids supplied by producers might, so the split is on the last one.
func splitKey(key string) (eventID, subscriptionID string) {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// Count returns the number of entries matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var count int64
	for _, e := range s.entries {
		if filter.Match(e) {
			count++
		}
	}
	return count, nil
}

// DeleteOlderThan removes entries started more than age ago.
func (s *MemoryStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := time.Now().Add(-age)
	var deleted int64
	for key, e := range s.entries {
		if e.StartedAt.Before(cutoff) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Close releases the entries. Later calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = nil
	return nil
}

// Len returns the number of entries in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
