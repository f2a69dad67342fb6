package idempotency

import (
	"context"
	"sync"
	"time"
)

const (
	defaultCleanupInterval = time.Minute
	defaultMaxEntries      = 100000
)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCleanupInterval sets how often expired keys are swept.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithMaxEntries caps the number of tracked keys. When full, expired keys are
// dropped first, then the keys closest to expiry. 0 means unlimited.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.maxEntries = n
		}
	}
}

// MemoryStore implements Store in process memory with per-key expiry.
// State is lost on restart and is not shared between processes.
type MemoryStore struct {
	mu              sync.RWMutex
	entries         map[string]time.Time // key -> expiry
	ttl             time.Duration
	cleanupInterval time.Duration
	maxEntries      int
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryStore creates a store that remembers keys for ttl.
// A background goroutine sweeps expired keys; call Close to stop it.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &MemoryStore{
		entries:         make(map[string]time.Time),
		ttl:             ttl,
		cleanupInterval: defaultCleanupInterval,
		maxEntries:      defaultMaxEntries,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanup()
	return s
}

// IsDuplicate reports whether key was processed and has not expired.
func (s *MemoryStore) IsDuplicate(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiry), nil
}

// MarkProcessed records key with the default TTL.
func (s *MemoryStore) MarkProcessed(ctx context.Context, key string) error {
	return s.MarkProcessedWithTTL(ctx, key, s.ttl)
}

// MarkProcessedWithTTL records key with a custom TTL, replacing any previous expiry.
func (s *MemoryStore) MarkProcessedWithTTL(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evict(now)
	}
	s.entries[key] = now.Add(ttl)
	return nil
}

// Remove forgets key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys, including expired keys not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// evict makes room for one entry. Caller holds the write lock.
func (s *MemoryStore) evict(now time.Time) {
	s.sweep(now)
	if len(s.entries) < s.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, expiry := range s.entries {
		if oldestKey == "" || expiry.Before(oldest) {
			oldestKey, oldest = key, expiry
		}
	}
	delete(s.entries, oldestKey)
}

// sweep drops expired keys. Caller holds the write lock.
func (s *MemoryStore) sweep(now time.Time) {
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.sweep(time.Now())
			s.mu.Unlock()
		}
	}
}

// Compile-time check
var _ Store = (*MemoryStore)(nil)
