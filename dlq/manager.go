package dlq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/ArrinPaul/Campus-Connect-sub003/codec"
)

// Metadata keys added to replayed envelopes.
const (
	MetaReplay        = "dlq.replay"
	MetaMessageID     = "dlq.message_id"
	MetaOriginalError = "dlq.original_error"
	MetaAttempts      = "dlq.attempts"
)

// Source is anything that hands over its dead letters, typically *eventbus.Bus.
type Source interface {
	DrainDeadLetterQueue() []eventbus.DeadLetterEntry
}

// Target redelivers an envelope to one subscription, typically *eventbus.Bus.
type Target interface {
	Redeliver(ctx context.Context, id eventbus.SubscriptionID, env eventbus.Envelope) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the backing store (default: NewMemoryStore()).
func WithStore(s Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager moves dead letters from the bus into a Store and back.
type Manager struct {
	source Source
	target Target
	store  Store
	logger *slog.Logger
}

// NewManager creates a manager draining src and replaying onto target.
// Both are usually the same *eventbus.Bus.
func NewManager(src Source, target Target, opts ...Option) *Manager {
	m := &Manager{
		source: src,
		target: target,
		store:  NewMemoryStore(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "dlq.manager")
	return m
}

// Collect drains the bus dead-letter queue into the store and returns the
// number of entries stored. Entries that fail to store are logged and lost;
// the bus queue has already been drained.
func (m *Manager) Collect(ctx context.Context) (int, error) {
	entries := m.source.DrainDeadLetterQueue()
	if len(entries) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	stored := 0
	var firstErr error
	for _, e := range entries {
		msg := FromEntry(e, now)
		if err := m.store.Store(ctx, msg); err != nil {
			m.logger.Error("failed to store dead letter",
				"event", msg.EventType,
				"event_id", msg.EventID,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}

	m.logger.Info("collected dead letters", "drained", len(entries), "stored", stored)
	if firstErr != nil {
		return stored, fmt.Errorf("store dead letter: %w", firstErr)
	}
	return stored, nil
}

// Run calls Collect every interval until ctx ends, then collects once more.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("dlq: interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := m.Collect(context.WithoutCancel(ctx)); err != nil {
				m.logger.Error("final collect failed", "error", err)
			}
			return nil
		case <-ticker.C:
			if _, err := m.Collect(ctx); err != nil {
				m.logger.Error("collect failed", "error", err)
			}
		}
	}
}

// Get returns a message by id.
func (m *Manager) Get(ctx context.Context, id string) (*Message, error) {
	return m.store.Get(ctx, id)
}

// List returns matching messages.
func (m *Manager) List(ctx context.Context, filter Filter) ([]*Message, error) {
	return m.store.List(ctx, filter)
}

// Count returns the number of matching messages.
func (m *Manager) Count(ctx context.Context, filter Filter) (int64, error) {
	return m.store.Count(ctx, filter)
}

// Stats summarizes the store.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	return m.store.Stats(ctx)
}

// Replay redelivers every matching message to the subscription that
// dead-lettered it and marks it replayed. Failures are logged and skipped.
// Returns the number replayed.
//
// The bus keeps one entry per failed subscription, so an envelope that failed
// on K subscriptions is redelivered K times, once to each of them. Healthy
// subscribers of the same type are not called again. Redeliver returns once
// the envelope settled, so a replay that fails again lands back in the bus
// dead-letter queue.
func (m *Manager) Replay(ctx context.Context, filter Filter) (int, error) {
	messages, err := m.store.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}

	replayed := 0
	for _, msg := range messages {
		if err := m.replay(ctx, msg); err != nil {
			m.logger.Error("failed to replay message",
				"id", msg.ID,
				"event", msg.EventType,
				"error", err)
			continue
		}
		replayed++
	}

	m.logger.Info("replayed dead letters", "matched", len(messages), "replayed", replayed)
	return replayed, nil
}

// ReplaySingle redelivers one message by id.
func (m *Manager) ReplaySingle(ctx context.Context, id string) error {
	msg, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return m.replay(ctx, msg)
}

// replay sends msg back to the subscription that failed it and marks it
// replayed. A message whose subscription is gone stays pending.
func (m *Manager) replay(ctx context.Context, msg *Message) error {
	env := msg.Envelope()
	env.Metadata = env.Metadata.
		Set(MetaReplay, true).
		Set(MetaMessageID, msg.ID).
		Set(MetaOriginalError, msg.Error).
		Set(MetaAttempts, msg.Attempts)

	// Only the subscription that dead-lettered the envelope sees it again.
	if err := m.target.Redeliver(ctx, eventbus.SubscriptionID(msg.SubscriptionID), env); err != nil {
		return fmt.Errorf("redeliver: %w", err)
	}
	if err := m.store.MarkReplayed(ctx, msg.ID); err != nil {
		return fmt.Errorf("mark replayed: %w", err)
	}
	return nil
}

// Delete removes a message.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Cleanup removes messages exhausted more than age ago.
func (m *Manager) Cleanup(ctx context.Context, age time.Duration) (int64, error) {
	deleted, err := m.store.DeleteOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		m.logger.Info("cleaned up dead letters", "deleted", deleted, "older_than", age)
	}
	return deleted, nil
}

// Export writes the matching messages to w as a single document encoded with c.
func (m *Manager) Export(ctx context.Context, w io.Writer, c codec.Codec, filter Filter) (int, error) {
	messages, err := m.store.List(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}
	data, err := c.Marshal(messages)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	return len(messages), nil
}

// Compile-time check
var _ Target = (*eventbus.Bus)(nil)
