package eventbus

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Handler processes a delivered envelope. A non-nil error fails the attempt.
type Handler func(ctx context.Context, env Envelope) error

// SubscriptionID identifies a subscription. It is returned by Subscribe and
// passed to Unsubscribe.
type SubscriptionID string

// subscription is a registered handler and its delivery policy.
type subscription struct {
	id         SubscriptionID
	eventType  string
	name       string
	handler    Handler
	maxRetries int
	retryDelay time.Duration
	filter     Filter
}

// registry maps event types to subscriptions in registration order.
// Wildcard subscriptions live in their own list.
type registry struct {
	mu       sync.RWMutex
	typed    map[string][]*subscription
	wildcard []*subscription
	byID     map[SubscriptionID]*subscription
}

func newRegistry() *registry {
	return &registry{
		typed: make(map[string][]*subscription),
		byID:  make(map[SubscriptionID]*subscription),
	}
}

func (r *registry) add(s *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.eventType == WildcardType {
		r.wildcard = append(r.wildcard, s)
	} else {
		r.typed[s.eventType] = append(r.typed[s.eventType], s)
	}
	r.byID[s.id] = s
}

// remove deletes the subscription with id. The second return is false when
// no such subscription is registered.
func (r *registry) remove(id SubscriptionID) (*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)

	if s.eventType == WildcardType {
		r.wildcard = without(r.wildcard, id)
		return s, true
	}
	subs := without(r.typed[s.eventType], id)
	if len(subs) == 0 {
		delete(r.typed, s.eventType)
	} else {
		r.typed[s.eventType] = subs
	}
	return s, true
}

func (r *registry) get(id SubscriptionID) (*subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// match returns the subscriptions for eventType followed by the wildcard
// subscriptions. The result is a fresh slice owned by the caller.
func (r *registry) match(eventType string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.typed[eventType]
	out := make([]*subscription, 0, len(typed)+len(r.wildcard))
	out = append(out, typed...)
	return append(out, r.wildcard...)
}

// counts returns the number of handlers per event type, wildcards under "*".
func (r *registry) counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.typed)+1)
	for eventType, subs := range r.typed {
		out[eventType] = len(subs)
	}
	if len(r.wildcard) > 0 {
		out[WildcardType] = len(r.wildcard)
	}
	return out
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.typed = make(map[string][]*subscription)
	r.wildcard = nil
	r.byID = make(map[SubscriptionID]*subscription)
}

// without returns subs minus the entry with id, never mutating the input
// since published snapshots may still reference it.
func without(subs []*subscription, id SubscriptionID) []*subscription {
	i := slices.IndexFunc(subs, func(s *subscription) bool { return s.id == id })
	if i < 0 {
		return subs
	}
	out := make([]*subscription, 0, len(subs)-1)
	out = append(out, subs[:i]...)
	return append(out, subs[i+1:]...)
}
