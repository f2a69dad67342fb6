package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/ArrinPaul/Campus-Connect-sub003/idempotency"
)

// Campus event types.
const (
	EventPostCreated         = "posts.created"
	EventNotificationSend    = "notifications.send"
	EventAchievementUnlocked = "achievements.unlocked"
	EventMathAdd             = "math.add"
)

// PostCreated is published by the feed after a post is stored.
type PostCreated struct {
	PostID      string   `json:"postId"`
	AuthorID    string   `json:"authorId"`
	FollowerIDs []string `json:"followerIds"`
	Body        string   `json:"body"`
}

// Notification asks the notification module to notify one user.
type Notification struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

// Achievement is published when a user unlocks a badge.
type Achievement struct {
	UserID string `json:"userId"`
	Badge  string `json:"badge"`
}

type AddRequest struct {
	A int `json:"a"`
	B int `json:"b"`
}

type AddResult struct {
	Result int `json:"result"`
}

// postBadges maps a post count to the badge it unlocks.
var postBadges = map[int]string{
	1:  "first-post",
	10: "prolific",
}

// Campus wires the application side effects onto a bus and keeps their
// results in memory.
type Campus struct {
	bus    *eventbus.Bus
	logger *slog.Logger
	subs   []eventbus.SubscriptionID

	mu            sync.Mutex
	notifications []Notification
	postCounts    map[string]int
	badges        map[string][]string
	invalidated   []string
}

// WireCampus subscribes the campus modules. Notification deliveries are
// deduplicated through store, so a replayed notification is sent at most once.
// common is applied to every subscription before its own options.
func WireCampus(bus *eventbus.Bus, store idempotency.Store, logger *slog.Logger, common ...eventbus.SubscribeOption) (*Campus, error) {
	c := &Campus{
		bus:        bus,
		logger:     logger.With("component", "campus"),
		postCounts: make(map[string]int),
		badges:     make(map[string][]string),
	}
	with := func(opts ...eventbus.SubscribeOption) []eventbus.SubscribeOption {
		return append(slices.Clone(common), opts...)
	}

	steps := []func() (eventbus.SubscriptionID, error){
		func() (eventbus.SubscriptionID, error) {
			return eventbus.SubscribeTyped(bus, EventPostCreated, c.fanOutNotifications,
				with(eventbus.WithName("notifications.fanout"))...)
		},
		func() (eventbus.SubscriptionID, error) {
			return eventbus.SubscribeTyped(bus, EventNotificationSend, c.sendNotification,
				with(eventbus.WithName("notifications.send"),
					eventbus.WithMiddleware(eventbus.Deduplicate(store)))...)
		},
		func() (eventbus.SubscriptionID, error) {
			return eventbus.SubscribeTyped(bus, EventPostCreated, c.checkAchievements,
				with(eventbus.WithName("achievements.check"))...)
		},
		func() (eventbus.SubscriptionID, error) {
			return bus.Subscribe(eventbus.WildcardType, c.invalidateCache,
				with(eventbus.WithName("cache.invalidate"), eventbus.WithMaxRetries(0))...)
		},
		func() (eventbus.SubscriptionID, error) {
			return eventbus.Respond(bus, EventMathAdd, func(_ context.Context, req AddRequest) (AddResult, error) {
				return AddResult{Result: req.A + req.B}, nil
			}, with(eventbus.WithName("math.add"))...)
		},
	}

	for _, step := range steps {
		id, err := step()
		if err != nil {
			c.Close()
			return nil, err
		}
		c.subs = append(c.subs, id)
	}

	c.logger.Info("campus modules wired", "subscriptions", len(c.subs))
	return c, nil
}

// Close unsubscribes every campus module.
func (c *Campus) Close() {
	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	c.subs = nil
}

// fanOutNotifications publishes one notification per follower. The event id
// is derived from the post event and the follower so a retried fan-out
// republishes the same ids and the deduplicating sender drops the copies.
func (c *Campus) fanOutNotifications(ctx context.Context, env eventbus.Envelope, post PostCreated) error {
	var errs []error
	for _, follower := range post.FollowerIDs {
		err := c.bus.Publish(ctx, eventbus.Envelope{
			EventID: env.EventID + ":" + follower,
			Type:    EventNotificationSend,
			Source:  "feed",
			Payload: Notification{
				UserID:  follower,
				Message: fmt.Sprintf("%s published %s", post.AuthorID, post.PostID),
			},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Campus) sendNotification(ctx context.Context, _ eventbus.Envelope, n Notification) error {
	if n.UserID == "" {
		return eventbus.Reject(errors.New("notification without recipient"))
	}
	c.mu.Lock()
	c.notifications = append(c.notifications, n)
	c.mu.Unlock()

	eventbus.ContextLogger(ctx).Debug("notification sent", "user", n.UserID)
	return nil
}

func (c *Campus) checkAchievements(ctx context.Context, _ eventbus.Envelope, post PostCreated) error {
	c.mu.Lock()
	c.postCounts[post.AuthorID]++
	badge, ok := postBadges[c.postCounts[post.AuthorID]]
	if ok {
		c.badges[post.AuthorID] = append(c.badges[post.AuthorID], badge)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.bus.Publish(ctx, eventbus.Envelope{
		Type:    EventAchievementUnlocked,
		Source:  "gamification",
		Payload: Achievement{UserID: post.AuthorID, Badge: badge},
	})
}

// invalidateCache drops the cached views of the namespace an event touches.
func (c *Campus) invalidateCache(_ context.Context, env eventbus.Envelope) error {
	if env.IsReply() {
		return nil
	}
	namespace, _, _ := strings.Cut(env.Type, ".")
	key := "cache:" + namespace

	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.invalidated, key) {
		c.invalidated = append(c.invalidated, key)
	}
	return nil
}

// Notifications returns the notifications sent so far.
func (c *Campus) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.notifications)
}

// Badges returns the badges unlocked by user.
func (c *Campus) Badges(user string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.badges[user])
}

// InvalidatedKeys returns the cache keys invalidated so far, first seen first.
func (c *Campus) InvalidatedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.invalidated)
}
