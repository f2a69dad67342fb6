// Package monitor exposes a bus over HTTP for operators and records
// per-delivery status through Middleware.
//
// Routes:
//
//	GET    /metrics              counters snapshot
//	GET    /subscriptions        handler count per event type
//	GET    /deadletters          bus dead-letter queue (non-destructive)
//	POST   /deadletters/drain    drain the bus dead-letter queue
//
// With WithManager, the operator store is exposed as well:
//
//	GET    /dlq                  list (event_type, source, error, exclude_replayed, limit, offset)
//	GET    /dlq/stats            store summary
//	POST   /dlq/collect          move the bus queue into the store
//	POST   /dlq/replay           replay matching messages (same query as list)
//	GET    /dlq/{id}             one message
//	POST   /dlq/{id}/replay      replay one message
//	DELETE /dlq/{id}             delete one message
//	DELETE /dlq?older_than=72h   cleanup
//
// With WithDeliveryStore, the delivery log written by Middleware:
//
//	GET    /deliveries                 list (event_id, subscription_id, event_type, status,
//	                                   has_error, since, until, min_duration, min_attempts,
//	                                   cursor, limit, order=desc)
//	GET    /deliveries/{eventID}       every subscription's entry for one event
//	DELETE /deliveries?older_than=24h  cleanup
//
// Responses are JSON unless the Accept header asks for MessagePack.
package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/ArrinPaul/Campus-Connect-sub003/codec"
	"github.com/ArrinPaul/Campus-Connect-sub003/dlq"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Option configures a Handler.
type Option func(*Handler)

// WithManager exposes the operator dead-letter store under /dlq.
func WithManager(m *dlq.Manager) Option {
	return func(h *Handler) {
		h.manager = m
	}
}

// WithDeliveryStore exposes the delivery log under /deliveries.
func WithDeliveryStore(s Store) Option {
	return func(h *Handler) {
		h.deliveries = s
	}
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// Handler implements http.Handler for the bus admin routes.
type Handler struct {
	bus        eventbus.Inspector
	manager    *dlq.Manager
	deliveries Store
	router     chi.Router
	logger     *slog.Logger
}

// New creates an admin handler for bus.
func New(bus eventbus.Inspector, opts ...Option) *Handler {
	h := &Handler{
		bus:    bus,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "monitor")

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", h.handleMetrics)
	r.Get("/subscriptions", h.handleSubscriptions)
	r.Get("/deadletters", h.handleDeadLetters)
	r.Post("/deadletters/drain", h.handleDrain)

	if h.manager != nil {
		r.Route("/dlq", func(r chi.Router) {
			r.Get("/", h.handleList)
			r.Delete("/", h.handleCleanup)
			r.Get("/stats", h.handleStats)
			r.Post("/collect", h.handleCollect)
			r.Post("/replay", h.handleReplay)
			r.Get("/{id}", h.handleGet)
			r.Delete("/{id}", h.handleDelete)
			r.Post("/{id}/replay", h.handleReplaySingle)
		})
	}

	if h.deliveries != nil {
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", h.handleDeliveries)
			r.Delete("/", h.handleDeliveriesCleanup)
			r.Get("/{eventID}", h.handleDeliveriesByEvent)
		})
	}

	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, r, http.StatusOK, h.bus.Metrics())
}

func (h *Handler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, r, http.StatusOK, h.bus.Subscriptions())
}

func (h *Handler) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, r, http.StatusOK, codec.DeadLettersToWire(h.bus.DeadLetterQueue()))
}

func (h *Handler) handleDrain(w http.ResponseWriter, r *http.Request) {
	entries := h.bus.DrainDeadLetterQueue()
	h.logger.Info("dead-letter queue drained over http", "entries", len(entries))
	h.writeResponse(w, r, http.StatusOK, codec.DeadLettersToWire(entries))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	msgs, err := h.manager.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, msgs)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, stats)
}

func (h *Handler) handleCollect(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.Collect(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, map[string]int{"collected": n})
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.manager.Replay(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, map[string]int{"replayed": n})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	msg, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeResponse(w, r, http.StatusOK, msg)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReplaySingle(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ReplaySingle(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeResponse(w, r, http.StatusOK, map[string]int{"replayed": 1})
}

// handleCleanup handles DELETE /dlq?older_than=<duration>
func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	age, err := parseAge(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := h.manager.Cleanup(r.Context(), age)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	filter, err := parseDeliveryFilter(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.deliveries.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, ErrInvalidCursor) {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, page)
}

func (h *Handler) handleDeliveriesByEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	entries, err := h.deliveries.GetByEventID(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if len(entries) == 0 {
		h.writeError(w, r, http.StatusNotFound, "no deliveries for event "+eventID)
		return
	}
	h.writeResponse(w, r, http.StatusOK, entries)
}

func (h *Handler) handleDeliveriesCleanup(w http.ResponseWriter, r *http.Request) {
	age, err := parseAge(r)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := h.deliveries.DeleteOlderThan(r.Context(), age)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeResponse(w, r, http.StatusOK, map[string]int64{"deleted": deleted})
}

func parseAge(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("older_than")
	if raw == "" {
		return 0, errors.New("older_than is required")
	}
	age, err := time.ParseDuration(raw)
	if err != nil || age <= 0 {
		return 0, errors.New("older_than must be a positive duration")
	}
	return age, nil
}

func parseDeliveryFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{
		EventID:        q.Get("event_id"),
		SubscriptionID: q.Get("subscription_id"),
		EventType:      q.Get("event_type"),
		Cursor:         q.Get("cursor"),
		OrderDesc:      q.Get("order") == "desc",
	}

	if v := q.Get("status"); v != "" {
		for _, name := range strings.Split(v, ",") {
			st, ok := ParseStatus(strings.TrimSpace(name))
			if !ok {
				return f, fmt.Errorf("invalid status %q", name)
			}
			f.Status = append(f.Status, st)
		}
	}
	if v := q.Get("has_error"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("invalid has_error")
		}
		f.HasError = &b
	}

	var err error
	if v := q.Get("since"); v != "" {
		if f.StartTime, err = time.Parse(time.RFC3339, v); err != nil {
			return f, errors.New("invalid since, want RFC 3339")
		}
	}
	if v := q.Get("until"); v != "" {
		if f.EndTime, err = time.Parse(time.RFC3339, v); err != nil {
			return f, errors.New("invalid until, want RFC 3339")
		}
	}
	if v := q.Get("min_duration"); v != "" {
		if f.MinDuration, err = time.ParseDuration(v); err != nil {
			return f, errors.New("invalid min_duration")
		}
	}
	if v := q.Get("min_attempts"); v != "" {
		if f.MinAttempts, err = strconv.Atoi(v); err != nil {
			return f, errors.New("invalid min_attempts")
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, errors.New("invalid limit")
		}
	}
	return f, nil
}

func parseFilter(r *http.Request) (dlq.Filter, error) {
	q := r.URL.Query()
	f := dlq.Filter{
		EventType:      q.Get("event_type"),
		Source:         q.Get("source"),
		SubscriptionID: q.Get("subscription_id"),
		ErrorContains:  q.Get("error"),
	}

	var err error
	if v := q.Get("exclude_replayed"); v != "" {
		if f.ExcludeReplayed, err = strconv.ParseBool(v); err != nil {
			return f, errors.New("invalid exclude_replayed")
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			return f, errors.New("invalid limit")
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			return f, errors.New("invalid offset")
		}
	}
	if v := q.Get("since"); v != "" {
		if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return f, errors.New("invalid since, want RFC 3339")
		}
	}
	if v := q.Get("until"); v != "" {
		if f.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return f, errors.New("invalid until, want RFC 3339")
		}
	}
	return f, nil
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dlq.ErrNotFound) {
		h.writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	h.writeError(w, r, http.StatusInternalServerError, err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeResponse(w, r, status, errorResponse{Error: msg})
}

func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	c := codec.Negotiate(r.Header.Get("Accept"))
	data, err := c.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode response", "codec", c.Name(), "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}
