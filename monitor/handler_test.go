package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/ArrinPaul/Campus-Connect-sub003/codec"
	"github.com/ArrinPaul/Campus-Connect-sub003/dlq"
	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
)

func setup(t *testing.T, opts ...Option) (*eventbus.Bus, http.Handler) {
	t.Helper()
	bus := eventbus.NewTestBus()
	bus.Subscribe("posts.created", func(context.Context, eventbus.Envelope) error { return nil })
	bus.Subscribe("posts.created", func(context.Context, eventbus.Envelope) error {
		return errors.New("achievement service down")
	}, eventbus.WithMaxRetries(0))
	bus.Subscribe(eventbus.WildcardType, func(context.Context, eventbus.Envelope) error { return nil })

	bus.Publish(context.Background(), eventbus.Envelope{Type: "posts.created", Payload: "hello"})
	return bus, New(bus, opts...)
}

func do(t *testing.T, h http.Handler, method, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBusRoutes(t *testing.T) {
	bus, h := setup(t)

	t.Run("metrics", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/metrics")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		want := eventbus.Metrics{TotalEmitted: 1, TotalDelivered: 2, TotalFailed: 1, DeadLetterCount: 1}
		if diff := cmp.Diff(want, decode[eventbus.Metrics](t, rec)); diff != "" {
			t.Errorf("metrics mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("subscriptions", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/subscriptions")
		want := map[string]int{"posts.created": 2, "*": 1}
		if diff := cmp.Diff(want, decode[map[string]int](t, rec)); diff != "" {
			t.Errorf("subscriptions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("deadletters is non-destructive", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/deadletters")
		got := decode[[]codec.DeadLetter](t, rec)
		if len(got) != 1 || got[0].Error != "achievement service down" {
			t.Fatalf("unexpected dead letters %+v", got)
		}
		if bus.Metrics().DeadLetterCount != 1 {
			t.Error("GET must not drain")
		}
	})

	t.Run("msgpack negotiation", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/metrics", "Accept", "application/msgpack")
		if ct := rec.Header().Get("Content-Type"); ct != "application/msgpack" {
			t.Fatalf("expected msgpack content type, got %q", ct)
		}
		var raw map[string]any
		if err := msgpack.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
			t.Fatalf("invalid msgpack: %v", err)
		}
		if _, ok := raw["totalEmitted"]; !ok {
			t.Errorf("missing totalEmitted in %v", raw)
		}
	})

	t.Run("drain", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/deadletters/drain")
		if got := decode[[]codec.DeadLetter](t, rec); len(got) != 1 {
			t.Fatalf("expected 1 drained entry, got %d", len(got))
		}
		if bus.Metrics().DeadLetterCount != 0 {
			t.Error("drain must zero the dead-letter count")
		}
	})

	t.Run("dlq routes absent without manager", func(t *testing.T) {
		if rec := do(t, h, http.MethodGet, "/dlq/stats"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestManagerRoutes(t *testing.T) {
	bus := eventbus.NewTestBus()
	mgr := dlq.NewManager(bus, bus)
	_, h := setupWithManager(t, bus, mgr)

	rec := do(t, h, http.MethodPost, "/dlq/collect")
	if got := decode[map[string]int](t, rec); got["collected"] != 1 {
		t.Fatalf("expected 1 collected, got %v", got)
	}

	rec = do(t, h, http.MethodGet, "/dlq?event_type=posts.created&limit=10")
	msgs := decode[[]dlq.Message](t, rec)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	id := msgs[0].ID

	if rec := do(t, h, http.MethodGet, "/dlq/"+id); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/dlq/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/dlq?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/dlq/stats")
	if stats := decode[dlq.Stats](t, rec); stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	rec = do(t, h, http.MethodPost, "/dlq/"+id+"/replay")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// The handler still fails, so the replay is dead-lettered again.
	if bus.Metrics().DeadLetterCount != 1 {
		t.Errorf("expected replay to dead-letter again, count=%d", bus.Metrics().DeadLetterCount)
	}

	if rec := do(t, h, http.MethodDelete, "/dlq?older_than=bad"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/dlq/"+id); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/dlq/"+id); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func setupWithManager(t *testing.T, bus *eventbus.Bus, mgr *dlq.Manager) (*eventbus.Bus, http.Handler) {
	t.Helper()
	bus.Subscribe("posts.created", func(context.Context, eventbus.Envelope) error {
		return errors.New("cache unavailable")
	}, eventbus.WithMaxRetries(0))
	bus.Publish(context.Background(), eventbus.Envelope{Type: "posts.created", Payload: "hello"})
	return bus, New(bus, WithManager(mgr))
}

func TestDeliveryRoutes(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	bus := eventbus.NewTestBus()
	bus.Subscribe("posts.created", func(context.Context, eventbus.Envelope) error { return nil },
		eventbus.WithMiddleware(Middleware(store)))
	bus.Subscribe("posts.created", func(context.Context, eventbus.Envelope) error {
		return errors.New("feed cache down")
	}, eventbus.WithMaxRetries(1), eventbus.WithMiddleware(Middleware(store)))
	bus.Publish(context.Background(), eventbus.Envelope{Type: "posts.created", EventID: "evt-1"})

	h := New(bus, WithDeliveryStore(store))

	rec := do(t, h, http.MethodGet, "/deliveries?status=failed")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[Page](t, rec)
	if len(page.Entries) != 1 || page.Entries[0].Attempts != 2 || page.Entries[0].Error != "feed cache down" {
		t.Errorf("unexpected page %+v", page)
	}

	rec = do(t, h, http.MethodGet, "/deliveries/evt-1")
	if entries := decode[[]Entry](t, rec); len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}

	if rec := do(t, h, http.MethodGet, "/deliveries/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	for _, q := range []string{"status=lost", "has_error=maybe", "cursor=%25%25", "min_duration=soon"} {
		if rec := do(t, h, http.MethodGet, "/deliveries?"+q); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}

	rec = do(t, h, http.MethodDelete, "/deliveries?older_than=1ns")
	if got := decode[map[string]int64](t, rec); got["deleted"] != 2 {
		t.Errorf("expected 2 deleted, got %v", got)
	}
}
