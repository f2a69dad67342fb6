package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type addRequest struct {
	A, B int
}

type addResult struct {
	Result int
}

func TestRequestReply(t *testing.T) {
	bus := NewTestBus()
	_, err := HandleRequests(bus, "math.add", func(ctx context.Context, req Envelope) (any, error) {
		in := req.Payload.(addRequest)
		return addResult{Result: in.A + in.B}, nil
	})
	if err != nil {
		t.Fatalf("HandleRequests failed: %v", err)
	}

	reply, err := bus.Request(context.Background(), Envelope{Type: "math.add", Payload: addRequest{A: 2, B: 3}})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if diff := cmp.Diff(addResult{Result: 5}, reply.Payload); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	if reply.Type != "math.add.reply" || !reply.IsReply() {
		t.Errorf("unexpected reply type %q", reply.Type)
	}
	if reply.CorrelationID == "" {
		t.Error("expected generated correlation id on reply")
	}
	if _, ok := bus.Subscriptions()["math.add.reply"]; ok {
		t.Error("reply subscription must be removed after Request")
	}
}

func TestRequestKeepsCorrelationID(t *testing.T) {
	bus := NewTestBus()
	HandleRequests(bus, "profile.get", func(ctx context.Context, req Envelope) (any, error) {
		return "ok", nil
	})

	reply, err := bus.Request(context.Background(), Envelope{Type: "profile.get", CorrelationID: "corr-7"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if reply.CorrelationID != "corr-7" {
		t.Errorf("expected corr-7, got %q", reply.CorrelationID)
	}
}

func TestRequestTimeout(t *testing.T) {
	bus := NewTestBus()

	start := time.Now()
	_, err := bus.Request(context.Background(), Envelope{Type: "search.query"}, WithRequestTimeout(20*time.Millisecond))
	elapsed := time.Since(start)

	if !IsTimeout(err) || !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	var te *TimeoutError
	errors.As(err, &te)
	if te.EventType != "search.query" || te.Timeout != 20*time.Millisecond {
		t.Errorf("unexpected timeout error %+v", te)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("returned before the timeout: %s", elapsed)
	}
	if len(bus.Subscriptions()) != 0 {
		t.Errorf("expected no leftover subscriptions, got %v", bus.Subscriptions())
	}
}

func TestRequestDefaultTimeoutFromBus(t *testing.T) {
	bus := NewTestBus(WithDefaultRequestTimeout(15 * time.Millisecond))
	_, err := bus.Request(context.Background(), Envelope{Type: "a"})
	var te *TimeoutError
	if !errors.As(err, &te) || te.Timeout != 15*time.Millisecond {
		t.Errorf("expected bus default timeout, got %v", err)
	}
}

func TestRequestIgnoresForeignCorrelation(t *testing.T) {
	bus := NewTestBus()
	bus.Subscribe("a", func(ctx context.Context, req Envelope) error {
		return bus.Publish(ctx, Envelope{Type: ReplyType("a"), CorrelationID: "someone-else"})
	})

	_, err := bus.Request(context.Background(), Envelope{Type: "a"}, WithRequestTimeout(20*time.Millisecond))
	if !IsTimeout(err) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestRequestFirstReplyWins(t *testing.T) {
	bus := NewTestBus()
	bus.Subscribe("a", func(ctx context.Context, req Envelope) error {
		bus.Publish(ctx, Reply(req, "first"))
		return bus.Publish(ctx, Reply(req, "second"))
	})

	reply, err := bus.Request(context.Background(), Envelope{Type: "a"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if reply.Payload != "first" {
		t.Errorf("expected first reply, got %v", reply.Payload)
	}
}

func TestRequestDoesNotWaitForSlowHandlers(t *testing.T) {
	bus := NewTestBus()
	release := make(chan struct{})
	defer close(release)

	bus.Subscribe("a", func(ctx context.Context, env Envelope) error {
		<-release
		return nil
	})
	HandleRequests(bus, "a", func(ctx context.Context, req Envelope) (any, error) {
		return "fast", nil
	})

	reply, err := bus.Request(context.Background(), Envelope{Type: "a"}, WithRequestTimeout(time.Second))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if reply.Payload != "fast" {
		t.Errorf("unexpected reply %v", reply.Payload)
	}
}

func TestRequestContextCancelled(t *testing.T) {
	bus := NewTestBus()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := bus.Request(ctx, Envelope{Type: "a"}, WithRequestTimeout(time.Second))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline, got %v", err)
	}
	if IsTimeout(err) {
		t.Error("context cancellation is not a request timeout")
	}
}

func TestRequestValidation(t *testing.T) {
	bus := NewTestBus()
	if _, err := bus.Request(context.Background(), Envelope{}); !errors.Is(err, ErrEmptyEventType) {
		t.Errorf("expected ErrEmptyEventType, got %v", err)
	}
	if _, err := HandleRequests(bus, "a", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("expected ErrNilHandler, got %v", err)
	}
}

func TestRequestHandlerErrorIsRetried(t *testing.T) {
	bus := NewTestBus()
	flaky := NewFlakyHandler(1)
	HandleRequests(bus, "a", func(ctx context.Context, req Envelope) (any, error) {
		if err := flaky.Handle(ctx, req); err != nil {
			return nil, err
		}
		return "recovered", nil
	})

	reply, err := bus.Request(context.Background(), Envelope{Type: "a"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if reply.Payload != "recovered" || flaky.Calls() != 2 {
		t.Errorf("expected reply after retry, got %v (calls %d)", reply.Payload, flaky.Calls())
	}
}
