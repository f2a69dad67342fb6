package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"
)

type postCreated struct {
	PostID   string
	AuthorID string
	Body     string
}

func TestSubscribeTyped(t *testing.T) {
	bus := NewTestBus()
	var mu sync.Mutex
	var got []postCreated

	_, err := SubscribeTyped(bus, "posts.created", func(ctx context.Context, env Envelope, p postCreated) error {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeTyped failed: %v", err)
	}

	byValue := postCreated{PostID: faker.Lorem().Characters(8), AuthorID: faker.Lorem().Word(), Body: faker.Lorem().Sentence(5)}
	byPointer := postCreated{PostID: faker.Lorem().Characters(8), AuthorID: faker.Lorem().Word()}
	bus.Publish(context.Background(), Envelope{Type: "posts.created", Payload: byValue})
	bus.Publish(context.Background(), Envelope{Type: "posts.created", Payload: &byPointer})

	if diff := cmp.Diff([]postCreated{byValue, byPointer}, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeTypedRejectsWrongPayload(t *testing.T) {
	bus := NewTestBus()
	var calls int
	SubscribeTyped(bus, "posts.created", func(ctx context.Context, env Envelope, p postCreated) error {
		calls++
		return nil
	}, WithMaxRetries(3))

	bus.Publish(context.Background(), Envelope{Type: "posts.created", Payload: "not a post"})

	if calls != 0 {
		t.Error("typed handler must not run on mismatched payload")
	}
	dl := bus.DeadLetterQueue()
	if len(dl) != 1 || dl[0].Attempts != 1 {
		t.Fatalf("expected one rejected dead letter, got %+v", dl)
	}
	var pe *PayloadTypeError
	if !errors.As(dl[0].Err, &pe) {
		t.Fatalf("expected PayloadTypeError, got %v", dl[0].Err)
	}
	want := &PayloadTypeError{EventType: "posts.created", Want: "eventbus.postCreated", Got: "string"}
	if diff := cmp.Diff(want, pe); diff != "" {
		t.Errorf("error mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(dl[0].Err, ErrPayloadType) || !IsRejected(dl[0].Err) {
		t.Error("expected a rejected ErrPayloadType")
	}
}

func TestPayloadAs(t *testing.T) {
	if v, err := PayloadAs[int](Envelope{Payload: 7}); err != nil || v != 7 {
		t.Errorf("PayloadAs[int] = %v, %v", v, err)
	}
	var nilPost *postCreated
	if _, err := PayloadAs[postCreated](Envelope{Payload: nilPost}); !errors.Is(err, ErrPayloadType) {
		t.Errorf("nil pointer should not convert, got %v", err)
	}
	if _, err := PayloadAs[string](Envelope{}); !errors.Is(err, ErrPayloadType) {
		t.Errorf("nil payload should not convert, got %v", err)
	}
}

func TestRespondAndRequestAs(t *testing.T) {
	bus := NewTestBus()
	_, err := Respond(bus, "math.add", func(ctx context.Context, req addRequest) (addResult, error) {
		return addResult{Result: req.A + req.B}, nil
	})
	if err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	a, b := faker.RandomInt(-100, 100), faker.RandomInt(-100, 100)
	res, err := RequestAs[addResult](context.Background(), bus, Envelope{Type: "math.add", Payload: addRequest{A: a, B: b}})
	if err != nil {
		t.Fatalf("RequestAs failed: %v", err)
	}
	if res.Result != a+b {
		t.Errorf("expected %d, got %d", a+b, res.Result)
	}

	if _, err := RequestAs[string](context.Background(), bus, Envelope{Type: "math.add", Payload: addRequest{}}); !errors.Is(err, ErrPayloadType) {
		t.Errorf("expected payload type error on reply, got %v", err)
	}
}

func TestRespondRejectsWrongRequest(t *testing.T) {
	bus := NewTestBus()
	Respond(bus, "math.add", func(ctx context.Context, req addRequest) (addResult, error) {
		return addResult{}, nil
	})

	_, err := bus.Request(context.Background(), Envelope{Type: "math.add", Payload: "2+3"}, WithRequestTimeout(20*time.Millisecond))
	if !IsTimeout(err) {
		t.Errorf("expected timeout for rejected request, got %v", err)
	}
	if len(bus.DeadLetterQueue()) != 1 {
		t.Error("expected the malformed request to be dead-lettered")
	}
}
