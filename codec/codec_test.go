package codec

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"
	"syreclabs.com/go/faker"
)

func sampleEnvelope() eventbus.Envelope {
	return eventbus.Envelope{
		Type:          "posts.created",
		Payload:       map[string]any{"postId": faker.Lorem().Characters(12), "title": faker.Lorem().Sentence(4)},
		Source:        "feed",
		EventID:       eventbus.NewID(),
		CorrelationID: eventbus.NewID(),
		Timestamp:     time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC),
		Metadata:      eventbus.Metadata{"tenant": "campus-north"},
	}
}

func TestCodecs(t *testing.T) {
	for _, c := range []Codec{JSON{}, MsgPack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			env := sampleEnvelope()

			data, err := c.Encode(env)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(env, got); diff != "" {
				t.Errorf("envelope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSONWireShape(t *testing.T) {
	env := eventbus.Envelope{
		Type:      "math.add",
		Payload:   map[string]int{"a": 2, "b": 3},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := JSON{}.Encode(env)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := map[string]any{
		"type":      "math.add",
		"payload":   map[string]any{"a": float64(2), "b": float64(3)},
		"timestamp": "2026-01-02T03:04:05Z",
	}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("wire shape mismatch (-want +got):\n%s", diff)
	}
}

func TestMsgPackUsesJSONNames(t *testing.T) {
	data, err := MsgPack{}.Marshal(eventbus.Metrics{TotalEmitted: 3, DeadLetterCount: 1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid msgpack: %v", err)
	}
	for _, key := range []string{"totalEmitted", "totalDelivered", "totalFailed", "deadLetterCount"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %v", key, raw)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `{"type":`},
		{"missing type", `{"payload":1}`},
		{"bad timestamp", `{"type":"a","timestamp":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSON{}.Decode([]byte(tt.data))
			if !errors.Is(err, ErrDecodeFailure) {
				t.Errorf("expected ErrDecodeFailure, got %v", err)
			}
		})
	}
}

func TestDeadLettersToWire(t *testing.T) {
	env := sampleEnvelope()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	got := DeadLettersToWire([]eventbus.DeadLetterEntry{{
		Envelope:       env,
		Err:            errors.New("smtp unavailable"),
		Attempts:       4,
		SubscriptionID: "sub-1",
		ExhaustedAt:    at,
	}})

	want := []DeadLetter{{
		Envelope:       ToWire(env),
		Error:          "smtp unavailable",
		Attempts:       4,
		SubscriptionID: "sub-1",
		ExhaustedAt:    "2026-05-01T12:00:00Z",
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dead letter mismatch (-want +got):\n%s", diff)
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept string
		want   string
	}{
		{"", "json"},
		{"application/json", "json"},
		{"application/msgpack", "msgpack"},
		{"text/html, application/x-msgpack;q=0.9", "msgpack"},
		{"*/*", "json"},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.accept).Name(); got != tt.want {
			t.Errorf("Negotiate(%q) = %s, want %s", tt.accept, got, tt.want)
		}
	}

	if _, ok := ByName("msgpack"); !ok {
		t.Error("expected msgpack to be registered")
	}
	if _, ok := ByName("proto"); ok {
		t.Error("unexpected codec proto")
	}
}
