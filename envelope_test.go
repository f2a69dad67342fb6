package eventbus

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"syreclabs.com/go/faker"
)

func TestReply(t *testing.T) {
	req := Envelope{
		Type:          "math.add",
		Payload:       1,
		Source:        "api",
		EventID:       NewID(),
		CorrelationID: faker.Lorem().Characters(12),
	}
	got := Reply(req, 5)
	want := Envelope{Type: "math.add.reply", Payload: 5, CorrelationID: req.CorrelationID}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	if req.IsReply() || !got.IsReply() {
		t.Error("IsReply mismatch")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := NewID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestMetadata(t *testing.T) {
	var md Metadata
	if md.Get("x") != nil || md.GetString("x") != "" || md.Copy() != nil || md.String() != "" {
		t.Error("nil metadata should behave as empty")
	}

	key := faker.Lorem().Word()
	md = md.Set(key, "v").Set("n", 2)
	if md.GetString(key) != "v" || md.GetString("n") != "" || md.Get("n") != 2 {
		t.Errorf("unexpected metadata %v", md)
	}

	cp := md.Copy()
	cp["n"] = 3
	if md.Get("n") != 2 {
		t.Error("Copy must not share the map")
	}

	if got := (Metadata{"b": 1, "a": "x"}).String(); got != "Metadata{a=x, b=1}" {
		t.Errorf("unexpected String %q", got)
	}
}

func TestEnvelopeClone(t *testing.T) {
	env := Envelope{Type: "a", Metadata: Metadata{"k": "v"}}
	c := env.clone()
	c.Metadata["k"] = "changed"
	if env.Metadata.GetString("k") != "v" {
		t.Error("clone must copy metadata")
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("bad payload")
	err := Reject(cause)
	if !IsRejected(err) || !errors.Is(err, cause) {
		t.Errorf("Reject should wrap both, got %v", err)
	}
	if !IsRejected(Reject(nil)) {
		t.Error("Reject(nil) should still be a rejection")
	}
	if IsRejected(cause) {
		t.Error("plain error is not a rejection")
	}

	te := &TimeoutError{EventType: "a", Timeout: 5}
	if !errors.Is(te, ErrRequestTimeout) || !IsTimeout(te) {
		t.Error("TimeoutError should match ErrRequestTimeout")
	}
	if IsTimeout(ErrRequestTimeout) {
		t.Error("bare sentinel carries no timeout details")
	}
}

func TestRegistryRemoveKeepsOrder(t *testing.T) {
	r := newRegistry()
	for _, id := range []SubscriptionID{"a", "b", "c"} {
		r.add(&subscription{id: id, eventType: "x"})
	}
	r.add(&subscription{id: "w", eventType: WildcardType})

	before := r.match("x")
	if _, ok := r.remove("b"); !ok {
		t.Fatal("expected removal")
	}

	ids := func(subs []*subscription) []SubscriptionID {
		out := make([]SubscriptionID, len(subs))
		for i, s := range subs {
			out[i] = s.id
		}
		return out
	}
	if diff := cmp.Diff([]SubscriptionID{"a", "b", "c", "w"}, ids(before)); diff != "" {
		t.Errorf("earlier match must be unaffected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]SubscriptionID{"a", "c", "w"}, ids(r.match("x"))); diff != "" {
		t.Errorf("match mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"x": 2, "*": 1}, r.counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}
