package eventbus

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// WildcardType subscribes a handler to every event type.
	WildcardType = "*"

	// ReplySuffix is appended to a request type to form its reply type.
	ReplySuffix = ".reply"
)

// Envelope is the unit moving through the bus.
//
// EventID and Timestamp are assigned by Publish when the producer leaves them
// empty, so handlers always observe both.
type Envelope struct {
	// Type is the dot-namespaced event type, e.g. "posts.created".
	Type string
	// Payload is the event data. The bus never inspects it.
	Payload any
	// Source names the producing module.
	Source string
	// EventID uniquely identifies this envelope.
	EventID string
	// CorrelationID links a request with its reply.
	CorrelationID string
	// Timestamp is the publish time.
	Timestamp time.Time
	// Metadata is an opaque key/value bag.
	Metadata Metadata
}

// IsReply reports whether the envelope carries a reply type.
func (e Envelope) IsReply() bool {
	return strings.HasSuffix(e.Type, ReplySuffix)
}

// clone returns a copy that shares no mutable state with e.
func (e Envelope) clone() Envelope {
	e.Metadata = e.Metadata.Copy()
	return e
}

// ReplyType returns the reply type for a request type.
func ReplyType(eventType string) string {
	return eventType + ReplySuffix
}

// Reply builds the reply envelope for req carrying payload.
// The reply reuses the request's correlation id.
func Reply(req Envelope, payload any) Envelope {
	return Envelope{
		Type:          ReplyType(req.Type),
		Payload:       payload,
		CorrelationID: req.CorrelationID,
	}
}

var idCounter atomic.Uint64

// NewID generates a new unique ID.
// Falls back to a time-based id if the random source fails.
func NewID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(idCounter.Add(1), 36)
	}
	return id.String()
}
