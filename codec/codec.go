// Package codec serializes envelopes to the bus wire shape:
//
//	{ type, payload, source?, eventId?, correlationId?, timestamp? (RFC 3339), metadata? }
//
// Supported formats:
//   - JSON (default, human-readable)
//   - MessagePack (binary, compact)
//
// The in-process bus never serializes. Codecs serve the admin surface, dead-letter
// exports, and any future broker-backed bus.
package codec

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
)

// Codec errors
var (
	ErrEncodeFailure = errors.New("failed to encode envelope")
	ErrDecodeFailure = errors.New("failed to decode envelope")
)

// Codec converts envelopes to and from bytes.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Encode serializes an envelope in the wire shape.
	Encode(env eventbus.Envelope) ([]byte, error)

	// Decode deserializes bytes produced by Encode. Structured payloads come
	// back as generic maps and slices.
	Decode(data []byte) (eventbus.Envelope, error)

	// Marshal serializes an arbitrary value in this codec's format.
	Marshal(v any) ([]byte, error)

	// ContentType returns the MIME type, e.g. "application/json".
	ContentType() string

	// Name returns a short identifier, e.g. "json".
	Name() string
}

// Wire is the serialized form of an envelope.
type Wire struct {
	Type          string         `json:"type" msgpack:"type"`
	Payload       any            `json:"payload" msgpack:"payload"`
	Source        string         `json:"source,omitempty" msgpack:"source,omitempty"`
	EventID       string         `json:"eventId,omitempty" msgpack:"eventId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty" msgpack:"correlationId,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// ToWire converts an envelope to its wire form.
func ToWire(env eventbus.Envelope) Wire {
	w := Wire{
		Type:          env.Type,
		Payload:       env.Payload,
		Source:        env.Source,
		EventID:       env.EventID,
		CorrelationID: env.CorrelationID,
		Metadata:      env.Metadata.Copy(),
	}
	if !env.Timestamp.IsZero() {
		w.Timestamp = env.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return w
}

// FromWire converts a wire form back to an envelope.
func FromWire(w Wire) (eventbus.Envelope, error) {
	if w.Type == "" {
		return eventbus.Envelope{}, fmt.Errorf("%w: %w", ErrDecodeFailure, eventbus.ErrEmptyEventType)
	}
	env := eventbus.Envelope{
		Type:          w.Type,
		Payload:       w.Payload,
		Source:        w.Source,
		EventID:       w.EventID,
		CorrelationID: w.CorrelationID,
	}
	if len(w.Metadata) > 0 {
		env.Metadata = eventbus.Metadata(w.Metadata)
	}
	if w.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return eventbus.Envelope{}, errors.Join(ErrDecodeFailure, fmt.Errorf("timestamp: %w", err))
		}
		env.Timestamp = ts
	}
	return env, nil
}

// DeadLetter is the serialized form of a dead-letter entry.
type DeadLetter struct {
	Envelope       Wire   `json:"envelope" msgpack:"envelope"`
	Error          string `json:"error" msgpack:"error"`
	Attempts       int    `json:"attempts" msgpack:"attempts"`
	SubscriptionID string `json:"subscriptionId" msgpack:"subscriptionId"`
	ExhaustedAt    string `json:"exhaustedAt" msgpack:"exhaustedAt"`
}

// DeadLettersToWire converts dead-letter entries to their wire form.
func DeadLettersToWire(entries []eventbus.DeadLetterEntry) []DeadLetter {
	out := make([]DeadLetter, len(entries))
	for i, e := range entries {
		var msg string
		if e.Err != nil {
			msg = e.Err.Error()
		}
		out[i] = DeadLetter{
			Envelope:       ToWire(e.Envelope),
			Error:          msg,
			Attempts:       e.Attempts,
			SubscriptionID: string(e.SubscriptionID),
			ExhaustedAt:    e.ExhaustedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

// Default returns the default codec (JSON)
func Default() Codec {
	return JSON{}
}

var registered = []Codec{JSON{}, MsgPack{}}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, bool) {
	for _, c := range registered {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// ByContentType returns the codec for a MIME type. Parameters such as
// charset are ignored.
func ByContentType(contentType string) (Codec, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	for _, c := range registered {
		if c.ContentType() == mediaType {
			return c, true
		}
	}
	if mediaType == "application/x-msgpack" {
		return MsgPack{}, true
	}
	return nil, false
}

// Negotiate picks a codec for an HTTP Accept header, falling back to Default.
func Negotiate(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		if c, ok := ByContentType(part); ok {
			return c
		}
	}
	return Default()
}
