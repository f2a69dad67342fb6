package codec

import (
	"bytes"
	"errors"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack implements Codec using MessagePack serialization.
// Structs are encoded with their json tag names so both codecs share one wire
// shape.
type MsgPack struct{}

func (c MsgPack) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return buf.Bytes(), nil
}

// Encode serializes an envelope to MessagePack bytes
func (c MsgPack) Encode(env eventbus.Envelope) ([]byte, error) {
	return c.marshal(ToWire(env))
}

// Decode deserializes MessagePack bytes to an envelope
func (c MsgPack) Decode(data []byte) (eventbus.Envelope, error) {
	var w Wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return eventbus.Envelope{}, errors.Join(ErrDecodeFailure, err)
	}
	return FromWire(w)
}

// Marshal serializes v to MessagePack
func (c MsgPack) Marshal(v any) ([]byte, error) {
	return c.marshal(v)
}

// ContentType returns the MIME type for MessagePack
func (c MsgPack) ContentType() string {
	return "application/msgpack"
}

// Name returns the codec identifier
func (c MsgPack) Name() string {
	return "msgpack"
}

// Compile-time check
var _ Codec = MsgPack{}
