package codec

import (
	"encoding/json"
	"errors"

	eventbus "github.com/ArrinPaul/Campus-Connect-sub003"
)

// JSON implements Codec using encoding/json.
// Numbers in decoded payloads are float64.
type JSON struct{}

// Encode serializes an envelope to JSON
func (c JSON) Encode(env eventbus.Envelope) ([]byte, error) {
	data, err := json.Marshal(ToWire(env))
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes JSON bytes to an envelope
func (c JSON) Decode(data []byte) (eventbus.Envelope, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return eventbus.Envelope{}, errors.Join(ErrDecodeFailure, err)
	}
	return FromWire(w)
}

// Marshal serializes v to JSON
func (c JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// ContentType returns the MIME type for JSON
func (c JSON) ContentType() string {
	return "application/json"
}

// Name returns the codec identifier
func (c JSON) Name() string {
	return "json"
}

// Compile-time check
var _ Codec = JSON{}
