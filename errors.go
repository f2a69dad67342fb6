package eventbus

import (
	"errors"
	"fmt"
	"time"
)

// Bus errors
var (
	ErrEmptyEventType = errors.New("event type is required")
	ErrNilHandler     = errors.New("handler is required")
	ErrRequestTimeout = errors.New("request timed out")
	ErrHandlerPanic   = errors.New("handler panicked")
	ErrPayloadType    = errors.New("unexpected payload type")
	ErrInvalidConfig  = errors.New("invalid bus configuration")

	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// ErrReject marks a handler failure as permanent.
// The remaining retries are skipped and the envelope is dead-lettered immediately.
// Use errors.Is to check for it as it is usually wrapped.
//
// Example:
//
//	func handler(ctx context.Context, env eventbus.Envelope) error {
//	    if err := validate(env.Payload); err != nil {
//	        return eventbus.Reject(err)
//	    }
//	    return process(ctx, env.Payload)
//	}
var ErrReject = errors.New("reject: do not retry, send to dead letter queue")

// Reject wraps err to mark it as a permanent failure.
func Reject(err error) error {
	if err == nil {
		return ErrReject
	}
	return fmt.Errorf("%w: %w", ErrReject, err)
}

// IsRejected reports whether err was produced by Reject.
func IsRejected(err error) bool {
	return errors.Is(err, ErrReject)
}

// TimeoutError is returned by Request when no reply arrived in time.
type TimeoutError struct {
	EventType string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %q timed out after %s", e.EventType, e.Timeout)
}

// Is lets errors.Is match ErrRequestTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrRequestTimeout
}

// IsTimeout checks if an error is a request timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: %v", ErrHandlerPanic, e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrHandlerPanic
}

// PayloadTypeError is returned when a payload cannot be converted to the
// type a typed handler expects.
type PayloadTypeError struct {
	EventType string
	Want      string
	Got       string
}

func (e *PayloadTypeError) Error() string {
	return fmt.Sprintf("%s: event %q carries %s, want %s", ErrPayloadType, e.EventType, e.Got, e.Want)
}

func (e *PayloadTypeError) Unwrap() error {
	return ErrPayloadType
}
