package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// NewTestBus creates a bus configured for tests: logging discarded, telemetry
// disabled and a 1ms base retry delay so retry paths run quickly. opts are
// applied last.
func NewTestBus(opts ...Option) *Bus {
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithTracing(false),
		WithMetrics(false),
		WithRetryPolicy(DefaultMaxRetries, time.Millisecond),
	}
	return New("test-bus", append(base, opts...)...)
}

// Recorder collects every envelope delivered to its handler.
type Recorder struct {
	mu        sync.Mutex
	envelopes []Envelope
	notify    chan struct{}
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Handler returns a handler that records and always succeeds.
func (r *Recorder) Handler() Handler {
	return func(_ context.Context, env Envelope) error {
		r.mu.Lock()
		r.envelopes = append(r.envelopes, env)
		r.mu.Unlock()

		select {
		case r.notify <- struct{}{}:
		default:
		}
		return nil
	}
}

// Envelopes returns a copy of the recorded envelopes in arrival order.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Envelope, len(r.envelopes))
	copy(out, r.envelopes)
	return out
}

// Types returns the recorded event types in arrival order.
func (r *Recorder) Types() []string {
	envs := r.Envelopes()
	out := make([]string, len(envs))
	for i, env := range envs {
		out[i] = env.Type
	}
	return out
}

// Count returns the number of recorded envelopes.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envelopes)
}

// WaitFor blocks until at least n envelopes were recorded or timeout elapses.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if r.Count() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Count() >= n
		}
	}
}

// Reset clears the recorded envelopes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.envelopes = nil
	r.mu.Unlock()
}

// ErrFlaky is returned by FlakyHandler while it is still failing.
var ErrFlaky = errors.New("flaky handler failure")

// FlakyHandler fails a fixed number of times before succeeding.
// A negative failure count fails forever.
type FlakyHandler struct {
	failures int64
	calls    atomic.Int64
}

// NewFlakyHandler creates a handler that fails the first failures calls.
func NewFlakyHandler(failures int) *FlakyHandler {
	return &FlakyHandler{failures: int64(failures)}
}

// Handle implements Handler.
func (f *FlakyHandler) Handle(_ context.Context, _ Envelope) error {
	n := f.calls.Add(1)
	if f.failures < 0 || n <= f.failures {
		return ErrFlaky
	}
	return nil
}

// Calls returns how many times the handler was invoked.
func (f *FlakyHandler) Calls() int {
	return int(f.calls.Load())
}
