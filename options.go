package eventbus

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries is the number of retries after the first failed attempt.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base back-off delay.
	DefaultRetryDelay = 100 * time.Millisecond
	// DefaultRequestTimeout bounds how long Request waits for a reply.
	DefaultRequestTimeout = 5 * time.Second
)

// options holds configuration for the bus (unexported)
type options struct {
	logger          *slog.Logger
	source          string
	maxRetries      int
	retryDelay      time.Duration
	requestTimeout  time.Duration
	tracingEnabled  bool
	metricsEnabled  bool
	recoveryEnabled bool
	meterProvider   metric.MeterProvider
	tracerProvider  trace.TracerProvider
	limiter         *rate.Limiter
}

// Option configures a Bus.
type Option func(*options)

// WithLogger sets a custom logger for the bus
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSource sets the source stamped on envelopes published without one.
func WithSource(source string) Option {
	return func(o *options) {
		o.source = source
	}
}

// WithRetryPolicy sets the retry budget and base delay used by subscriptions
// that do not override them. Negative values are ignored.
func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(o *options) {
		if maxRetries >= 0 {
			o.maxRetries = maxRetries
		}
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

// WithDefaultRequestTimeout sets the timeout used by Request when the call
// does not pass WithRequestTimeout.
func WithDefaultRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithTracing enables/disables tracing for the bus
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables OpenTelemetry metrics for the bus.
// The counters returned by Bus.Metrics are always maintained.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithRecovery enables/disables panic recovery in handlers.
// A recovered panic counts as a failed attempt.
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recoveryEnabled = enabled
	}
}

// WithMeterProvider sets the meter provider (default: otel global).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the tracer provider (default: otel global).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithPublishRateLimit limits Publish to rps envelopes per second with the
// given burst. Publish waits for a token and fails only if its context ends
// first. A non-positive rps disables the limit.
func WithPublishRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		if rps <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:          slog.Default(),
		maxRetries:      DefaultMaxRetries,
		retryDelay:      DefaultRetryDelay,
		requestTimeout:  DefaultRequestTimeout,
		tracingEnabled:  true,
		metricsEnabled:  true,
		recoveryEnabled: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Filter decides whether a subscription receives an envelope.
type Filter func(Envelope) bool

// subscribeOptions holds per-subscription configuration.
// maxRetries and retryDelay start unset (-1) and fall back to the bus policy.
type subscribeOptions struct {
	name       string
	maxRetries int
	retryDelay time.Duration
	filter     Filter
	middleware []Middleware
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeOptions)

// WithMaxRetries sets how many times a failed delivery is retried.
// 0 means a single attempt. Negative values are ignored.
func WithMaxRetries(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base back-off delay. The delay before retry k
// (starting at 0) is d * 2^k. Negative values are ignored.
func WithRetryDelay(d time.Duration) SubscribeOption {
	return func(o *subscribeOptions) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithFilter sets a predicate evaluated before every delivery.
// Envelopes for which it returns false are skipped without retry.
func WithFilter(f Filter) SubscribeOption {
	return func(o *subscribeOptions) {
		if f != nil {
			o.filter = f
		}
	}
}

// WithMiddleware wraps the handler. The first middleware is the outermost.
func WithMiddleware(mw ...Middleware) SubscribeOption {
	return func(o *subscribeOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// WithName labels the subscription in logs and diagnostics.
func WithName(name string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.name = name
	}
}

func acceptAll(Envelope) bool { return true }

func newSubscribeOptions(maxRetries int, retryDelay time.Duration, opts ...SubscribeOption) *subscribeOptions {
	o := &subscribeOptions{
		maxRetries: -1,
		retryDelay: -1,
		filter:     acceptAll,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxRetries < 0 {
		o.maxRetries = maxRetries
	}
	if o.retryDelay < 0 {
		o.retryDelay = retryDelay
	}
	return o
}

// requestOptions holds per-call configuration for Request.
type requestOptions struct {
	timeout time.Duration
}

// RequestOption configures a single Request call.
type RequestOption func(*requestOptions)

// WithRequestTimeout sets how long Request waits for a reply.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func newRequestOptions(timeout time.Duration, opts ...RequestOption) *requestOptions {
	o := &requestOptions{timeout: timeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
