package eventbus

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	spanKeyEventID        = "event.id"
	spanKeyEventType      = "event.type"
	spanKeyEventSource    = "event.source"
	spanKeyEventBus       = "event.bus"
	spanKeyCorrelationID  = "event.correlation_id"
	spanKeySubscriptionID = "subscription.id"
	spanKeyAttempt        = "delivery.attempt"
	spanKeySubscribers    = "event.subscribers"
)

// instruments are the OpenTelemetry counterparts of Metrics.
type instruments struct {
	emitted      metric.Int64Counter
	delivered    metric.Int64Counter
	failed       metric.Int64Counter
	deadLettered metric.Int64Counter
	retries      metric.Int64Counter
	duration     metric.Float64Histogram
}

// newInstruments creates the bus instruments on a meter named after the bus.
// Instruments that fail to register fall back to no-ops; the joined error is
// returned for logging.
func newInstruments(mp metric.MeterProvider, name string) (*instruments, error) {
	meter := mp.Meter(name)
	var errs []error

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{event}"))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return noop.Int64Counter{}
		}
		return c
	}

	inst := &instruments{
		emitted:      counter("eventbus.emitted", "Total number of envelopes published"),
		delivered:    counter("eventbus.delivered", "Total number of successful deliveries"),
		failed:       counter("eventbus.failed", "Total number of deliveries that exhausted their retries"),
		deadLettered: counter("eventbus.dead_lettered", "Total number of dead-letter entries created"),
		retries:      counter("eventbus.retries", "Total number of retry attempts"),
	}

	hist, err := meter.Float64Histogram("eventbus.delivery.duration",
		metric.WithDescription("Handler execution time per attempt"),
		metric.WithUnit("s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("eventbus.delivery.duration: %w", err))
		hist = noop.Float64Histogram{}
	}
	inst.duration = hist

	return inst, errors.Join(errs...)
}

// providers resolves the meter and tracer providers for o, honoring the
// enable flags.
func (o *options) providers() (metric.MeterProvider, trace.TracerProvider) {
	mp := o.meterProvider
	switch {
	case !o.metricsEnabled:
		mp = noop.NewMeterProvider()
	case mp == nil:
		mp = otel.GetMeterProvider()
	}

	tp := o.tracerProvider
	switch {
	case !o.tracingEnabled:
		tp = tracenoop.NewTracerProvider()
	case tp == nil:
		tp = otel.GetTracerProvider()
	}
	return mp, tp
}

func eventTypeAttr(eventType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(spanKeyEventType, eventType))
}
