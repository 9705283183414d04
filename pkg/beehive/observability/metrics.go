package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records hive metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDelivery records one listener invocation with its duration and error status.
	RecordDelivery(ctx context.Context, listener string, duration time.Duration, err error)

	// RecordDispatch records one event dispatched through the listener graph.
	RecordDispatch(ctx context.Context, duration time.Duration)

	// RecordProduced records a streamer event push or production failure.
	RecordProduced(ctx context.Context, streamer string, err error)

	// RecordLifecycle records a setup or teardown hook.
	RecordLifecycle(ctx context.Context, node, phase string, err error)

	// RecordTransport records a socket send or receive of sizeBytes.
	RecordTransport(ctx context.Context, op string, sizeBytes int, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	deliveryErrors  metric.Int64Counter
	dispatches      metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	produced        metric.Int64Counter
	productionErrs  metric.Int64Counter
	lifecycle       metric.Int64Counter
	transportMsgs   metric.Int64Counter
	transportBytes  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("beehive")
	m := &otelMetrics{}
	var err error

	if m.deliveries, err = meter.Int64Counter("beehive.listener.deliveries",
		metric.WithDescription("Number of listener invocations"),
	); err != nil {
		return nil, err
	}

	if m.deliveryLatency, err = meter.Float64Histogram("beehive.listener.latency_ms",
		metric.WithDescription("Listener invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.deliveryErrors, err = meter.Int64Counter("beehive.listener.errors",
		metric.WithDescription("Number of listener failures"),
	); err != nil {
		return nil, err
	}

	if m.dispatches, err = meter.Int64Counter("beehive.dispatch.events",
		metric.WithDescription("Number of events dispatched"),
	); err != nil {
		return nil, err
	}

	if m.dispatchLatency, err = meter.Float64Histogram("beehive.dispatch.latency_ms",
		metric.WithDescription("Fan-out latency per dispatched event in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.produced, err = meter.Int64Counter("beehive.streamer.events",
		metric.WithDescription("Number of events produced"),
	); err != nil {
		return nil, err
	}

	if m.productionErrs, err = meter.Int64Counter("beehive.streamer.errors",
		metric.WithDescription("Number of production failures"),
	); err != nil {
		return nil, err
	}

	if m.lifecycle, err = meter.Int64Counter("beehive.lifecycle.hooks",
		metric.WithDescription("Number of setup and teardown hooks run"),
	); err != nil {
		return nil, err
	}

	if m.transportMsgs, err = meter.Int64Counter("beehive.transport.messages",
		metric.WithDescription("Number of socket messages"),
	); err != nil {
		return nil, err
	}

	if m.transportBytes, err = meter.Int64Histogram("beehive.transport.size_bytes",
		metric.WithDescription("Socket message size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDelivery records a listener invocation.
func (m *otelMetrics) RecordDelivery(ctx context.Context, listener string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node", listener))

	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryLatency.Record(ctx, durationMs(duration), attrs)
	if err != nil {
		m.deliveryErrors.Add(ctx, 1, attrs)
	}
}

// RecordDispatch records a dispatched event.
func (m *otelMetrics) RecordDispatch(ctx context.Context, duration time.Duration) {
	m.dispatches.Add(ctx, 1)
	m.dispatchLatency.Record(ctx, durationMs(duration))
}

// RecordProduced records a produced event or production failure.
func (m *otelMetrics) RecordProduced(ctx context.Context, streamer string, err error) {
	attrs := metric.WithAttributes(attribute.String("node", streamer))
	if err != nil {
		m.productionErrs.Add(ctx, 1, attrs)
		return
	}
	m.produced.Add(ctx, 1, attrs)
}

// RecordLifecycle records a lifecycle hook.
func (m *otelMetrics) RecordLifecycle(ctx context.Context, node, phase string, err error) {
	m.lifecycle.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node", node),
		attribute.String("phase", phase),
		attribute.Bool("success", err == nil),
	))
}

// RecordTransport records a socket message.
func (m *otelMetrics) RecordTransport(ctx context.Context, op string, sizeBytes int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", err == nil),
	)
	m.transportMsgs.Add(ctx, 1, attrs)
	if err == nil {
		m.transportBytes.Record(ctx, int64(sizeBytes), attrs)
	}
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
