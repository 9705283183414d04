package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the beehive tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("beehive")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span covering a whole hive run.
	StartRunSpan(ctx context.Context, runID, model string) (context.Context, trace.Span)

	// StartDispatchSpan starts a span for one event's fan-out.
	// Delivery spans are children of it.
	StartDispatchSpan(ctx context.Context, eventID uint64, topic string) (context.Context, trace.Span)

	// StartDeliverySpan starts a span for one listener invocation.
	StartDeliverySpan(ctx context.Context, listener string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, runID, model string) (context.Context, trace.Span) {
	return StartRunSpan(ctx, runID, model)
}

func (m *otelSpanManager) StartDispatchSpan(ctx context.Context, eventID uint64, topic string) (context.Context, trace.Span) {
	return StartDispatchSpan(ctx, eventID, topic)
}

func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, listener string) (context.Context, trace.Span) {
	return StartDeliverySpan(ctx, listener)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartRunSpan starts a span for a hive run.
func StartRunSpan(ctx context.Context, runID, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "beehive.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.scheduling", model),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartDispatchSpan starts a span for one dispatched event.
func StartDispatchSpan(ctx context.Context, eventID uint64, topic string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "beehive.dispatch",
		trace.WithAttributes(
			attribute.String("event.id", strconv.FormatUint(eventID, 16)),
			attribute.String("event.topic", topic),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// StartDeliverySpan starts a span for one listener invocation.
func StartDeliverySpan(ctx context.Context, listener string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "beehive.listener."+listener,
		trace.WithAttributes(
			attribute.String("node", listener),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
