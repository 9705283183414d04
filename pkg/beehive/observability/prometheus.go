package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements MetricsRecorder with Prometheus collectors.
type PrometheusRecorder struct {
	gatherer prometheus.Gatherer

	Deliveries      *prometheus.CounterVec
	DeliveryErrors  *prometheus.CounterVec
	DeliveryLatency *prometheus.HistogramVec
	Dispatched      prometheus.Counter
	DispatchLatency prometheus.Histogram
	Produced        *prometheus.CounterVec
	ProductionErrs  *prometheus.CounterVec
	Lifecycle       *prometheus.CounterVec
	TransportMsgs   *prometheus.CounterVec
	TransportBytes  *prometheus.CounterVec
}

// Compile-time interface check.
var _ MetricsRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors and registers them with reg.
// A nil reg uses a fresh registry, reachable through Handler.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &PrometheusRecorder{
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_listener_deliveries_total",
				Help: "Total number of listener invocations by listener",
			},
			[]string{"node"},
		),
		DeliveryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_listener_errors_total",
				Help: "Total number of listener failures by listener",
			},
			[]string{"node"},
		),
		DeliveryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beehive_listener_duration_seconds",
				Help:    "Listener invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		Dispatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "beehive_dispatched_events_total",
				Help: "Total number of events dispatched through the listener graph",
			},
		),
		DispatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beehive_dispatch_duration_seconds",
				Help:    "Fan-out duration per dispatched event in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		Produced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_streamer_events_total",
				Help: "Total number of events produced by streamer",
			},
			[]string{"node"},
		),
		ProductionErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_streamer_errors_total",
				Help: "Total number of production failures by streamer",
			},
			[]string{"node"},
		),
		Lifecycle: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_lifecycle_hooks_total",
				Help: "Total number of setup and teardown hooks by phase and outcome",
			},
			[]string{"node", "phase", "success"},
		),
		TransportMsgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_transport_messages_total",
				Help: "Total number of socket messages by operation and outcome",
			},
			[]string{"op", "success"},
		),
		TransportBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beehive_transport_bytes_total",
				Help: "Total socket payload bytes by operation",
			},
			[]string{"op"},
		),
	}

	collectors := []prometheus.Collector{
		r.Deliveries, r.DeliveryErrors, r.DeliveryLatency,
		r.Dispatched, r.DispatchLatency,
		r.Produced, r.ProductionErrs,
		r.Lifecycle,
		r.TransportMsgs, r.TransportBytes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	}
	return r, nil
}

// Handler returns an HTTP handler exposing the registered metrics.
func (r *PrometheusRecorder) Handler() http.Handler {
	if r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordDelivery records a listener invocation.
func (r *PrometheusRecorder) RecordDelivery(_ context.Context, listener string, duration time.Duration, err error) {
	r.Deliveries.WithLabelValues(listener).Inc()
	r.DeliveryLatency.WithLabelValues(listener).Observe(duration.Seconds())
	if err != nil {
		r.DeliveryErrors.WithLabelValues(listener).Inc()
	}
}

// RecordDispatch records a dispatched event.
func (r *PrometheusRecorder) RecordDispatch(_ context.Context, duration time.Duration) {
	r.Dispatched.Inc()
	r.DispatchLatency.Observe(duration.Seconds())
}

// RecordProduced records a produced event or production failure.
func (r *PrometheusRecorder) RecordProduced(_ context.Context, streamer string, err error) {
	if err != nil {
		r.ProductionErrs.WithLabelValues(streamer).Inc()
		return
	}
	r.Produced.WithLabelValues(streamer).Inc()
}

// RecordLifecycle records a lifecycle hook.
func (r *PrometheusRecorder) RecordLifecycle(_ context.Context, node, phase string, err error) {
	r.Lifecycle.WithLabelValues(node, phase, strconv.FormatBool(err == nil)).Inc()
}

// RecordTransport records a socket message.
func (r *PrometheusRecorder) RecordTransport(_ context.Context, op string, sizeBytes int, err error) {
	r.TransportMsgs.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	if err == nil {
		r.TransportBytes.WithLabelValues(op).Add(float64(sizeBytes))
	}
}
