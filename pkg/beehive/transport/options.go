package transport

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
)

// Defaults.
const (
	DefaultMaxFrameSize = 16 << 20
	DefaultDialTimeout  = 100 * time.Millisecond
	DefaultWriteTimeout = 100 * time.Millisecond
)

// Address formats a (host, port) pair as a dial or listen address.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

type options struct {
	logger       *slog.Logger
	metrics      observability.MetricsRecorder
	maxFrameSize int
	retry        bherrors.RetryConfig
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:       slog.New(slog.DiscardHandler),
		metrics:      observability.NoopMetrics{},
		maxFrameSize: DefaultMaxFrameSize,
		retry:        bherrors.TransportRetry,
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Server or Client.
type Option func(*options)

// WithLogger sets the logger for connection and drop reports.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the recorder for sent and received messages.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithMaxFrameSize bounds a single message.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameSize = n
		}
	}
}

// WithRetry sets how a client retries transient send failures.
func WithRetry(cfg bherrors.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithDialTimeout bounds one connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithWriteTimeout bounds one frame write. A write that cannot complete in
// time is treated as "would block" and retried on a fresh connection.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}
