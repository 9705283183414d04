package beehive

import (
	"log/slog"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	"github.com/randalmurphal/beehive/pkg/beehive/config"
	"github.com/randalmurphal/beehive/pkg/beehive/graph"
	"github.com/randalmurphal/beehive/pkg/beehive/journal"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

// Option configures a Hive.
type Option func(*Hive)

// WithLogger sets the hive logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hive) {
		if logger != nil {
			h.logger = logger
			h.loggerSet = true
		}
	}
}

// WithScheduling selects the scheduling model. Default: sched.Preemptive.
func WithScheduling(m sched.Model) Option {
	return func(h *Hive) {
		h.model = m
	}
}

// WithScheduler runs the hive on s instead of a scheduler built from the
// configured model. s must not be shared with another running hive.
func WithScheduler(s sched.Scheduler) Option {
	return func(h *Hive) {
		if s != nil {
			h.scheduler = s
			h.model = s.Model()
		}
	}
}

// WithSettings applies loaded settings: scheduling model, poll timings,
// transport limits and the debug flag.
func WithSettings(s config.Settings) Option {
	return func(h *Hive) {
		h.settings = s
		h.model = s.Model()
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(h *Hive) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithSpans sets the span manager for run, dispatch and delivery spans.
// Default: no-op.
func WithSpans(s observability.SpanManager) Option {
	return func(h *Hive) {
		if s != nil {
			h.spans = s
		}
	}
}

// WithJournal records every isolated failure in store.
// The hive does not close the store.
func WithJournal(store journal.Store) Option {
	return func(h *Hive) {
		h.journal = store
	}
}

// ListenerOption configures how a listener is registered.
type ListenerOption func(*listenerConfig)

type listenerConfig struct {
	add   []graph.AddOption
	hooks []bee.HookOption
}

func buildListenerConfig(opts []ListenerOption) listenerConfig {
	var c listenerConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Chain makes the listener a child of every listener registered under any
// of names. It receives what those listeners return.
func Chain(names ...string) ListenerOption {
	return func(c *listenerConfig) {
		c.add = append(c.add, graph.WithChain(names...))
	}
}

// Filters restricts the listener to events carrying one of topics.
func Filters(topics ...string) ListenerOption {
	return func(c *listenerConfig) {
		c.add = append(c.add, graph.WithFilters(topics...))
	}
}

// ListenerHooks attaches lifecycle callbacks to a function listener.
// It has no effect on listeners passed to AddListener.
func ListenerHooks(opts ...bee.HookOption) ListenerOption {
	return func(c *listenerConfig) {
		c.hooks = append(c.hooks, opts...)
	}
}

// StreamerOption configures a function streamer.
type StreamerOption func(*streamerConfig)

type streamerConfig struct {
	opts  []bee.StreamerOption
	hooks []bee.HookOption
}

func buildStreamerConfig(opts []StreamerOption) streamerConfig {
	var c streamerConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Topic stamps every produced event with topic.
func Topic(topic string) StreamerOption {
	return func(c *streamerConfig) {
		c.opts = append(c.opts, bee.WithTopic(topic))
	}
}

// Restart sets what the streamer does when a production cycle ends.
func Restart(p bee.RestartPolicy) StreamerOption {
	return func(c *streamerConfig) {
		c.opts = append(c.opts, bee.WithRestartPolicy(p))
	}
}

// StreamerHooks attaches lifecycle callbacks to a function streamer.
func StreamerHooks(opts ...bee.HookOption) StreamerOption {
	return func(c *streamerConfig) {
		c.hooks = append(c.hooks, opts...)
	}
}

// runConfig holds configuration for one run.
type runConfig struct {
	debug     bool
	interrupt bool
	runID     string
}

// RunOption configures Run and Start.
type RunOption func(*runConfig)

// WithDebug logs at debug level to stderr when the hive has no logger.
func WithDebug() RunOption {
	return func(c *runConfig) {
		c.debug = true
	}
}

// WithInterrupt stops the hive on os.Interrupt.
//
// Example:
//
//	err := hive.Run(ctx, beehive.WithInterrupt())
func WithInterrupt() RunOption {
	return func(c *runConfig) {
		c.interrupt = true
	}
}

// WithRunID sets the run identifier used in logs, spans and the journal.
// Default: a random UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.runID = id
		}
	}
}
