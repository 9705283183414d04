package beehive

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	"github.com/randalmurphal/beehive/pkg/beehive/config"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/graph"
	"github.com/randalmurphal/beehive/pkg/beehive/journal"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
	"github.com/randalmurphal/beehive/pkg/beehive/queue"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
	"github.com/randalmurphal/beehive/pkg/beehive/transport"
)

type phase int32

const (
	phaseIdle phase = iota
	phaseRunning
	phaseDone
)

// Hive owns the event queue, the streamers feeding it and the listener
// graph it dispatches to.
//
// A hive runs once. Register listeners and streamers, then call Run or
// Start; registration is closed while the hive runs.
type Hive struct {
	logger    *slog.Logger
	loggerSet bool
	settings  config.Settings
	model     sched.Model
	scheduler sched.Scheduler
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	journal   journal.Store

	graph *graph.Graph
	queue *queue.Queue[event.Event]
	token *bee.Token

	mu         sync.Mutex
	streamers  []*bee.Streamer
	phase      atomic.Int32
	dispatched atomic.Int64

	// Set when a run begins.
	runID     string
	runLogger *slog.Logger
}

// New creates an empty hive.
func New(opts ...Option) *Hive {
	h := &Hive{
		logger:   slog.New(slog.DiscardHandler),
		settings: config.DefaultSettings(),
		model:    sched.Preemptive,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		queue:    queue.New[event.Event](),
		token:    bee.NewToken(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.runLogger = h.logger
	h.graph = graph.New(
		graph.WithReporter(&reporter{h: h}),
		graph.WithSpans(h.spans),
	)
	return h
}

// Model returns the scheduling model the hive runs under.
func (h *Hive) Model() sched.Model { return h.model }

// Graph returns the listener graph.
func (h *Hive) Graph() *graph.Graph { return h.graph }

// Alive reports whether the hive has not been killed.
func (h *Hive) Alive() bool { return h.token.Alive() }

// Running reports whether a run is in progress.
func (h *Hive) Running() bool { return phase(h.phase.Load()) == phaseRunning }

// Dispatched returns the number of events dispatched so far.
func (h *Hive) Dispatched() int64 { return h.dispatched.Load() }

func (h *Hive) checkOpen(op string) error {
	if phase(h.phase.Load()) != phaseIdle {
		return &bherrors.PreconditionError{Op: op, Message: "hive is running or has run"}
	}
	return nil
}

// Add registers listeners, streamers and sources. Every argument is checked
// before any is registered.
//
// Accepted: bee.Listener, *bee.Streamer, bee.Source (wrapped in a streamer
// with default options).
func (h *Hive) Add(bees ...any) error {
	for i, b := range bees {
		switch b.(type) {
		case bee.Listener, *bee.Streamer, bee.Source:
		default:
			return &bherrors.ConfigurationError{
				Field:   fmt.Sprintf("bees[%d]", i),
				Message: fmt.Sprintf("%T is not a listener, streamer or source", b),
			}
		}
	}

	for _, b := range bees {
		var err error
		switch v := b.(type) {
		case bee.Listener:
			_, err = h.AddListener(v)
		case *bee.Streamer:
			err = h.AddStreamer(v)
		case bee.Source:
			err = h.AddStreamer(bee.NewStreamer("", v))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AddListener registers l in the listener graph.
func (h *Hive) AddListener(l bee.Listener, opts ...ListenerOption) (graph.NodeID, error) {
	if err := h.checkOpen("add listener"); err != nil {
		return -1, err
	}
	c := buildListenerConfig(opts)
	return h.graph.Add(l, c.add...)
}

// AddStreamer binds s to the hive queue and registers it.
func (h *Hive) AddStreamer(s *bee.Streamer) error {
	if s == nil {
		return &bherrors.ConfigurationError{Field: "streamer", Message: "streamer cannot be nil"}
	}
	if err := h.checkOpen("add streamer"); err != nil {
		return err
	}
	s.Bind(h.queue)
	s.SetReporter(&reporter{h: h})

	h.mu.Lock()
	h.streamers = append(h.streamers, s)
	h.mu.Unlock()
	return nil
}

// Listener builds a listener from fn and registers it.
func (h *Hive) Listener(name string, fn bee.ListenerFunc, opts ...ListenerOption) (bee.Listener, error) {
	if fn == nil {
		return nil, &bherrors.ConfigurationError{Field: "listener", Message: "function cannot be nil"}
	}
	c := buildListenerConfig(opts)
	l := bee.NewListener(name, fn, c.hooks...)
	if _, err := h.AddListener(l, opts...); err != nil {
		return nil, err
	}
	return l, nil
}

// Streamer builds a streamer from fn and registers it.
func (h *Hive) Streamer(name string, fn bee.StreamFunc, opts ...StreamerOption) (*bee.Streamer, error) {
	if fn == nil {
		return nil, &bherrors.ConfigurationError{Field: "streamer", Message: "function cannot be nil"}
	}
	c := buildStreamerConfig(opts)
	s := bee.NewStreamer(name, bee.NewSource(fn, c.hooks...), c.opts...)
	if err := h.AddStreamer(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (h *Hive) transportOptions() []transport.Option {
	return []transport.Option{
		transport.WithLogger(h.logger),
		transport.WithMetrics(h.metrics),
		transport.WithMaxFrameSize(h.settings.MaxFrameSize),
		transport.WithRetry(h.settings.Retry()),
	}
}

// SocketListener registers a listener that sends events to the server at
// addr. parse selects what is sent; nil sends every event unchanged.
func (h *Hive) SocketListener(addr, name string, parse transport.ParseFunc, opts ...ListenerOption) (*transport.SocketListener, error) {
	l := transport.NewSocketListener(name, transport.NewClient(addr, h.transportOptions()...), parse)
	if _, err := h.AddListener(l, opts...); err != nil {
		return nil, err
	}
	return l, nil
}

// SocketStreamer registers a streamer publishing the events received on
// addr. The server listens from streamer setup until teardown.
func (h *Hive) SocketStreamer(addr string, opts ...StreamerOption) (*bee.Streamer, error) {
	c := buildStreamerConfig(opts)
	srv := transport.NewServer(addr, h.transportOptions()...)
	s := transport.NewSocketStreamer("socket:"+addr, srv, c.opts...)
	if err := h.AddStreamer(s); err != nil {
		return nil, err
	}
	return s, nil
}

// SubmitEvent queues ev for dispatch, as if a streamer had produced it.
// It may be called before or during a run.
func (h *Hive) SubmitEvent(ev event.Event) error {
	if ev.IsZero() {
		return &bherrors.PreconditionError{
			Op:      "submit event",
			Message: "event must be created with event.New, event.From or event.Poison",
		}
	}
	if err := h.queue.Push(ev); err != nil {
		return fmt.Errorf("submit event: %w", err)
	}
	return nil
}

// Listeners returns the registered listeners in registration order.
func (h *Hive) Listeners() []bee.Listener {
	n := h.graph.Len()
	out := make([]bee.Listener, 0, n)
	for id := graph.NodeID(0); int(id) < n; id++ {
		if l, ok := h.graph.Listener(id); ok {
			out = append(out, l)
		}
	}
	return out
}

// Streamers returns the registered streamers in registration order.
func (h *Hive) Streamers() []*bee.Streamer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*bee.Streamer(nil), h.streamers...)
}

// Kill stops dispatch at its next check point. Streamers are killed and
// every node torn down as the run winds down. Kill is idempotent.
func (h *Hive) Kill() {
	h.token.Kill()
}

// Close kills the hive and every streamer.
func (h *Hive) Close() {
	h.token.Kill()
	for _, s := range h.Streamers() {
		s.Kill()
	}
}
