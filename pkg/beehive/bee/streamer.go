package bee

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

// State is the lifecycle state of a Streamer.
type State int32

const (
	StateCreated State = iota
	StateQueueBound
	StateSettingUp
	StateRunning
	StateTearingDown
	StateDead
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateQueueBound:
		return "queue_bound"
	case StateSettingUp:
		return "setting_up"
	case StateRunning:
		return "running"
	case StateTearingDown:
		return "tearing_down"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Streamer drives a Source and publishes what it produces.
//
// Lifecycle: Created → QueueBound (Bind) → SettingUp (Setup) → Running →
// TearingDown (Teardown) → Dead. Run must not be called before Bind.
type Streamer struct {
	name     string
	topic    string
	src      Source
	token    *Token
	policy   RestartPolicy
	reporter Reporter

	out   Sink
	state atomic.Int32
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithTopic sets the topic stamped on every produced event.
// Events produced as event.Event keep their own topic when this is empty.
func WithTopic(topic string) StreamerOption {
	return func(s *Streamer) {
		s.topic = topic
	}
}

// WithRestartPolicy sets what happens when a production cycle ends.
func WithRestartPolicy(p RestartPolicy) StreamerOption {
	return func(s *Streamer) {
		s.policy = p
	}
}

// WithReporter sets the reporter. The hive replaces it on registration
// unless one was set explicitly.
func WithReporter(r Reporter) StreamerOption {
	return func(s *Streamer) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithToken shares a cancellation token, letting the source observe the
// streamer being killed.
func WithToken(t *Token) StreamerOption {
	return func(s *Streamer) {
		if t != nil {
			s.token = t
		}
	}
}

// NewStreamer creates a streamer for src.
// An empty name is replaced by a generated one.
func NewStreamer(name string, src Source, opts ...StreamerOption) *Streamer {
	if strings.TrimSpace(name) == "" {
		name = "streamer-" + uuid.NewString()
	}
	s := &Streamer{
		name:     name,
		src:      src,
		token:    NewToken(),
		policy:   DefaultRestartPolicy,
		reporter: NopReporter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the streamer name.
func (s *Streamer) Name() string { return s.name }

// Topic returns the topic stamped on produced events.
func (s *Streamer) Topic() string { return s.topic }

// Token returns the streamer's cancellation token.
func (s *Streamer) Token() *Token { return s.token }

// Source returns the wrapped source.
func (s *Streamer) Source() Source { return s.src }

// State returns the current lifecycle state.
func (s *Streamer) State() State { return State(s.state.Load()) }

// SetReporter replaces the reporter if none was configured.
func (s *Streamer) SetReporter(r Reporter) {
	if _, isNop := s.reporter.(NopReporter); isNop && r != nil {
		s.reporter = r
	}
}

// Bind attaches the sink events are pushed to.
func (s *Streamer) Bind(out Sink) {
	s.out = out
	s.state.Store(int32(StateQueueBound))
}

// Bound reports whether Bind has been called.
func (s *Streamer) Bound() bool { return s.out != nil }

// Kill stops production at the next check point. It is idempotent.
func (s *Streamer) Kill() { s.token.Kill() }

// Alive reports whether the streamer has not been killed.
func (s *Streamer) Alive() bool { return s.token.Alive() }

// Setup runs the source's Setup hook. The streamer is Running afterwards,
// whether or not the hook succeeded.
func (s *Streamer) Setup(ctx context.Context) error {
	s.state.Store(int32(StateSettingUp))
	err := RunSetup(ctx, s.name, s.src)
	s.state.Store(int32(StateRunning))
	s.reporter.Lifecycle(ctx, s.name, bherrors.PhaseSetup, err)
	return err
}

// Teardown runs the source's Teardown hook and marks the streamer Dead.
func (s *Streamer) Teardown(ctx context.Context) error {
	s.state.Store(int32(StateTearingDown))
	err := RunTeardown(ctx, s.name, s.src)
	s.state.Store(int32(StateDead))
	s.reporter.Lifecycle(ctx, s.name, bherrors.PhaseTeardown, err)
	return err
}

// Run produces until the streamer is killed, ctx is done, or the restart
// policy stops it. It panics if the streamer is not bound.
func (s *Streamer) Run(ctx context.Context) {
	if s.out == nil {
		panic(fmt.Errorf("streamer %s: %w", s.name, bherrors.ErrNotBound))
	}
	if s.State() < StateRunning {
		s.state.Store(int32(StateRunning))
	}

	for s.alive(ctx) {
		produced, err := s.produce(ctx)
		if s.finish(ctx, err) {
			return
		}

		// Empty cycles idle before restarting.
		if produced == 0 {
			if !sched.Idle(ctx) {
				return
			}
		} else if !sched.Yield(ctx) {
			return
		}
	}
}

// finish applies the restart policy to the outcome of one cycle and reports
// whether the run loop should end.
func (s *Streamer) finish(ctx context.Context, err error) bool {
	if err == nil {
		return s.policy.OnExhausted == Stop
	}
	if errors.Is(err, ErrStop) {
		return true
	}

	perr := &bherrors.ProductionError{Streamer: s.name, Err: err}
	NotifyError(ctx, s.src, perr)
	s.reporter.ProductionFailed(ctx, perr)
	return s.policy.OnError == Stop
}

// produce runs one cycle over a fresh source sequence.
func (s *Streamer) produce(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &bherrors.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	for data, serr := range s.src.Stream(ctx) {
		if serr != nil {
			return n, serr
		}
		if _, idle := data.(pending); idle {
			if !sched.Idle(ctx) || !s.alive(ctx) {
				return n, nil
			}
			continue
		}

		ev := s.wrap(data)
		if perr := s.out.Push(ev); perr != nil {
			if errors.Is(perr, bherrors.ErrQueueClosed) {
				s.token.Kill()
				return n, nil
			}
			return n, perr
		}
		n++
		s.reporter.Produced(ctx, s.name, ev)

		if !sched.Yield(ctx) || !s.alive(ctx) {
			return n, nil
		}
	}
	return n, nil
}

func (s *Streamer) wrap(data any) event.Event {
	if ev, ok := data.(event.Event); ok {
		if s.topic == "" {
			return ev
		}
		return event.From(ev, event.WithTopic(s.topic))
	}
	return event.New(data, event.WithTopic(s.topic))
}

func (s *Streamer) alive(ctx context.Context) bool {
	return s.token.Alive() && ctx.Err() == nil
}
