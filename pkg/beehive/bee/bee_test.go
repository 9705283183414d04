package bee_test

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/queue"
)

// recordingSink collects pushed events and optionally reacts to each push.
type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
	onPush func(n int)
}

func (s *recordingSink) Push(ev event.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	n := len(s.events)
	s.mu.Unlock()

	if s.onPush != nil {
		s.onPush(n)
	}
	return nil
}

func (s *recordingSink) data() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]any, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Data()
	}
	return out
}

// failingSource yields n values and then fails.
type failingSource struct {
	bee.Base
	n      int
	errs   []error
	errsMu sync.Mutex
}

func (f *failingSource) Stream(context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for i := range f.n {
			if !yield(i, nil) {
				return
			}
		}
		yield(nil, errors.New("source broke"))
	}
}

func (f *failingSource) OnError(_ context.Context, err error) {
	f.errsMu.Lock()
	defer f.errsMu.Unlock()
	f.errs = append(f.errs, err)
}

func TestToken(t *testing.T) {
	tok := bee.NewToken()
	assert.True(t, tok.Alive())
	assert.False(t, tok.Killed())

	tok.Kill()
	tok.Kill()
	assert.False(t, tok.Alive())
	assert.True(t, tok.Killed())
}

func TestToken_Concurrent(t *testing.T) {
	tok := bee.NewToken()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tok.Kill()
		}()
		go func() {
			defer wg.Done()
			_ = tok.Alive()
		}()
	}
	wg.Wait()

	assert.True(t, tok.Killed())
}

func TestStreamer_ProducesInOrder(t *testing.T) {
	sink := &recordingSink{}
	s := bee.NewStreamer("numbers", bee.Values(0, 1, 2, 3, 4, 5, 6, 7, 8, 9),
		bee.WithTopic("n"),
		bee.WithRestartPolicy(bee.RunOnce),
	)
	assert.Equal(t, bee.StateCreated, s.State())

	s.Bind(sink)
	assert.Equal(t, bee.StateQueueBound, s.State())

	s.Run(context.Background())

	assert.Equal(t, []any{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sink.data())
	for _, ev := range sink.events {
		assert.Equal(t, "n", ev.Topic())
	}
}

func TestNewStreamer_GeneratesName(t *testing.T) {
	a := bee.NewStreamer("", bee.Values(1))
	b := bee.NewStreamer("  ", bee.Values(1))

	assert.True(t, strings.HasPrefix(a.Name(), "streamer-"))
	assert.True(t, strings.HasPrefix(b.Name(), "streamer-"))
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Equal(t, "ticks", bee.NewStreamer("ticks", bee.Values(1)).Name())
}

func TestStreamer_KillStopsProduction(t *testing.T) {
	var s *bee.Streamer
	sink := &recordingSink{onPush: func(n int) {
		if n == 10 {
			s.Kill()
		}
	}}

	counter := 0
	s = bee.NewStreamer("infinite", bee.Poll(func(context.Context) (any, error) {
		counter++
		return counter, nil
	}))
	s.Bind(sink)
	s.Run(context.Background())

	assert.Len(t, sink.data(), 10)
	assert.False(t, s.Alive())
}

func TestStreamer_RunUnboundPanics(t *testing.T) {
	s := bee.NewStreamer("unbound", bee.Values(1))

	assert.PanicsWithError(t, "streamer unbound: streamer has no output queue", func() {
		s.Run(context.Background())
	})
}

func TestStreamer_ProductionErrorRestarts(t *testing.T) {
	src := &failingSource{n: 3}
	var s *bee.Streamer
	sink := &recordingSink{onPush: func(n int) {
		if n == 6 {
			s.Kill()
		}
	}}

	s = bee.NewStreamer("flaky", src)
	s.Bind(sink)
	s.Run(context.Background())

	assert.Equal(t, []any{0, 1, 2, 0, 1, 2}, sink.data())

	src.errsMu.Lock()
	defer src.errsMu.Unlock()
	require.Len(t, src.errs, 1, "second cycle was killed before failing")

	var perr *bherrors.ProductionError
	require.True(t, errors.As(src.errs[0], &perr))
	assert.Equal(t, "flaky", perr.Streamer)
	assert.EqualError(t, perr.Err, "source broke")
}

func TestStreamer_StopOnError(t *testing.T) {
	src := &failingSource{n: 3}
	sink := &recordingSink{}

	s := bee.NewStreamer("flaky", src, bee.WithRestartPolicy(bee.StopOnError))
	s.Bind(sink)
	s.Run(context.Background())

	assert.Equal(t, []any{0, 1, 2}, sink.data())
	assert.Len(t, src.errs, 1)
}

func TestStreamer_ErrStop(t *testing.T) {
	var hookErrs []error
	calls := 0
	src := bee.Poll(func(context.Context) (any, error) {
		calls++
		if calls > 2 {
			return nil, bee.ErrStop
		}
		return calls, nil
	}, bee.OnError(func(_ context.Context, err error) {
		hookErrs = append(hookErrs, err)
	}))

	sink := &recordingSink{}
	s := bee.NewStreamer("stopper", src)
	s.Bind(sink)
	s.Run(context.Background())

	assert.Equal(t, []any{1, 2}, sink.data())
	assert.Empty(t, hookErrs, "ErrStop is not a failure")
}

func TestStreamer_PanicIsProductionError(t *testing.T) {
	var hookErr error
	src := bee.NewSource(func(context.Context) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			if !yield("before", nil) {
				return
			}
			panic("source exploded")
		}
	}, bee.OnError(func(_ context.Context, err error) {
		hookErr = err
	}))

	sink := &recordingSink{}
	s := bee.NewStreamer("panicky", src, bee.WithRestartPolicy(bee.RunOnce))
	s.Bind(sink)
	s.Run(context.Background())

	assert.Equal(t, []any{"before"}, sink.data())

	var panicErr *bherrors.PanicError
	require.True(t, errors.As(hookErr, &panicErr))
	assert.Equal(t, "source exploded", panicErr.Value)
	assert.True(t, bherrors.IsIsolated(hookErr))
}

func TestStreamer_Pending(t *testing.T) {
	src := bee.Values(bee.Pending, "a", bee.Pending, "b")
	sink := &recordingSink{}

	s := bee.NewStreamer("pending", src, bee.WithRestartPolicy(bee.RunOnce))
	s.Bind(sink)
	s.Run(context.Background())

	assert.Equal(t, []any{"a", "b"}, sink.data())
}

func TestStreamer_EventTopics(t *testing.T) {
	inner := event.New("payload", event.WithTopic("inner"))

	t.Run("streamer topic replaces inner topic and keeps identity", func(t *testing.T) {
		sink := &recordingSink{}
		s := bee.NewStreamer("s", bee.Values(inner), bee.WithTopic("outer"), bee.WithRestartPolicy(bee.RunOnce))
		s.Bind(sink)
		s.Run(context.Background())

		require.Len(t, sink.events, 1)
		assert.Equal(t, "outer", sink.events[0].Topic())
		assert.Equal(t, inner.ID(), sink.events[0].ID())
	})

	t.Run("no streamer topic keeps inner topic", func(t *testing.T) {
		sink := &recordingSink{}
		s := bee.NewStreamer("s", bee.Values(inner), bee.WithRestartPolicy(bee.RunOnce))
		s.Bind(sink)
		s.Run(context.Background())

		require.Len(t, sink.events, 1)
		assert.True(t, inner.Equal(sink.events[0]))
	})
}

func TestStreamer_ClosedQueueKills(t *testing.T) {
	q := queue.New[event.Event]()
	q.Close()

	s := bee.NewStreamer("late", bee.Poll(func(context.Context) (any, error) {
		return 1, nil
	}))
	s.Bind(q)
	s.Run(context.Background())

	assert.False(t, s.Alive())
}

func TestStreamer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{onPush: func(n int) {
		if n == 3 {
			cancel()
		}
	}}

	s := bee.NewStreamer("ctx", bee.Poll(func(context.Context) (any, error) {
		return "tick", nil
	}))
	s.Bind(sink)
	s.Run(ctx)

	assert.Len(t, sink.data(), 3)
}

func TestStreamer_Lifecycle(t *testing.T) {
	var order []string
	src := bee.NewSource(func(context.Context) iter.Seq2[any, error] {
		return func(func(any, error) bool) {}
	},
		bee.OnSetup(func(context.Context) error {
			order = append(order, "setup")
			return errors.New("no database")
		}),
		bee.OnTeardown(func(context.Context) error {
			order = append(order, "teardown")
			return nil
		}),
	)

	s := bee.NewStreamer("db", src)
	s.Bind(&recordingSink{})

	err := s.Setup(context.Background())
	var lerr *bherrors.LifecycleError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "db", lerr.Node)
	assert.Equal(t, bherrors.PhaseSetup, lerr.Phase)
	assert.Equal(t, bee.StateRunning, s.State())

	require.NoError(t, s.Teardown(context.Background()))
	assert.Equal(t, bee.StateDead, s.State())
	assert.Equal(t, []string{"setup", "teardown"}, order)
}

func TestRunSetup_RecoversPanic(t *testing.T) {
	src := bee.NewSource(nil, bee.OnSetup(func(context.Context) error {
		panic("setup exploded")
	}))

	err := bee.RunSetup(context.Background(), "boom", src)

	var panicErr *bherrors.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "setup exploded", panicErr.Value)
	assert.Contains(t, err.Error(), "boom setup")
}

func TestNotifyError_SwallowsPanic(t *testing.T) {
	l := bee.NewListener("l", nil, bee.OnError(func(context.Context, error) {
		panic("handler exploded")
	}))

	assert.NotPanics(t, func() {
		bee.NotifyError(context.Background(), l, errors.New("x"))
	})
}

func TestNewListener(t *testing.T) {
	var teardowns int
	l := bee.NewListener("upper", func(_ context.Context, ev event.Event) (any, error) {
		return ev.Data().(string) + "!", nil
	}, bee.OnTeardown(func(context.Context) error {
		teardowns++
		return nil
	}))

	assert.Equal(t, "upper", l.Name())
	require.NoError(t, l.Setup(context.Background()))

	out, err := l.OnEvent(context.Background(), event.New("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)

	require.NoError(t, l.Teardown(context.Background()))
	assert.Equal(t, 1, teardowns)
}

func TestRestartPolicy(t *testing.T) {
	assert.Equal(t, bee.RestartPolicy{OnExhausted: bee.Restart, OnError: bee.Restart}, bee.DefaultRestartPolicy)
	assert.Equal(t, "restart", bee.Restart.String())
	assert.Equal(t, "stop", bee.Stop.String())

	a, err := bee.ParseAction("STOP")
	require.NoError(t, err)
	assert.Equal(t, bee.Stop, a)

	_, err = bee.ParseAction("pause")
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "queue_bound", bee.StateQueueBound.String())
	assert.Equal(t, "tearing_down", bee.StateTearingDown.String())
	assert.Equal(t, "unknown", bee.State(42).String())
}
