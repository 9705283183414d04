package beehive_test

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/beehive/pkg/beehive"
	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	"github.com/randalmurphal/beehive/pkg/beehive/config"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/journal"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

var models = []sched.Model{sched.Preemptive, sched.Cooperative}

const waitFor = 5 * time.Second

// recorder collects the payloads a listener receives.
type recorder struct {
	mu   sync.Mutex
	data []any
}

func (r *recorder) listen(_ context.Context, ev event.Event) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, ev.Data())
	return nil, nil
}

func (r *recorder) snapshot() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.data...)
}

func (r *recorder) len() int {
	return len(r.snapshot())
}

// trace records lifecycle calls in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls = append(tr.calls, s)
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

func (tr *trace) hooks(name string) []bee.HookOption {
	return []bee.HookOption{
		bee.OnSetup(func(context.Context) error { tr.add("setup " + name); return nil }),
		bee.OnTeardown(func(context.Context) error { tr.add("teardown " + name); return nil }),
	}
}

func count(n int) bee.StreamFunc {
	return func(context.Context) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for i := 0; i < n; i++ {
				if !yield(i, nil) {
					return
				}
			}
		}
	}
}

func forEachModel(t *testing.T, fn func(t *testing.T, model sched.Model)) {
	for _, model := range models {
		t.Run(model.String(), func(t *testing.T) {
			fn(t, model)
		})
	}
}

func TestHive_EndToEnd(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		hive := beehive.New(beehive.WithScheduling(model))

		_, err := hive.Streamer("numbers", count(5), beehive.Restart(bee.RunOnce))
		require.NoError(t, err)

		rec := &recorder{}
		_, err = hive.Listener("sink", rec.listen)
		require.NoError(t, err)

		handle := hive.Start(context.Background())
		require.Eventually(t, func() bool { return rec.len() == 5 }, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		assert.Equal(t, []any{0, 1, 2, 3, 4}, rec.snapshot())
		assert.Equal(t, int64(5), hive.Dispatched())
		assert.False(t, hive.Alive())
		assert.False(t, hive.Running())
	})
}

func TestHive_ChainsAndFilters(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		hive := beehive.New(beehive.WithScheduling(model))

		_, err := hive.Streamer("a", count(3), beehive.Topic("a"), beehive.Restart(bee.RunOnce))
		require.NoError(t, err)
		_, err = hive.Streamer("b", count(3), beehive.Topic("b"), beehive.Restart(bee.RunOnce))
		require.NoError(t, err)

		_, err = hive.Listener("double", func(_ context.Context, ev event.Event) (any, error) {
			return ev.Data().(int) * 2, nil
		}, beehive.Filters("a"))
		require.NoError(t, err)

		doubled := &recorder{}
		_, err = hive.Listener("after-double", doubled.listen, beehive.Chain("double"))
		require.NoError(t, err)

		onlyB := &recorder{}
		_, err = hive.Listener("only-b", onlyB.listen, beehive.Filters("b"))
		require.NoError(t, err)

		handle := hive.Start(context.Background())
		require.Eventually(t, func() bool {
			return doubled.len() == 3 && onlyB.len() == 3
		}, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		assert.Equal(t, []any{0, 2, 4}, doubled.snapshot())
		assert.Equal(t, []any{0, 1, 2}, onlyB.snapshot())
	})
}

func TestHive_ListenerSetupFailureIsolated(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		store := journal.NewMemoryStore()
		hive := beehive.New(beehive.WithScheduling(model), beehive.WithJournal(store))

		broken := &recorder{}
		_, err := hive.Listener("broken", broken.listen, beehive.ListenerHooks(
			bee.OnSetup(func(context.Context) error { return errors.New("no database") }),
		))
		require.NoError(t, err)

		healthy := &recorder{}
		_, err = hive.Listener("healthy", healthy.listen)
		require.NoError(t, err)

		_, err = hive.Streamer("numbers", count(3), beehive.Restart(bee.RunOnce))
		require.NoError(t, err)

		handle := hive.Start(context.Background(), beehive.WithRunID("run-1"))
		require.Eventually(t, func() bool {
			return healthy.len() == 3 && broken.len() == 3
		}, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		entries, err := store.List("run-1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, journal.KindLifecycle, entries[0].Kind)
		assert.Equal(t, "broken", entries[0].Node)
		assert.Equal(t, "setup", entries[0].Phase)
	})
}

func TestHive_FailuresJournaled(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		store := journal.NewMemoryStore()
		hive := beehive.New(beehive.WithScheduling(model), beehive.WithJournal(store))

		failed := false
		_, err := hive.Streamer("flaky", func(context.Context) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				if !failed {
					failed = true
					yield(nil, errors.New("sensor offline"))
					return
				}
				for i := 0; i < 3; i++ {
					if !yield(i, nil) {
						return
					}
				}
			}
		}, beehive.Restart(bee.RestartPolicy{OnExhausted: bee.Stop, OnError: bee.Restart}))
		require.NoError(t, err)

		var errs []error
		var mu sync.Mutex
		_, err = hive.Listener("odd", func(_ context.Context, ev event.Event) (any, error) {
			if ev.Data().(int)%2 == 1 {
				return nil, errors.New("odd")
			}
			return nil, nil
		}, beehive.ListenerHooks(bee.OnError(func(_ context.Context, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})))
		require.NoError(t, err)

		handle := hive.Start(context.Background(), beehive.WithRunID("run-1"))
		require.Eventually(t, func() bool { return hive.Dispatched() == 3 }, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		entries, err := store.List("run-1")
		require.NoError(t, err)
		kinds := map[journal.Kind]int{}
		for _, e := range entries {
			kinds[e.Kind]++
		}
		assert.Equal(t, 1, kinds[journal.KindProduction])
		assert.Equal(t, 1, kinds[journal.KindTransform])

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, errs, 1)
		var terr *bherrors.TransformError
		assert.True(t, errors.As(errs[0], &terr))
	})
}

func TestHive_LifecycleOrder(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		tr := &trace{}
		hive := beehive.New(beehive.WithScheduling(model))

		_, err := hive.Streamer("s", count(1),
			beehive.Restart(bee.RunOnce),
			beehive.StreamerHooks(tr.hooks("s")...),
		)
		require.NoError(t, err)

		_, err = hive.Listener("parent", func(_ context.Context, ev event.Event) (any, error) {
			return ev, nil
		}, beehive.ListenerHooks(tr.hooks("parent")...))
		require.NoError(t, err)

		rec := &recorder{}
		_, err = hive.Listener("child", rec.listen,
			beehive.Chain("parent"),
			beehive.ListenerHooks(tr.hooks("child")...),
		)
		require.NoError(t, err)

		handle := hive.Start(context.Background())
		require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		assert.Equal(t, []string{
			"setup s",
			"setup parent",
			"setup child",
			"teardown child",
			"teardown parent",
			"teardown s",
		}, tr.snapshot())
	})
}

func TestHive_LifecycleFailuresIsolated(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		tr := &trace{}
		store := journal.NewMemoryStore()
		hive := beehive.New(beehive.WithScheduling(model), beehive.WithJournal(store))

		var badProduced atomic.Bool
		_, err := hive.Streamer("bad", func(context.Context) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				badProduced.Store(true)
				yield(100, nil)
			}
		},
			beehive.Restart(bee.RunOnce),
			beehive.StreamerHooks(
				bee.OnSetup(func(context.Context) error {
					tr.add("setup bad")
					return errors.New("no sensor")
				}),
				bee.OnTeardown(func(context.Context) error {
					tr.add("teardown bad")
					return nil
				}),
			),
		)
		require.NoError(t, err)

		_, err = hive.Streamer("good", count(2),
			beehive.Restart(bee.RunOnce),
			beehive.StreamerHooks(tr.hooks("good")...),
		)
		require.NoError(t, err)

		_, err = hive.Listener("a", func(context.Context, event.Event) (any, error) {
			return nil, nil
		}, beehive.ListenerHooks(
			bee.OnSetup(func(context.Context) error { tr.add("setup a"); return nil }),
			bee.OnTeardown(func(context.Context) error {
				tr.add("teardown a")
				panic("teardown exploded")
			}),
		))
		require.NoError(t, err)

		rec := &recorder{}
		_, err = hive.Listener("b", rec.listen, beehive.ListenerHooks(tr.hooks("b")...))
		require.NoError(t, err)

		handle := hive.Start(context.Background(), beehive.WithRunID("run-1"))
		require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		assert.Equal(t, []any{0, 1}, rec.snapshot())
		assert.False(t, badProduced.Load(), "a streamer whose setup failed never produces")
		assert.Equal(t, []string{
			"setup bad",
			"setup good",
			"setup a",
			"setup b",
			"teardown a",
			"teardown b",
			"teardown bad",
			"teardown good",
		}, tr.snapshot())

		entries, err := store.List("run-1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "bad", entries[0].Node)
		assert.Equal(t, "setup", entries[0].Phase)
		assert.Equal(t, "a", entries[1].Node)
		assert.Equal(t, "teardown", entries[1].Phase)
		assert.Contains(t, entries[1].Error, "teardown exploded")
	})
}

func TestHive_PoisonTearsDownOnce(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		tr := &trace{}
		hive := beehive.New(beehive.WithScheduling(model))

		rec := &recorder{}
		_, err := hive.Listener("l", rec.listen, beehive.ListenerHooks(tr.hooks("l")...))
		require.NoError(t, err)

		require.NoError(t, hive.SubmitEvent(event.Poison()))
		require.NoError(t, hive.SubmitEvent(event.New("after")))

		handle := hive.Start(context.Background())
		require.Eventually(t, func() bool { return hive.Dispatched() == 2 }, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		assert.Equal(t, []string{"setup l", "teardown l"}, tr.snapshot())
		assert.Empty(t, rec.snapshot())
	})
}

func TestHive_SubmitEvent(t *testing.T) {
	hive := beehive.New()

	var perr *bherrors.PreconditionError
	require.True(t, errors.As(hive.SubmitEvent(event.Event{}), &perr))

	rec := &recorder{}
	_, err := hive.Listener("sink", rec.listen)
	require.NoError(t, err)
	require.NoError(t, hive.SubmitEvent(event.New("queued before run")))

	handle := hive.Start(context.Background())
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, time.Millisecond)
	require.NoError(t, hive.SubmitEvent(event.New("during run")))
	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, time.Millisecond)
	require.NoError(t, handle.Stop())

	assert.Equal(t, []any{"queued before run", "during run"}, rec.snapshot())
	assert.ErrorIs(t, hive.SubmitEvent(event.New("late")), bherrors.ErrQueueClosed)
}

func TestHive_RunsOnce(t *testing.T) {
	hive := beehive.New()
	hive.Kill()
	require.NoError(t, hive.Run(context.Background()))

	var perr *bherrors.PreconditionError
	assert.True(t, errors.As(hive.Run(context.Background()), &perr))
	assert.True(t, errors.As(hive.Start(context.Background()).Wait(), &perr))

	_, err := hive.Listener("late", (&recorder{}).listen)
	assert.True(t, errors.As(err, &perr))
	_, err = hive.Streamer("late", count(1))
	assert.True(t, errors.As(err, &perr))
}

func TestHive_ContextCancelStopsRun(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		hive := beehive.New(beehive.WithScheduling(model))
		_, err := hive.Streamer("forever", func(ctx context.Context) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				for i := 0; ; i++ {
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Millisecond):
					}
					if !yield(i, nil) {
						return
					}
				}
			}
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- hive.Run(ctx) }()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("Run did not return after cancellation")
		}
		assert.False(t, hive.Alive())
		assert.Equal(t, bee.StateDead, hive.Streamers()[0].State())
	})
}

func TestHive_CloseKillsStreamers(t *testing.T) {
	hive := beehive.New()
	s, err := hive.Streamer("s", count(1))
	require.NoError(t, err)

	hive.Close()
	assert.False(t, hive.Alive())
	assert.False(t, s.Alive())
}

func TestHive_Add(t *testing.T) {
	hive := beehive.New()

	l := bee.NewListener("l", (&recorder{}).listen)
	s := bee.NewStreamer("s", bee.Values(1))
	src := bee.Values(2)

	require.NoError(t, hive.Add(l, s, src))
	assert.Len(t, hive.Listeners(), 1)
	assert.Len(t, hive.Streamers(), 2)
	assert.NotEmpty(t, hive.Streamers()[1].Name())

	var cerr *bherrors.ConfigurationError
	err := hive.Add(bee.NewListener("x", (&recorder{}).listen), 42)
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, hive.Listeners(), 1, "nothing registered on error")

	_, err = hive.Listener("orphan", (&recorder{}).listen, beehive.Chain("missing"))
	assert.ErrorIs(t, err, bherrors.ErrUnknownChain)
}

func TestHive_Settings(t *testing.T) {
	cfg := config.New(map[string]any{"scheduling": "cooperative", "poll_interval": "2ms"})
	settings, err := config.LoadSettings(cfg)
	require.NoError(t, err)

	hive := beehive.New(beehive.WithSettings(settings))
	assert.Equal(t, sched.Cooperative, hive.Model())

	hive = beehive.New(beehive.WithSettings(settings), beehive.WithScheduling(sched.Preemptive))
	assert.Equal(t, sched.Preemptive, hive.Model())
}

func TestHive_LogsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewJSONHandler(&lockedWriter{w: &buf, mu: &mu}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	hive := beehive.New(beehive.WithLogger(logger))
	_, err := hive.Listener("l", (&recorder{}).listen)
	require.NoError(t, err)

	hive.Kill()
	require.NoError(t, hive.Run(context.Background(), beehive.WithRunID("run-42")))

	mu.Lock()
	defer mu.Unlock()
	out := buf.String()
	assert.Contains(t, out, `"msg":"hive live"`)
	assert.Contains(t, out, `"msg":"setup complete"`)
	assert.Contains(t, out, `"msg":"teardown complete"`)
	assert.Contains(t, out, `"msg":"hive shut down"`)
	assert.Contains(t, out, `"run_id":"run-42"`)
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestHive_SocketLoop(t *testing.T) {
	forEachModel(t, func(t *testing.T, model sched.Model) {
		addr := freeAddr(t)
		hive := beehive.New(beehive.WithScheduling(model))

		var mu sync.Mutex
		var seen []int
		sl, err := hive.SocketListener(addr, "increment", func(_ context.Context, ev event.Event) (event.Event, error) {
			next := event.New(ev.Data().(int)+1, event.WithCreatedAt(ev.CreatedAt()))
			mu.Lock()
			seen = append(seen, next.Data().(int))
			mu.Unlock()
			return next, nil
		})
		require.NoError(t, err)

		_, err = hive.SocketStreamer(addr)
		require.NoError(t, err)

		require.NoError(t, hive.SubmitEvent(event.New(-1)))

		handle := hive.Start(context.Background())
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) >= 5
		}, waitFor, time.Millisecond)
		require.NoError(t, handle.Stop())

		mu.Lock()
		defer mu.Unlock()
		for i, v := range seen[:5] {
			assert.Equal(t, i, v)
		}

		assert.False(t, sl.Client().Connected(), "client shut down on teardown")
	})
}
