package beehive

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
	"github.com/randalmurphal/beehive/pkg/beehive/observability"
	"github.com/randalmurphal/beehive/pkg/beehive/sched"
)

// Handle tracks a hive started with Start.
type Handle struct {
	hive *Hive
	done chan struct{}
	err  error
}

// Done is closed when the run has finished tearing down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Stop closes the hive and waits for the run to finish.
func (h *Handle) Stop() error {
	h.hive.Close()
	return h.Wait()
}

// Start runs the hive in the background and returns immediately.
func (h *Hive) Start(ctx context.Context, opts ...RunOption) *Handle {
	handle := &Handle{hive: h, done: make(chan struct{})}

	rc := h.runConfig(opts)
	if err := h.begin(rc); err != nil {
		handle.err = err
		close(handle.done)
		return handle
	}

	go func() {
		defer close(handle.done)
		handle.err = h.run(ctx, rc)
	}()
	return handle
}

// Run runs the hive until it is killed, closed, or ctx is done, then tears
// every node down. It returns an error only if the hive cannot start.
//
// Bring-up and tear-down happen in phases; a failing node is reported and
// never aborts its phase:
//  1. set up every streamer and start production for those that succeeded
//  2. set up every listener, parents before children
//  3. dispatch queued events to the root listeners until stopped
//  4. tear down every listener not already torn down by poison
//  5. kill every streamer, wait for production to stop, tear them down
//
// Example:
//
//	hive := beehive.New(beehive.WithLogger(logger))
//	hive.Listener("print", func(ctx context.Context, ev event.Event) (any, error) {
//	    fmt.Println(ev.Data())
//	    return nil, nil
//	})
//	err := hive.Run(ctx, beehive.WithInterrupt())
func (h *Hive) Run(ctx context.Context, opts ...RunOption) error {
	rc := h.runConfig(opts)
	if err := h.begin(rc); err != nil {
		return err
	}
	return h.run(ctx, rc)
}

func (h *Hive) runConfig(opts []RunOption) runConfig {
	rc := runConfig{debug: h.settings.Debug}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.runID == "" {
		rc.runID = uuid.NewString()
	}
	return rc
}

// begin claims the hive for one run.
func (h *Hive) begin(rc runConfig) error {
	if !h.phase.CompareAndSwap(int32(phaseIdle), int32(phaseRunning)) {
		return &bherrors.PreconditionError{Op: "run", Message: "hive is running or has run"}
	}

	logger := h.logger
	if rc.debug && !h.loggerSet {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	h.runID = rc.runID
	h.runLogger = logger.With(slog.String("run_id", rc.runID))
	return nil
}

func (h *Hive) newScheduler() sched.Scheduler {
	if h.scheduler != nil {
		return h.scheduler
	}
	cfg := h.settings.Sched()
	cfg.OnPanic = func(task string, value any, stack []byte) {
		h.runLogger.Error("task panicked",
			slog.String("task", task),
			slog.Any("panic", value),
			slog.String("stack", string(stack)),
		)
	}
	return sched.New(h.model, cfg)
}

func (h *Hive) run(ctx context.Context, rc runConfig) (runErr error) {
	defer h.phase.Store(int32(phaseDone))

	if rc.interrupt {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	s := h.newScheduler()
	streamers := h.Streamers()
	elapsed := observability.TimedOperation()

	ctx, runSpan := h.spans.StartRunSpan(ctx, h.runID, s.Model().String())
	defer func() { h.spans.EndSpanWithError(runSpan, runErr) }()

	observability.LogHiveLive(h.runLogger, h.runID, s.Model().String(), h.graph.Len(), len(streamers))

	s.Run(ctx, func(ctx context.Context) {
		prodCtx, stopProduction := context.WithCancel(ctx)
		defer stopProduction()

		h.setupStreamers(ctx, prodCtx, s, streamers)
		_ = h.graph.Setup(ctx)

		h.dispatch(ctx)
		h.token.Kill()

		down := context.WithoutCancel(ctx)
		_ = h.graph.Teardown(down)

		for _, st := range streamers {
			st.Kill()
		}
		stopProduction()
	})
	s.Join()

	s.Run(context.WithoutCancel(ctx), func(ctx context.Context) {
		for _, st := range streamers {
			_ = st.Teardown(ctx)
		}
	})

	h.queue.Close()
	observability.LogHiveShutdown(h.runLogger, h.runID, elapsed(), h.dispatched.Load())
	return nil
}

// setupStreamers runs phase 1. Production starts only for streamers whose
// setup succeeded; the others are still torn down in phase 5.
func (h *Hive) setupStreamers(ctx, prodCtx context.Context, s sched.Scheduler, streamers []*bee.Streamer) {
	for _, st := range streamers {
		if err := st.Setup(ctx); err != nil {
			continue
		}
		s.Spawn(prodCtx, st.Name(), st.Run)
	}
}

// dispatch runs phase 3: it drains the queue into the listener graph until
// the hive is killed or ctx is done.
func (h *Hive) dispatch(ctx context.Context) {
	for h.token.Alive() && ctx.Err() == nil {
		wait := sched.PollTimeout(ctx)
		ev, ok := h.queue.Pop(wait)
		if !ok {
			if wait > 0 {
				if !sched.Yield(ctx) {
					return
				}
			} else if !sched.Idle(ctx) {
				return
			}
			continue
		}

		h.notify(ctx, ev)
		if !sched.Yield(ctx) {
			return
		}
	}
}

func (h *Hive) notify(ctx context.Context, ev event.Event) {
	start := time.Now()
	ctx, span := h.spans.StartDispatchSpan(ctx, ev.ID(), ev.Topic())
	h.graph.Notify(ctx, ev)
	h.spans.EndSpanWithError(span, nil)

	h.metrics.RecordDispatch(ctx, time.Since(start))
	h.dispatched.Add(1)
}
