package bee

import (
	"context"
	"iter"

	"github.com/randalmurphal/beehive/pkg/beehive/event"
)

// ListenerFunc transforms an event. See Listener.OnEvent for the meaning of
// the result.
type ListenerFunc func(ctx context.Context, ev event.Event) (any, error)

// StreamFunc returns the sequence for one production cycle.
type StreamFunc func(ctx context.Context) iter.Seq2[any, error]

// ValueFunc produces one value per call. Returning ErrStop ends the
// streamer; returning (Pending, nil) reports that nothing is ready.
type ValueFunc func(ctx context.Context) (any, error)

// HookOption attaches lifecycle callbacks to a function-built node.
type HookOption func(*funcHooks)

// OnSetup sets the setup callback.
func OnSetup(fn func(ctx context.Context) error) HookOption {
	return func(h *funcHooks) { h.setup = fn }
}

// OnTeardown sets the teardown callback.
func OnTeardown(fn func(ctx context.Context) error) HookOption {
	return func(h *funcHooks) { h.teardown = fn }
}

// OnError sets the failure callback.
func OnError(fn func(ctx context.Context, err error)) HookOption {
	return func(h *funcHooks) { h.onError = fn }
}

type funcHooks struct {
	setup    func(ctx context.Context) error
	teardown func(ctx context.Context) error
	onError  func(ctx context.Context, err error)
}

func newFuncHooks(opts []HookOption) funcHooks {
	var h funcHooks
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

func (h funcHooks) Setup(ctx context.Context) error {
	if h.setup == nil {
		return nil
	}
	return h.setup(ctx)
}

func (h funcHooks) Teardown(ctx context.Context) error {
	if h.teardown == nil {
		return nil
	}
	return h.teardown(ctx)
}

func (h funcHooks) OnError(ctx context.Context, err error) {
	if h.onError != nil {
		h.onError(ctx, err)
	}
}

type funcListener struct {
	funcHooks
	name string
	fn   ListenerFunc
}

// NewListener builds a Listener from a function.
func NewListener(name string, fn ListenerFunc, opts ...HookOption) Listener {
	return &funcListener{funcHooks: newFuncHooks(opts), name: name, fn: fn}
}

func (l *funcListener) Name() string { return l.name }

func (l *funcListener) OnEvent(ctx context.Context, ev event.Event) (any, error) {
	return l.fn(ctx, ev)
}

type funcSource struct {
	funcHooks
	fn StreamFunc
}

// NewSource builds a Source from a function returning a fresh sequence per
// production cycle.
func NewSource(fn StreamFunc, opts ...HookOption) Source {
	return &funcSource{funcHooks: newFuncHooks(opts), fn: fn}
}

func (s *funcSource) Stream(ctx context.Context) iter.Seq2[any, error] {
	return s.fn(ctx)
}

// Poll builds a Source that calls fn until it returns an error.
// A cycle never ends on its own, so the restart policy only sees failures.
func Poll(fn ValueFunc, opts ...HookOption) Source {
	return NewSource(func(ctx context.Context) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for {
				v, err := fn(ctx)
				if !yield(v, err) || err != nil {
					return
				}
			}
		}
	}, opts...)
}

// Values builds a Source whose every cycle yields vals in order.
func Values(vals ...any) Source {
	return NewSource(func(context.Context) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for _, v := range vals {
				if !yield(v, nil) {
					return
				}
			}
		}
	})
}
