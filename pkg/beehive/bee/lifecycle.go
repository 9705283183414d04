package bee

import (
	"context"
	"runtime/debug"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
)

// Protect runs fn and converts a panic into a *PanicError.
func Protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &bherrors.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

// RunSetup calls h.Setup and wraps any failure in a *LifecycleError.
func RunSetup(ctx context.Context, node string, h Hooks) error {
	if err := Protect(func() error { return h.Setup(ctx) }); err != nil {
		return &bherrors.LifecycleError{Node: node, Phase: bherrors.PhaseSetup, Err: err}
	}
	return nil
}

// RunTeardown calls h.Teardown and wraps any failure in a *LifecycleError.
func RunTeardown(ctx context.Context, node string, h Hooks) error {
	if err := Protect(func() error { return h.Teardown(ctx) }); err != nil {
		return &bherrors.LifecycleError{Node: node, Phase: bherrors.PhaseTeardown, Err: err}
	}
	return nil
}

// NotifyError calls h.OnError. A panic in the handler is discarded.
func NotifyError(ctx context.Context, h Hooks, err error) {
	_ = Protect(func() error {
		h.OnError(ctx, err)
		return nil
	})
}
