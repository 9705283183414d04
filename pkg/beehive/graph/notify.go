package graph

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/beehive/pkg/beehive/bee"
	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
	"github.com/randalmurphal/beehive/pkg/beehive/event"
)

// Notify routes ev through the graph and returns the number of listeners
// invoked or torn down.
//
// For each reached listener, in depth-first order:
//   - poison tears down the listener's whole subtree, children first
//   - a filtered-out event stops at the listener
//   - OnEvent's result is forwarded to the children; a nil result or a
//     failure stops propagation, and a failure is reported to OnError
//
// Listeners torn down by an earlier poison are skipped.
func (g *Graph) Notify(ctx context.Context, ev event.Event) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make([]bool, len(g.nodes))
	if ev.IsPoison() {
		return g.poison(ctx, g.roots, visited)
	}

	type delivery struct {
		id NodeID
		ev event.Event
	}

	stack := make([]delivery, 0, len(g.roots))
	for i := len(g.roots) - 1; i >= 0; i-- {
		stack = append(stack, delivery{id: g.roots[i], ev: ev})
	}

	handled := 0
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[d.id] {
			continue
		}

		n := g.nodes[d.id]
		if d.ev.IsPoison() {
			handled += g.poison(ctx, []NodeID{d.id}, visited)
			continue
		}
		visited[d.id] = true

		if n.tornDown.Load() || !n.accepts(d.ev.Topic()) {
			continue
		}

		handled++
		out, ok := g.deliver(ctx, n, d.ev)
		if !ok {
			continue
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			if !visited[n.children[i]] {
				stack = append(stack, delivery{id: n.children[i], ev: out})
			}
		}
	}
	return handled
}

// deliver invokes one listener and converts its result into the event
// forwarded to its children. ok is false when nothing should be forwarded.
func (g *Graph) deliver(ctx context.Context, n *node, ev event.Event) (out event.Event, ok bool) {
	spanCtx, span := g.spans.StartDeliverySpan(ctx, n.name)
	start := time.Now()

	var result any
	err := bee.Protect(func() error {
		var ferr error
		result, ferr = n.listener.OnEvent(spanCtx, ev)
		return ferr
	})
	elapsed := time.Since(start)

	if err != nil {
		terr := &bherrors.TransformError{Listener: n.name, EventID: ev.ID(), Err: err}
		bee.NotifyError(spanCtx, n.listener, terr)
		g.spans.EndSpanWithError(span, terr)
		g.reporter.Delivered(ctx, n.name, ev, elapsed, terr)
		return event.Event{}, false
	}

	g.spans.EndSpanWithError(span, nil)
	g.reporter.Delivered(ctx, n.name, ev, elapsed, nil)

	switch v := result.(type) {
	case nil:
		return event.Event{}, false
	case event.Event:
		if v.IsZero() {
			return event.Event{}, false
		}
		return event.From(v), true
	default:
		return event.New(v, event.WithTopic(ev.Topic())), true
	}
}

// poison tears down every listener under starts, children before parents.
// Callers hold mu.
func (g *Graph) poison(ctx context.Context, starts []NodeID, visited []bool) int {
	handled := 0
	g.postOrder(starts, visited, func(n *node) {
		if ran, _ := g.teardown(ctx, n); ran {
			handled++
		}
	})
	return handled
}

// teardown runs n's Teardown hook unless it already ran.
func (g *Graph) teardown(ctx context.Context, n *node) (ran bool, err error) {
	if !n.tornDown.CompareAndSwap(false, true) {
		return false, nil
	}

	err = bee.RunTeardown(ctx, n.name, n.listener)
	g.reporter.Lifecycle(ctx, n.name, bherrors.PhaseTeardown, err)
	return true, err
}

// Setup runs every listener's Setup hook once, parents before children.
// A failing listener is reported and stays registered; it still receives
// events. The returned error joins every failure.
func (g *Graph) Setup(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	g.preOrder(func(n *node) bool {
		n.tornDown.Store(false)
		err := bee.RunSetup(ctx, n.name, n.listener)
		g.reporter.Lifecycle(ctx, n.name, bherrors.PhaseSetup, err)
		if err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

// Teardown runs the Teardown hook of every listener not already torn down,
// children before parents. The returned error joins every failure.
func (g *Graph) Teardown(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	visited := make([]bool, len(g.nodes))
	g.postOrder(g.roots, visited, func(n *node) {
		if _, err := g.teardown(ctx, n); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
