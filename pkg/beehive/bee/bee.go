// Package bee defines the nodes of a hive: listeners that transform events
// and streamers that produce them.
//
// User code implements Listener or Source, usually through the function
// builders (NewListener, NewSource, Values), and hands them to a hive. The
// Streamer type is the runtime that drives a Source: it wraps produced
// values into events, pushes them into the hive queue and applies its
// RestartPolicy when the source is exhausted or fails.
//
// All hooks receive the context of the task that calls them. Under the
// cooperative scheduler a hook may call sched.Yield(ctx) to suspend.
package bee

import (
	"context"
	"iter"

	"github.com/randalmurphal/beehive/pkg/beehive/event"
)

// Hooks are the lifecycle callbacks shared by every node.
type Hooks interface {
	// Setup runs once before the node receives or produces events.
	Setup(ctx context.Context) error

	// Teardown runs once when the hive stops or poison reaches the node.
	Teardown(ctx context.Context) error

	// OnError is notified of isolated failures of this node.
	OnError(ctx context.Context, err error)
}

// Base provides no-op Hooks. Embed it to implement only the hooks you need.
type Base struct{}

// Setup implements Hooks.
func (Base) Setup(context.Context) error { return nil }

// Teardown implements Hooks.
func (Base) Teardown(context.Context) error { return nil }

// OnError implements Hooks.
func (Base) OnError(context.Context, error) {}

// Listener consumes events and optionally produces a new one for its children.
type Listener interface {
	Hooks

	// Name identifies the listener for chaining. Names need not be unique;
	// a chain targets every listener carrying the name.
	Name() string

	// OnEvent transforms ev. A nil result stops propagation. An event.Event
	// result is forwarded as is; any other value is wrapped in a new event
	// carrying ev's topic.
	OnEvent(ctx context.Context, ev event.Event) (any, error)
}

// Source produces the values a Streamer publishes.
type Source interface {
	Hooks

	// Stream returns a fresh sequence for one production cycle. A non-nil
	// error ends the cycle; yield Pending to report that no data is ready.
	Stream(ctx context.Context) iter.Seq2[any, error]
}

type pending struct{}

// Pending is yielded by a Source that has nothing to produce yet.
// The streamer idles for one poll interval instead of emitting an event.
var Pending any = pending{}

// Sink receives the events produced by a Streamer.
type Sink interface {
	Push(ev event.Event) error
}
