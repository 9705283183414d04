// Package sched provides the scheduling capability a hive runs on.
//
// A Scheduler spawns named tasks, runs a main task to completion and joins
// the rest. Tasks cooperate with the scheduler through three package
// functions that read the task environment stored in the context:
//
//   - Yield gives other tasks a chance to run
//   - Idle reports that the task has nothing to do for one poll interval
//   - PollTimeout returns how long a task may block waiting for input
//
// Two models are provided. Preemptive runs every task on its own goroutine;
// Yield is a cancellation check and PollTimeout is positive, so tasks may
// block briefly on queues and sockets. Cooperative runs every task as a
// coroutine on the goroutine that called Run; PollTimeout is zero, so tasks
// must poll without blocking and hand control back through Yield and Idle.
//
// The same task code runs unchanged under both models:
//
//	for {
//		v, ok := q.Pop(sched.PollTimeout(ctx))
//		if !ok {
//			if !sched.Idle(ctx) {
//				return
//			}
//			continue
//		}
//		handle(v)
//	}
package sched

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// Model selects how tasks share the processor.
type Model int

const (
	// Preemptive runs each task on its own goroutine.
	Preemptive Model = iota

	// Cooperative runs all tasks as coroutines on a single goroutine.
	Cooperative
)

// String returns the model name.
func (m Model) String() string {
	switch m {
	case Preemptive:
		return "preemptive"
	case Cooperative:
		return "cooperative"
	default:
		return "unknown"
	}
}

// ParseModel converts a model name to a Model.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preemptive", "threaded":
		return Preemptive, nil
	case "cooperative", "async":
		return Cooperative, nil
	default:
		return Preemptive, fmt.Errorf("unknown scheduling model %q", s)
	}
}

// Default timings.
const (
	DefaultPollInterval = time.Millisecond
	DefaultQueueWait    = time.Millisecond
)

// Task is a unit of work run by a Scheduler.
// A task must return when its context is done or Yield/Idle return false.
type Task func(ctx context.Context)

// Scheduler runs tasks under one scheduling model.
type Scheduler interface {
	// Spawn starts a task. Under Cooperative the task first runs on the
	// next scheduling round of Run or Join.
	Spawn(ctx context.Context, name string, task Task)

	// Run executes main and returns when it finishes. Spawned tasks keep
	// running until Join.
	Run(ctx context.Context, main Task)

	// Join blocks until every spawned task has returned.
	Join()

	// Model returns the scheduling model.
	Model() Model
}

// Config configures a Scheduler.
type Config struct {
	// PollInterval is how long Idle parks a task.
	PollInterval time.Duration

	// QueueWait is the PollTimeout reported to preemptive tasks.
	QueueWait time.Duration

	// OnPanic is called with the task name and recovered value when a task
	// panics. The panicking task ends; others are unaffected.
	OnPanic func(task string, value any, stack []byte)
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.QueueWait <= 0 {
		c.QueueWait = DefaultQueueWait
	}
	return c
}

// New creates a scheduler for the given model.
func New(model Model, cfg Config) Scheduler {
	cfg = cfg.withDefaults()
	if model == Cooperative {
		return newCooperative(cfg)
	}
	return newPreemptive(cfg)
}

// env is the per-task view of the scheduler.
type env interface {
	yield(ctx context.Context) bool
	idle(ctx context.Context) bool
	pollTimeout() time.Duration
	model() Model
}

type envKey struct{}

func withEnv(ctx context.Context, e env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

func envFrom(ctx context.Context) env {
	if e, ok := ctx.Value(envKey{}).(env); ok {
		return e
	}
	return nil
}

// Yield hands control to other tasks. It returns false when the task should
// stop: its context is done or the scheduler is shutting it down.
// Outside a scheduler task Yield only checks the context.
func Yield(ctx context.Context) bool {
	if e := envFrom(ctx); e != nil {
		return e.yield(ctx)
	}
	return ctx.Err() == nil
}

// Idle parks the task for one poll interval. It returns false when the task
// should stop.
func Idle(ctx context.Context) bool {
	if e := envFrom(ctx); e != nil {
		return e.idle(ctx)
	}
	return sleep(ctx, DefaultPollInterval)
}

// PollTimeout returns how long the task may block waiting for input.
// It is zero under Cooperative.
func PollTimeout(ctx context.Context) time.Duration {
	if e := envFrom(ctx); e != nil {
		return e.pollTimeout()
	}
	return DefaultQueueWait
}

// ModelOf returns the model of the scheduler running ctx's task.
// ok is false outside a scheduler task.
func ModelOf(ctx context.Context) (m Model, ok bool) {
	if e := envFrom(ctx); e != nil {
		return e.model(), true
	}
	return Preemptive, false
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// guard runs task and reports a panic through cfg.OnPanic.
func guard(ctx context.Context, cfg Config, name string, task Task) {
	defer func() {
		if r := recover(); r != nil && cfg.OnPanic != nil {
			cfg.OnPanic(name, r, debug.Stack())
		}
	}()
	task(ctx)
}
