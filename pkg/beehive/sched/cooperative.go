package sched

import (
	"context"
	"iter"
	"sync"
	"time"
)

// coTask is one coroutine. Fields other than the ones set at spawn are only
// touched on the driving goroutine or inside the coroutine while it holds
// control, so they need no lock.
type coTask struct {
	name string
	next func() (struct{}, bool)
	stop func()
	wake time.Time
	done bool
}

type cooperative struct {
	cfg Config

	mu      sync.Mutex
	tasks   []*coTask
	spawned []*coTask
}

func newCooperative(cfg Config) *cooperative {
	return &cooperative{cfg: cfg}
}

// coEnv is the environment seen by a single coroutine.
type coEnv struct {
	s       *cooperative
	t       *coTask
	yieldFn func(struct{}) bool
}

func (e *coEnv) yield(ctx context.Context) bool {
	if !e.yieldFn(struct{}{}) {
		return false
	}
	return ctx.Err() == nil
}

func (e *coEnv) idle(ctx context.Context) bool {
	e.t.wake = time.Now().Add(e.s.cfg.PollInterval)
	return e.yield(ctx)
}

func (e *coEnv) pollTimeout() time.Duration {
	return 0
}

func (e *coEnv) model() Model {
	return Cooperative
}

func (s *cooperative) newTask(ctx context.Context, name string, task Task) *coTask {
	t := &coTask{name: name}
	seq := func(yield func(struct{}) bool) {
		guard(withEnv(ctx, &coEnv{s: s, t: t, yieldFn: yield}), s.cfg, name, task)
	}
	t.next, t.stop = iter.Pull(iter.Seq[struct{}](seq))
	return t
}

// Spawn registers a coroutine; it is safe to call from inside another task.
func (s *cooperative) Spawn(ctx context.Context, name string, task Task) {
	t := s.newTask(ctx, name, task)

	s.mu.Lock()
	s.spawned = append(s.spawned, t)
	s.mu.Unlock()
}

// Run drives every coroutine, main included, until main returns.
func (s *cooperative) Run(ctx context.Context, main Task) {
	m := s.newTask(ctx, "main", main)

	s.mu.Lock()
	s.spawned = append(s.spawned, m)
	s.mu.Unlock()

	s.drive(func() bool { return m.done })
}

// Join drives the remaining coroutines until all have returned.
func (s *cooperative) Join() {
	s.drive(func() bool { return false })
}

func (s *cooperative) Model() Model {
	return Cooperative
}

// drive runs scheduling rounds until finished reports true or no tasks remain.
// A round resumes every task whose wake time has passed, in spawn order.
// When every task is parked the driver sleeps until the earliest wake time.
func (s *cooperative) drive(finished func() bool) {
	for !finished() {
		s.mu.Lock()
		s.tasks = append(s.tasks, s.spawned...)
		s.spawned = nil
		tasks := s.tasks
		s.mu.Unlock()

		if len(tasks) == 0 {
			return
		}

		now := time.Now()
		ran := false
		var earliest time.Time

		for _, t := range tasks {
			if t.done {
				continue
			}
			if now.Before(t.wake) {
				if earliest.IsZero() || t.wake.Before(earliest) {
					earliest = t.wake
				}
				continue
			}

			ran = true
			t.wake = time.Time{}
			if _, more := t.next(); !more {
				t.done = true
				t.stop()
			}
		}

		s.compact()

		if !ran && !earliest.IsZero() {
			if d := time.Until(earliest); d > 0 {
				time.Sleep(d)
			}
		}
	}
}

func (s *cooperative) compact() {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.done {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = live
}
