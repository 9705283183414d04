// Package queue provides the unbounded FIFO shared by a hive's producers and
// its dispatch loop.
//
// Push never blocks for capacity. Pop waits at most the given timeout, and
// returns immediately when the timeout is zero, which is how cooperative
// tasks poll without stalling the scheduler.
package queue

import (
	"sync"
	"time"

	infinity "github.com/Code-Hex/go-infinity-channel"

	bherrors "github.com/randalmurphal/beehive/pkg/beehive/errors"
)

// Queue is an unbounded multi-producer FIFO.
// A Queue must be created with New.
type Queue[T any] struct {
	ch *infinity.Channel[T]

	mu     sync.RWMutex
	closed bool
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ch: infinity.NewChannel[T]()}
}

// Push appends v. It returns ErrQueueClosed after Close.
func (q *Queue[T]) Push(v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return bherrors.ErrQueueClosed
	}
	q.ch.In() <- v
	return nil
}

// Pop removes the oldest item.
// It waits up to timeout for one to arrive; timeout <= 0 polls without
// waiting. ok is false when nothing was available or the queue is closed and
// drained.
func (q *Queue[T]) Pop(timeout time.Duration) (v T, ok bool) {
	if timeout <= 0 {
		select {
		case v, ok = <-q.ch.Out():
			return v, ok
		default:
			return v, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v, ok = <-q.ch.Out():
		return v, ok
	case <-timer.C:
		return v, false
	}
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	return q.ch.Len()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Close stops accepting items. Items already pushed remain poppable.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.ch.Close()
}
