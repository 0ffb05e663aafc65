// Package queue provides an unbounded FIFO that hands work from one goroutine
// to another.
//
// Push never blocks, so a slow consumer never stalls the producer; the cost
// is that the queue grows without bound while the consumer lags. Len exposes
// the backlog so it can be monitored.
package queue

import (
	"context"
	"sync"
	"time"
)

// Queue is an unbounded, goroutine-safe FIFO.
// The zero value is not usable; call New.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// ready holds at most one wake-up token. Push deposits one; a consumer
	// that takes it and leaves items behind puts it back.
	ready chan struct{}
	done  chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends v. It never blocks. Pushing to a closed queue is a no-op.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
}

// Pop removes and returns the oldest item. It waits up to wait for one to
// arrive and reports false if none did, if ctx is done, or if the queue was
// closed and is empty.
func (q *Queue[T]) Pop(ctx context.Context, wait time.Duration) (T, bool) {
	if v, ok := q.TryPop(); ok {
		return v, true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-timer.C:
			return q.TryPop()
		case <-q.done:
			return q.TryPop()
		case <-q.ready:
			if v, ok := q.TryPop(); ok {
				return v, true
			}
		}
	}
}

// TryPop removes and returns the oldest item without waiting.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.wake()
	}
	return v, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue accepting items and wakes every waiting Pop.
// Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
