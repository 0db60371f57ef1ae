package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned from blocking reads on a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a thread-safe queue. Besides FIFO reads it supports matched reads, which remove the
// oldest element satisfying a predicate and leave everything else in place.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond // used to wait for elements in the queue
	elems  []T
	closed error
}

// New creates a new queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{elems: make([]T, 0)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put adds an element to the queue. Puts on a closed queue are dropped.
func (q *Queue[T]) Put(t T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed != nil {
		return
	}
	q.elems = append(q.elems, t)
	// Matched readers may be waiting on elements other than the head, so wake everyone.
	q.cond.Broadcast()
}

// Get removes and returns an element from the queue. If the queue is empty, then Get will block
// until an element is available.
func (q *Queue[T]) Get() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.empty() {
		q.cond.Wait()
	}
	res := q.elems[0]
	q.elems = q.elems[1:]
	return res
}

// TryGet removes and returns the head of the queue without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.empty() {
		var t T
		return t, false
	}
	res := q.elems[0]
	q.elems = q.elems[1:]
	return res, true
}

// GetWithContext removes and returns an element from the queue. If the queue is empty, then Get will block
// until an element is available or the context is canceled.
func (q *Queue[T]) GetWithContext(ctx context.Context) (T, error) {
	return q.GetMatching(ctx, func(T) bool { return true })
}

// GetMatching removes and returns the oldest element for which match returns true. It blocks
// until such an element is put, the context is canceled or the queue is closed. This routine is
// relatively expensive---every Put wakes every waiter to rescan.
func (q *Queue[T]) GetMatching(ctx context.Context, match func(T) bool) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()

	for {
		for i, elem := range q.elems {
			if match(elem) {
				q.elems = append(q.elems[:i:i], q.elems[i+1:]...)
				return elem, nil
			}
		}
		var t T
		if err := ctx.Err(); err != nil {
			return t, err
		}
		if q.closed != nil {
			return t, q.closed
		}
		q.cond.Wait()
	}
}

// Close wakes all blocked readers; they, and any later reader that finds no match, receive err
// (ErrClosed if err is nil). Elements already queued remain readable.
func (q *Queue[T]) Close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed != nil {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	q.closed = err
	q.cond.Broadcast()
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.elems)
}

func (q *Queue[T]) empty() bool {
	return len(q.elems) == 0
}
