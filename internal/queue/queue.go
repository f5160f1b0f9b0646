// Package queue holds the FIFO of pending file imports.
package queue

import "sync"

const minCapacity = 8

// Queue is a FIFO ring buffer safe for concurrent use.
type Queue[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	count int
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{buf: make([]T, minCapacity)}
}

// Push appends items in order.
func (q *Queue[T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range items {
		if q.count == len(q.buf) {
			q.grow()
		}
		q.buf[(q.head+q.count)%len(q.buf)] = it
		q.count++
	}
}

func (q *Queue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	q.copyTo(next)
	q.buf = next
	q.head = 0
}

// copyTo writes the queued items in order to dst, which must be large enough.
func (q *Queue[T]) copyTo(dst []T) {
	n := copy(dst, q.buf[q.head:min(q.head+q.count, len(q.buf))])
	copy(dst[n:], q.buf[:q.count-n])
}

// Pop removes the oldest item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.count == 0 {
		return zero, false
	}
	it := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return it, true
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.buf[q.head], true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Drain removes and returns everything queued, oldest first.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, q.count)
	q.copyTo(out)
	q.reset()
	return out
}

// Clear drops everything queued.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
}

func (q *Queue[T]) reset() {
	clear(q.buf)
	q.head = 0
	q.count = 0
}
