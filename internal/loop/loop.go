// Package loop provides the owner goroutine that executes every
// entity-store mutation. Background work hands results back through Post.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Run once the loop has been closed.
var ErrClosed = errors.New("loop: closed")

// Poster schedules a function on the owner goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Loop is a FIFO of functions drained by a single goroutine.
type Loop struct {
	tasks   chan func()
	done    chan struct{}
	once    sync.Once
	checker *Checker
}

// New creates a loop owned by the calling goroutine.
func New(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		tasks:   make(chan func(), size),
		done:    make(chan struct{}),
		checker: NewChecker(),
	}
}

// Checker returns the affinity checker of the owner goroutine.
func (l *Loop) Checker() *Checker {
	return l.checker
}

// Post enqueues fn. It blocks while the queue is full and returns false
// once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes posted functions until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	l.checker.Check()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case fn := <-l.tasks:
			fn()
		}
	}
}

// RunPending executes everything already queued without waiting and
// returns the number of functions run.
func (l *Loop) RunPending() int {
	l.checker.Check()
	n := 0
	for {
		select {
		case fn := <-l.tasks:
			fn()
			n++
		default:
			return n
		}
	}
}

// RunUntil executes posted functions until cond holds or ctx is done.
// cond is evaluated on the owner goroutine before each wait.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	l.checker.Check()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case fn := <-l.tasks:
			fn()
		}
	}
	return nil
}

// Len returns the number of queued functions.
func (l *Loop) Len() int {
	return len(l.tasks)
}

// Close stops the loop. Pending functions are dropped.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
}
