// Package mainloop confines work to a single goroutine, the way a UI main
// thread serialises every state change.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Do once the loop has been closed.
var ErrClosed = errors.New("mainloop: closed")

// Loop runs queued functions one at a time, in submission order, on a single
// goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
	onPanic func(any)
}

// Option customises a Loop.
type Option func(*Loop)

// WithPanicHandler receives values recovered from panicking dispatched
// functions. Without it such panics are discarded.
func WithPanicHandler(fn func(any)) Option {
	return func(l *Loop) { l.onPanic = fn }
}

// New starts a loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.run()
	return l
}

// Dispatch enqueues fn without waiting for it. Functions dispatched after
// Close are dropped.
func (l *Loop) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

const (
	pending int32 = iota
	running
	abandoned
)

// Do runs fn on the loop and waits for it to return. A panic in fn is
// recovered and returned as an error. If ctx ends before fn has started, fn
// is skipped and ctx.Err() is returned; once fn has started Do waits for it,
// so a nil error means fn ran and a ctx error means it never will. Calling Do
// from the loop goroutine deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	var state atomic.Int32
	finished := make(chan error, 1)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, func() {
		if !state.CompareAndSwap(pending, running) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				finished <- fmt.Errorf("mainloop: panic: %v", r)
			}
		}()
		fn()
		finished <- nil
	})
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-finished:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(pending, abandoned) {
			return ctx.Err()
		}
		return <-finished
	}
}

// Close stops accepting work, drains what is already queued and waits for the
// loop goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				closed := l.closed
				l.mu.Unlock()
				if closed {
					return
				}
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.safeRun(fn)
		}
	}
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.onPanic != nil {
			l.onPanic(r)
		}
	}()
	fn()
}
