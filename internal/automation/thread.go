// Package automation runs all host-engine calls on one dedicated goroutine.
//
// The host engine's automation surface is thread-affine: it may only be
// invoked from a single thread of execution. Thread is an actor that owns
// that goroutine. Callers hand work off through a channel and wait on a
// per-task result channel, so a caller never holds a lock while the actor is
// busy, and a caller's context bounds how long it waits.
//
// Work submitted from inside a running task (detected through the task's
// context) runs inline instead of being queued behind itself.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned for work submitted after Stop, or still queued when Stop ran
var ErrStopped = errors.New("automation thread stopped")

// PanicError is returned when a task panics
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("automation task panicked: %v", e.Value)
}

type onThreadKey struct{}

// OnThread reports whether ctx belongs to a task running on any Thread
func OnThread(ctx context.Context) bool {
	_, ok := ctx.Value(onThreadKey{}).(*Thread)
	return ok
}

type task struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Thread is a single-worker task queue
type Thread struct {
	name  string
	tasks chan task

	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	started  atomic.Bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewThread creates a thread with a bounded queue. Start must be called before use.
func NewThread(name string, queueSize int) *Thread {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Thread{
		name:    name,
		tasks:   make(chan task, queueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it twice is a no-op.
func (t *Thread) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.loop()
	log.Printf("🧵 [AUTOMATION] Thread %q started", t.name)
}

func (t *Thread) loop() {
	defer close(t.stopped)
	for {
		select {
		case <-t.quit:
			t.drain()
			return
		case tk := <-t.tasks:
			t.run(tk)
		}
	}
}

// drain fails everything still queued so no caller waits forever
func (t *Thread) drain() {
	for {
		select {
		case tk := <-t.tasks:
			tk.done <- ErrStopped
		default:
			return
		}
	}
}

func (t *Thread) run(tk task) {
	if err := tk.ctx.Err(); err != nil {
		// the caller already gave up; don't touch the engine on its behalf
		tk.done <- err
		return
	}
	err := t.invoke(tk.ctx, tk.fn)
	if err != nil {
		t.failed.Add(1)
	} else {
		t.completed.Add(1)
	}
	tk.done <- err
}

func (t *Thread) invoke(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [AUTOMATION] Panic in task on %q: %v", t.name, r)
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(context.WithValue(ctx, onThreadKey{}, t))
}

// Do runs fn on the thread and waits for it, bounded by ctx. If ctx already
// belongs to a task on this thread, fn runs inline.
func (t *Thread) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(onThreadKey{}).(*Thread); ok && owner == t {
		return t.invoke(ctx, fn)
	}

	done := make(chan error, 1)
	select {
	case <-t.quit:
		return ErrStopped
	default:
	}

	select {
	case t.tasks <- task{ctx: ctx, fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.quit:
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.stopped:
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	}
}

// Pending returns the number of queued tasks
func (t *Thread) Pending() int {
	return len(t.tasks)
}

// Stats returns completed and failed task counts
func (t *Thread) Stats() (completed, failed int64) {
	return t.completed.Load(), t.failed.Load()
}

// Stop stops accepting work and waits up to timeout for the running task to
// finish. Queued tasks fail with ErrStopped. Returns false on timeout.
func (t *Thread) Stop(timeout time.Duration) bool {
	t.stopOnce.Do(func() {
		close(t.quit)
	})
	if !t.started.Load() {
		return true
	}

	select {
	case <-t.stopped:
		log.Printf("✅ [AUTOMATION] Thread %q stopped", t.name)
		return true
	case <-time.After(timeout):
		log.Printf("⚠️ [AUTOMATION] Thread %q did not stop within %s", t.name, timeout)
		return false
	}
}

// Call runs fn on t and returns its value
func Call[T any](ctx context.Context, t *Thread, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := t.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
