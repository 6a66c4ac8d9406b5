// Package mainloop provides the single-goroutine event loop that every map
// session runs on. Surface mutations and coordinator state changes happen only
// inside tasks executed by the loop; background work posts its results back.
package mainloop

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("mainloop: stopped")

// defaultQueueSize bounds the number of tasks waiting to run.
const defaultQueueSize = 64

// Loop executes posted tasks one at a time, in FIFO order.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Loop. Call Run to start processing tasks.
func New() *Loop {
	return &Loop{
		tasks: make(chan func(), defaultQueueSize),
		done:  make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Stop terminates the loop. Pending tasks are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Post queues fn for execution on the loop. It reports false when the loop has
// stopped and fn was dropped.
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

// After posts fn once d has elapsed. The returned timer can be stopped to
// cancel the task before it is queued.
func (l *Loop) After(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task posted before the call has run.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func() {})
}
