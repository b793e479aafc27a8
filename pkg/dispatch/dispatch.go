// Package dispatch queues closures from any goroutine and runs them, in
// submission order, on the single goroutine that drains the queue.
package dispatch

import (
	"sync"
	"sync/atomic"

	"deedles.dev/xsync"
)

// Scheduler accepts closures from any goroutine.
type Scheduler interface {
	Schedule(fn func())
}

type Option func(*Dispatcher)

// WithWakeup sets a hook that is called after every Schedule. It is used by
// consumers that wait on something other than the queue, e.g. a poll(2) loop.
func WithWakeup(wake func()) Option {
	return func(d *Dispatcher) {
		d.wake = wake
	}
}

type Dispatcher struct {
	queue xsync.Queue[func()]

	// pending counts closures accepted by Schedule and not yet run; the
	// queue hands values over through its own goroutine, so it is the only
	// reliable way to know a drain is complete
	pending atomic.Int64

	mu     sync.RWMutex
	closed bool
	wake   func()
}

var _ Scheduler = (*Dispatcher)(nil)

func New(opts ...Option) *Dispatcher {
	d := new(Dispatcher)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Schedule does not wait for the consumer. Closures scheduled after Close
// are dropped.
func (d *Dispatcher) Schedule(fn func()) {
	if fn == nil {
		return
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	d.pending.Add(1)
	d.queue.Push() <- fn
	d.mu.RUnlock()

	if d.wake != nil {
		d.wake()
	}
}

// next yields queued closures one at a time, in submission order.
func (d *Dispatcher) next() <-chan func() {
	return d.queue.Pop()
}

func (d *Dispatcher) run(fn func()) {
	d.pending.Add(-1)
	fn()
}

// Dispatch runs the closures scheduled so far and returns how many ran.
// Closures scheduled while dispatching wait for the next call.
func (d *Dispatcher) Dispatch() int {
	want := int(d.pending.Load())

	ran := 0
	for ran < want {
		fn, ok := <-d.next()
		if !ok {
			break
		}
		d.run(fn)
		ran++
	}

	return ran
}

// Len reports how many closures are waiting.
func (d *Dispatcher) Len() int {
	return int(d.pending.Load())
}

// Close stops the queue. Queued closures reference their owners, which
// keeps the queue reachable, so it has to be stopped explicitly.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.queue.Stop()
}
