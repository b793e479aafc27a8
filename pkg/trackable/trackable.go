// Package trackable provides weak identities for objects that are owned by
// one goroutine but referenced by work running elsewhere.
package trackable

import "sync/atomic"

// Watcher reports whether the watched object still exists.
type Watcher interface {
	Valid() bool
}

// Handle is held by the owner and invalidated when the object is destroyed.
type Handle[T any] struct {
	obj   *T
	alive *atomic.Bool
}

func New[T any](obj *T) *Handle[T] {
	alive := new(atomic.Bool)
	alive.Store(true)
	return &Handle[T]{obj: obj, alive: alive}
}

func (h *Handle[T]) Ref() Ref[T] {
	return Ref[T]{obj: h.obj, alive: h.alive}
}

// Invalidate is idempotent.
func (h *Handle[T]) Invalidate() {
	h.alive.Store(false)
}

func (h *Handle[T]) Valid() bool {
	return h.alive.Load()
}

// Ref is a copyable weak reference.
type Ref[T any] struct {
	obj   *T
	alive *atomic.Bool
}

var _ Watcher = Ref[struct{}]{}

func (r Ref[T]) Valid() bool {
	return r.alive != nil && r.alive.Load()
}

// Get returns nil once the handle has been invalidated.
func (r Ref[T]) Get() *T {
	if !r.Valid() {
		return nil
	}
	return r.obj
}
