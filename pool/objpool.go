// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// EventPool is a generic pool of per-operation event objects. It wraps
// sync.Pool with a mandatory New constructor, so Get never hands back a
// zero-value object: sync.Pool guarantees a freshly constructed one
// whenever the pool is empty.
type EventPool[T any] struct {
	pool *sync.Pool
	// reset, if non-nil, is applied to every object returned via Put
	// before it re-enters the free list, so a reused event never leaks
	// state from its previous operation.
	reset func(*T)
}

// NewEventPool builds an EventPool whose New constructor is newT. reset may
// be nil if T needs no clearing between uses.
func NewEventPool[T any](newT func() *T, reset func(*T)) *EventPool[T] {
	return &EventPool[T]{
		pool:  &sync.Pool{New: func() any { return newT() }},
		reset: reset,
	}
}

// Get returns a ready-to-use object, freshly constructed if the pool is
// currently empty.
func (p *EventPool[T]) Get() *T {
	return p.pool.Get().(*T)
}

// Put clears obj (if a reset function was supplied) and returns it to the
// pool.
func (p *EventPool[T]) Put(obj *T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}
