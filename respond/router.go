// Package respond implements the client-side response correlation table:
// responseId → waiter, with monotonic id allocation and timeout sweeping.
// The waiter/timeout shape follows the same mutex-guarded-map-plus-
// time.AfterFunc idiom used elsewhere in this runtime for bounded waits.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package respond

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/framenet/api"
)

// Response is what a completed waiter resolves to: either a payload, or
// an error (Timeout or Aborted).
type Response struct {
	Payload []byte
	Err     error
}

// Future is returned by Router.Register; Wait blocks until the matching
// response arrives, the timeout elapses, or the router is aborted.
type Future struct {
	done chan struct{}
	resp Response
}

// Wait blocks until the future is completed and returns its Response.
func (f *Future) Wait() Response {
	<-f.done
	return f.resp
}

type waiter struct {
	fut     *Future
	timer   *time.Timer
	done    atomic.Bool
}

// Router owns the responseId → waiter table for one client connection.
type Router struct {
	mu      sync.Mutex
	waiters map[uint32]*waiter
	nextID  uint32
}

// New builds an empty Router. id 0 is reserved for fire-and-forget sends
// and is never allocated by NextID.
func New() *Router {
	return &Router{waiters: make(map[uint32]*waiter)}
}

// NextID allocates a fresh, non-zero, monotonically increasing response
// id.
func (r *Router) NextID() uint32 {
	for {
		id := atomic.AddUint32(&r.nextID, 1)
		if id != 0 {
			return id
		}
		// wrapped around to 0 (after ~4 billion allocations): skip it.
	}
}

// Register installs a waiter for id with the given timeout, returning the
// Future the caller should block on. If timeout is 0, no timer is armed.
// Register fails with api.ErrResponseIDReused if id already has a pending
// waiter, rather than silently overwriting it and orphaning the original
// caller's Future.
func (r *Router) Register(id uint32, timeout time.Duration) (*Future, error) {
	fut := &Future{done: make(chan struct{})}
	w := &waiter{fut: fut}
	r.mu.Lock()
	if _, exists := r.waiters[id]; exists {
		r.mu.Unlock()
		return nil, api.ErrResponseIDReused
	}
	r.waiters[id] = w
	r.mu.Unlock()

	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			r.complete(id, Response{Err: api.ErrTimeout})
		})
	}
	return fut, nil
}

// Complete resolves the waiter for id with payload, if one is still
// pending, and reports whether a waiter was actually matched. A response
// for an id with no pending waiter (already completed, or never
// registered) is dropped.
func (r *Router) Complete(id uint32, payload []byte) bool {
	return r.complete(id, Response{Payload: payload})
}

func (r *Router) complete(id uint32, resp Response) bool {
	r.mu.Lock()
	w, ok := r.waiters[id]
	if ok {
		delete(r.waiters, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if !w.done.CompareAndSwap(false, true) {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.fut.resp = resp
	close(w.fut.done)
	return true
}

// Abort completes every pending waiter with api.ErrAborted and clears the
// table. Called on Disconnect.
func (r *Router) Abort() {
	r.mu.Lock()
	pending := r.waiters
	r.waiters = make(map[uint32]*waiter)
	r.mu.Unlock()

	for id, w := range pending {
		_ = id
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.done.CompareAndSwap(false, true) {
			w.fut.resp = Response{Err: api.ErrAborted}
			close(w.fut.done)
		}
	}
}

// Pending returns the number of outstanding waiters.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
