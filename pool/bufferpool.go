// Package pool implements the byte-buffer and event-object pools used on
// the send and receive paths: a single power-of-two size-class table with
// a lazily-created sync.Pool per class, plus rent/return counters.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package pool

import (
	"sync"
	"sync/atomic"
)

// sizeClasses is the power-of-two class table buffers are bucketed into.
var sizeClasses = [...]int{
	64, 128, 256, 512,
	1 * 1024, 2 * 1024, 4 * 1024, 8 * 1024,
	16 * 1024, 32 * 1024, 64 * 1024,
	128 * 1024, 256 * 1024,
}

func classFor(size int) int {
	for _, c := range sizeClasses {
		if size <= c {
			return c
		}
	}
	return sizeClasses[len(sizeClasses)-1]
}

// Buffer is a byte slice rented from a BufferPool. Bytes is sized exactly
// to the caller's request; its backing array may be larger (the owning
// size class).
type Buffer struct {
	Bytes []byte
	class int
	owner *BufferPool
}

// Release returns the buffer to the pool it was rented from. Call it
// exactly once per Rent. Returning clears the owner, so a repeated call
// does nothing until the pool rents the same Buffer out again; after
// that, a stale Release hands back the new renter's buffer, which is a
// caller bug, not a pool-internal one.
func (b *Buffer) Release() {
	if b.owner != nil {
		b.owner.put(b)
	}
}

// BufferPoolStats reports rent/return counters for diagnostics.
type BufferPoolStats struct {
	TotalRent   int64
	TotalReturn int64
	InUse       int64
}

// BufferPool is a process-wide byte-buffer pool keyed by power-of-two size
// class. Every failure and success path must call Release exactly once on
// a rented Buffer; the pool itself does not
// enforce this beyond offering no other way to reclaim the slab.
type BufferPool struct {
	mu      sync.RWMutex
	classes map[int]*sync.Pool

	totalRent   atomic.Int64
	totalReturn atomic.Int64
}

// NewBufferPool constructs an empty pool; subpools are created lazily per
// size class on first Rent.
func NewBufferPool() *BufferPool {
	return &BufferPool{classes: make(map[int]*sync.Pool)}
}

// Rent returns a Buffer whose Bytes slice has length size, backed by a
// slab from the smallest size class that fits. Requests larger than the
// biggest class bypass the pool entirely and allocate exactly size bytes;
// releasing such a buffer is a no-op classification-wise, it simply isn't
// handed back to any subpool's free list.
func (p *BufferPool) Rent(size int) *Buffer {
	class := classFor(size)
	if size > class {
		p.totalRent.Add(1)
		return &Buffer{Bytes: make([]byte, size), class: size, owner: p}
	}
	sp := p.subpool(class)
	buf := sp.Get().(*Buffer)
	buf.Bytes = buf.Bytes[:size]
	buf.owner = p
	p.totalRent.Add(1)
	return buf
}

func (p *BufferPool) put(b *Buffer) {
	class := b.class
	b.owner = nil
	if class > sizeClasses[len(sizeClasses)-1] {
		p.totalReturn.Add(1)
		return
	}
	sp := p.subpool(class)
	sp.Put(b)
	p.totalReturn.Add(1)
}

func (p *BufferPool) subpool(class int) *sync.Pool {
	p.mu.RLock()
	sp, ok := p.classes[class]
	p.mu.RUnlock()
	if ok {
		return sp
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok = p.classes[class]; ok {
		return sp
	}
	c := class
	sp = &sync.Pool{New: func() any {
		return &Buffer{Bytes: make([]byte, c), class: c}
	}}
	p.classes[class] = sp
	return sp
}

// Stats returns a snapshot of rent/return counters.
func (p *BufferPool) Stats() BufferPoolStats {
	rent := p.totalRent.Load()
	ret := p.totalReturn.Load()
	return BufferPoolStats{TotalRent: rent, TotalReturn: ret, InUse: rent - ret}
}
