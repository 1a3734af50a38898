// Package ring implements the fixed-capacity byte ring buffer used by the
// reassembler to absorb stream fragment boundaries without per-byte
// allocation. Mask indexing keeps the capacity a power of two; a plain
// sync.Mutex guards the short critical section around each read/write,
// the shortest uncontended primitive this runtime provides.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package ring

import (
	"sync"

	"github.com/momentics/framenet/wire"
)

// Ring is a fixed-capacity circular byte buffer with bitmask indexing.
// All operations are guarded by a single mutex and are O(length) bounded;
// none suspend while holding it.
type Ring struct {
	mu    sync.Mutex
	buf   []byte
	mask  int
	head  int // next write position
	tail  int // next read position
	count int
}

// New allocates a ring whose capacity is rounded up to the next power of
// two, at least 2.
func New(capacity int) *Ring {
	c := nextPow2(capacity)
	return &Ring{buf: make([]byte, c), mask: c - 1}
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the ring's fixed capacity.
func (r *Ring) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Len returns the number of bytes currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear discards all buffered bytes.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.tail, r.count = 0, 0, 0
}

// Write copies as many bytes of p as fit in the remaining free space and
// returns the number written. Excess bytes are dropped by design: the
// reassembler treats a short write as a framing error and resynchronizes.
func (r *Ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	free := len(r.buf) - r.count
	n := len(p)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.buf[(r.head+i)&r.mask] = p[i]
	}
	r.head = (r.head + n) & r.mask
	r.count += n
	return n
}

// copyOut copies length bytes starting skip bytes past tail into dst,
// without mutating ring state. Caller must hold r.mu.
func (r *Ring) copyOut(skip, length int, dst []byte) bool {
	if skip < 0 || length < 0 || skip+length > r.count {
		return false
	}
	start := (r.tail + skip) & r.mask
	for i := 0; i < length; i++ {
		dst[i] = r.buf[(start+i)&r.mask]
	}
	return true
}

// Peek copies len(dst) bytes starting skip bytes past the current read
// position into dst, without consuming anything. Returns false if fewer
// than skip+len(dst) bytes are available.
func (r *Ring) Peek(skip int, dst []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOut(skip, len(dst), dst)
}

// PeekByte returns the byte at the given offset from the read position
// without consuming it.
func (r *Ring) PeekByte(offset int) (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset < 0 || offset >= r.count {
		return 0, false
	}
	return r.buf[(r.tail+offset)&r.mask], true
}

// Read copies len(dst) bytes starting skip bytes past the read position
// into dst and consumes skip+len(dst) bytes. skip is always consumed
// along with the read bytes so the tail advances by a consistent amount
// regardless of how the caller chose to split skip vs read length.
func (r *Ring) Read(skip int, dst []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.copyOut(skip, len(dst), dst) {
		return false
	}
	adv := skip + len(dst)
	r.tail = (r.tail + adv) & r.mask
	r.count -= adv
	return true
}

// Skip advances the read position by up to n bytes (capped to the number
// buffered) and returns the number actually skipped.
func (r *Ring) Skip(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	if n < 0 {
		n = 0
	}
	r.tail = (r.tail + n) & r.mask
	r.count -= n
	return n
}

// SkipUntil advances the read position to the first byte equal to value at
// or after offset bytes past the current read position, leaving that byte
// unconsumed. It returns true iff found. On a miss, the buffer is fully
// drained (all buffered bytes are discarded).
func (r *Ring) SkipUntil(offset int, value byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := offset; i < r.count; i++ {
		if r.buf[(r.tail+i)&r.mask] == value {
			r.tail = (r.tail + i) & r.mask
			r.count -= i
			return true
		}
	}
	r.tail = r.head
	r.count = 0
	return false
}

// PeekHeader reads wire.HeaderLen bytes starting skip bytes past the read
// position without consuming them, and parses them as a frame header. ok
// is false if fewer than skip+HeaderLen bytes are buffered.
func (r *Ring) PeekHeader(skip int) (flags byte, commandID, dataLength, checksum uint16, ok bool) {
	var hdr [wire.HeaderLen]byte
	if !r.Peek(skip, hdr[:]) {
		return 0, 0, 0, 0, false
	}
	flags, commandID, dataLength, checksum = wire.ParseHeader(hdr[:])
	return flags, commandID, dataLength, checksum, true
}
