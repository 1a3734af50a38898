// Package reassemble turns a stream of bytes absorbed into a ring.Ring
// back into discrete frames, resynchronizing past corruption. It runs a
// SEEK/READ_HEADER/READ_BODY state machine over the buffered bytes,
// probing for a clean header after any framing error instead of closing
// the connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package reassemble

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/momentics/framenet/pool"
	"github.com/momentics/framenet/ring"
	"github.com/momentics/framenet/wire"
)

type state int

const (
	stateSeek state = iota
	stateReadHeader
	stateReadBody
)

// Frame is an emitted, fully-decoded message. Buf is the pooled buffer
// backing Payload; the caller must Release it once done.
type Frame struct {
	CommandID  uint16
	ResponseID uint32
	Payload    []byte
	Buf        *pool.Buffer
}

// EmitFunc receives one reassembled frame at a time, in arrival order.
type EmitFunc func(Frame)

// Reassembler drives the ring through the SEEK/READ_HEADER/READ_BODY
// states. It is single-consumer: Write must only ever be called from the
// owning connection's receive task.
type Reassembler struct {
	r    *ring.Ring
	bp   *pool.BufferPool
	emit EmitFunc

	st   state
	need int // valid once st == stateReadBody
}

// New builds a Reassembler reading from r, renting frame buffers from bp,
// and invoking emit for each successfully decoded frame.
func New(r *ring.Ring, bp *pool.BufferPool, emit EmitFunc) *Reassembler {
	return &Reassembler{r: r, bp: bp, emit: emit, st: stateSeek}
}

// Write appends newly arrived bytes to the ring and drives as many state
// transitions as the buffered data allows. Excess bytes beyond the ring's
// free space are dropped by ring.Write itself;
// Write returns the number of bytes actually absorbed.
func (a *Reassembler) Write(p []byte) int {
	n := a.r.Write(p)
	a.pump()
	return n
}

// pump runs the state machine until it can make no further progress with
// the bytes currently buffered.
func (a *Reassembler) pump() {
	for {
		switch a.st {
		case stateSeek:
			if !a.seek() {
				return
			}
			a.st = stateReadHeader
		case stateReadHeader:
			ok, advance := a.readHeader()
			if !advance {
				return
			}
			if !ok {
				a.st = stateSeek
				continue
			}
			a.st = stateReadBody
		case stateReadBody:
			if !a.readBody() {
				return
			}
			a.st = stateReadHeader
		}
	}
}

// seek looks for a byte-aligned position where a header parses and
// checksums cleanly, skipping one byte per failed probe until it finds
// one or runs out of buffered data. A dedicated sentinel byte isn't an
// option here: the header's reserved bit (always 0) leaves
// no spare entropy for a dedicated sync byte without extending the wire
// format, so SEEK instead probes the header directly at the current
// position — behaviorally equivalent resynchronization. SkipUntil itself
// remains a general Ring primitive exercised by the ring package's own
// tests.
func (a *Reassembler) seek() bool {
	for {
		flags, commandID, dataLength, checksum, ok := a.r.PeekHeader(0)
		if !ok {
			return false
		}
		want := wire.ChecksumFields(flags, commandID, dataLength)
		if want == checksum && !wire.HasReserved(flags) && dataLength <= wire.PacketSizeMax {
			return true
		}
		if a.r.Skip(1) == 0 {
			return false
		}
	}
}

// readHeader attempts to parse and validate the 7-byte header at the
// current read position. advance is false if fewer than 7 bytes are
// buffered (caller must wait for more data); ok is false if the header
// failed validation, in which case readHeader has already skipped one
// byte and the caller returns to SEEK.
func (a *Reassembler) readHeader() (ok, advance bool) {
	flags, commandID, dataLength, checksum, have := a.r.PeekHeader(0)
	if !have {
		return false, false
	}
	want := wire.ChecksumFields(flags, commandID, dataLength)
	if want != checksum || wire.HasReserved(flags) || dataLength > wire.PacketSizeMax {
		logrus.Debugf("reassemble: header validation failed (checksum/reserved/length), resyncing")
		a.r.Skip(1)
		return false, true
	}
	need := wire.HeaderLen + int(dataLength)
	if wire.HasResponse(flags) {
		need += wire.ResponseIDLen
	}
	a.need = need
	return true, true
}

// readBody waits until the full frame is buffered, then consumes it and
// emits the decoded frame. Returns false if not enough bytes are buffered
// yet.
func (a *Reassembler) readBody() bool {
	if a.r.Len() < a.need {
		return false
	}
	buf := a.bp.Rent(a.need)
	if !a.r.Read(0, buf.Bytes) {
		buf.Release()
		return false
	}
	flags, commandID, dataLength, _ := wire.ParseHeader(buf.Bytes)
	f := Frame{
		CommandID: commandID,
		Payload:   buf.Bytes[wire.HeaderLen : wire.HeaderLen+int(dataLength)],
		Buf:       buf,
	}
	if wire.HasResponse(flags) {
		f.ResponseID = binary.BigEndian.Uint32(buf.Bytes[wire.HeaderLen+int(dataLength):])
	}
	a.emit(f)
	return true
}
