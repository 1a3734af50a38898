// Package frame implements the wire frame codec: Encode rents a pooled
// buffer and serializes a command's payload into it; Decode validates and
// parses a buffer back into its fields. The wire layout is a fixed
// 7-byte header plus optional trailing response id, not RFC6455's
// variable-length framing and XOR masking.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/framenet/pool"
	"github.com/momentics/framenet/wire"
)

// Frame is a decoded message: the command id, payload, and an optional
// correlation id (zero means "no response expected").
type Frame struct {
	CommandID  uint16
	ResponseID uint32
	EncryptMode byte
	CompressMode byte
	Payload    []byte
}

// Encode rents a buffer from bp sized 7+len(payload)(+4 if responseID!=0),
// fills it with the header, payload, and optional response id, and
// returns it. The caller owns the
// returned buffer and must Release it after the send completes, on every
// path.
func Encode(bp *pool.BufferPool, commandID uint16, payload []byte, responseID uint32, encryptMode, compressMode byte) (*pool.Buffer, error) {
	if len(payload) > int(wire.PacketSizeMax)-wire.HeaderLen-wire.ResponseIDLen {
		return nil, fmt.Errorf("frame encode: payload of %d bytes exceeds maximum", len(payload))
	}
	hasResponse := responseID != 0
	size := wire.HeaderLen + len(payload)
	if hasResponse {
		size += wire.ResponseIDLen
	}
	buf := bp.Rent(size)
	flags := wire.MakeFlags(encryptMode, compressMode, hasResponse)
	wire.BuildHeader(buf.Bytes[:wire.HeaderLen], flags, commandID, uint16(len(payload)))
	copy(buf.Bytes[wire.HeaderLen:], payload)
	if hasResponse {
		binary.BigEndian.PutUint32(buf.Bytes[wire.HeaderLen+len(payload):], responseID)
	}
	return buf, nil
}

// Decode parses a complete frame (header, payload, optional trailing
// response id) out of b. It validates the reserved bit and checksum but
// does not copy the payload — Payload aliases b and is only valid for the
// caller's immediate use.
func Decode(b []byte) (Frame, error) {
	if len(b) < wire.HeaderLen {
		return Frame{}, fmt.Errorf("frame decode: short buffer: %d bytes", len(b))
	}
	flags, commandID, dataLength, checksum := wire.ParseHeader(b)
	if wire.HasReserved(flags) {
		return Frame{}, fmt.Errorf("frame decode: reserved bit set")
	}
	want := wire.ChecksumFields(flags, commandID, dataLength)
	if want != checksum {
		return Frame{}, fmt.Errorf("frame decode: checksum mismatch")
	}
	hasResponse := wire.HasResponse(flags)
	need := wire.HeaderLen + int(dataLength)
	if hasResponse {
		need += wire.ResponseIDLen
	}
	if len(b) < need {
		return Frame{}, fmt.Errorf("frame decode: buffer too short: have %d need %d", len(b), need)
	}
	f := Frame{
		CommandID:    commandID,
		EncryptMode:  wire.EncryptMode(flags),
		CompressMode: wire.CompressMode(flags),
		Payload:      b[wire.HeaderLen : wire.HeaderLen+int(dataLength)],
	}
	if hasResponse {
		f.ResponseID = binary.BigEndian.Uint32(b[wire.HeaderLen+int(dataLength):])
	}
	return f, nil
}

// Size returns the total encoded size for a frame carrying a payload of
// length payloadLen and responseID, without allocating anything.
func Size(payloadLen int, responseID uint32) int {
	n := wire.HeaderLen + payloadLen
	if responseID != 0 {
		n += wire.ResponseIDLen
	}
	return n
}
