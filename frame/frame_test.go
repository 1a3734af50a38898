package frame_test

import (
	"testing"

	"github.com/momentics/framenet/frame"
	"github.com/momentics/framenet/pool"
)

func TestEncodeDecodeRoundTripNoResponse(t *testing.T) {
	bp := pool.NewBufferPool()
	payload := []byte("hello world")
	buf, err := frame.Encode(bp, 42, payload, 0, 0, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer buf.Release()

	f, err := frame.Decode(buf.Bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.CommandID != 42 {
		t.Fatalf("expected commandId 42, got %d", f.CommandID)
	}
	if f.ResponseID != 0 {
		t.Fatalf("expected no response id, got %d", f.ResponseID)
	}
	if string(f.Payload) != "hello world" {
		t.Fatalf("unexpected payload: %q", f.Payload)
	}
}

func TestEncodeDecodeRoundTripWithResponseID(t *testing.T) {
	bp := pool.NewBufferPool()
	payload := []byte("ping")
	buf, err := frame.Encode(bp, 7, payload, 99, 1, 2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer buf.Release()

	f, err := frame.Decode(buf.Bytes)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.ResponseID != 99 {
		t.Fatalf("expected response id 99, got %d", f.ResponseID)
	}
	if f.EncryptMode != 1 || f.CompressMode != 2 {
		t.Fatalf("mode bits not preserved: encrypt=%d compress=%d", f.EncryptMode, f.CompressMode)
	}
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	bp := pool.NewBufferPool()
	buf, err := frame.Encode(bp, 1, []byte("x"), 0, 0, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer buf.Release()
	buf.Bytes[5] ^= 0xFF // corrupt the stored checksum; the reserved bit stays clear

	if _, err := frame.Decode(buf.Bytes); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := frame.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected short buffer error")
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	bp := pool.NewBufferPool()
	buf, err := frame.Encode(bp, 1, []byte("hello"), 0, 0, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer buf.Release()

	if _, err := frame.Decode(buf.Bytes[:len(buf.Bytes)-2]); err == nil {
		t.Fatal("expected truncated-payload error")
	}
}

func TestSizeMatchesEncodedLength(t *testing.T) {
	bp := pool.NewBufferPool()
	buf, err := frame.Encode(bp, 1, []byte("abc"), 5, 0, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	defer buf.Release()
	if got, want := len(buf.Bytes), frame.Size(3, 5); got != want {
		t.Fatalf("Size() = %d, encoded length = %d", want, got)
	}
}
