package base

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// TestFrameRoundTrip checks that a written frame is read back intact and
// that the read buffer is reused when it is large enough.
func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 4096),
		{0x00},
	}

	var wire bytes.Buffer
	for _, p := range payloads {
		if err := WriteFrame(&wire, p); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	var buf []byte
	for i, want := range payloads {
		got, err := ReadFrame(&wire, buf)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %d bytes, want %d", i, len(got), len(want))
		}
		if len(got) > len(buf) {
			buf = got[:cap(got)]
		}
	}
}

// TestReadFrameRejectsOversizedHeader checks that an announced length beyond
// the frame limit is treated as a protocol error, without allocating.
func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, maxFrameSize+1)

	if _, err := ReadFrame(bytes.NewReader(header), nil); err == nil {
		t.Fatal("oversized frame accepted")
	}
}

// TestReadFrameTruncated checks that a frame cut short mid-payload surfaces
// the underlying read error.
func TestReadFrameTruncated(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteFrame(&wire, []byte("full payload")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	truncated := wire.Bytes()[:wire.Len()-3]

	if _, err := ReadFrame(bytes.NewReader(truncated), nil); err != io.ErrUnexpectedEOF {
		t.Fatalf("ReadFrame returned %v, want %v", err, io.ErrUnexpectedEOF)
	}

	// Header alone cut short reports EOF
	if _, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}), nil); err == nil {
		t.Fatal("truncated header accepted")
	}
}
