package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// maxFrameSize caps a single frame payload (64 MB). A peer announcing more
// than this is treated as a protocol error rather than an allocation request.
const maxFrameSize = 64 * 1024 * 1024

// WriteFrame writes a frame to the connection with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func WriteFrame(conn io.Writer, data []byte) error {
	// Create the header (4 bytes for content length)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// ReadFrame reads a frame from the connection using the provided buffer.
// If the buffer is too small, it will allocate a new temporary buffer for the data.
func ReadFrame(conn io.Reader, buf []byte) ([]byte, error) {
	// Check if buffer is large enough for header
	if buf == nil || len(buf) < 4 {
		buf = make([]byte, 4) // create header buffer
	}

	// Read header
	if _, err := io.ReadFull(conn, buf[:4]); err != nil {
		return nil, err
	}

	// Parse header
	contentLength := binary.BigEndian.Uint32(buf[:4])
	if contentLength > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", contentLength, maxFrameSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return []byte{}, nil
	}

	// Check if buffer is large enough for data
	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	// Read data
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return nil, err
	}

	// Return data
	return buf[:contentLength], nil
}
