package serialization

import (
	"io"

	"github.com/pkg/errors"
)

// MemoryStream is a seekable in-memory byte stream with a single position shared by
// reads and writes.
type MemoryStream struct {
	data []byte
	pos  int
}

// NewMemoryStream returns a stream positioned at the start of data.
func NewMemoryStream(data []byte) *MemoryStream {
	return &MemoryStream{data: data}
}

// Read reads from the current position.
func (ms *MemoryStream) Read(p []byte) (int, error) {
	if ms.pos >= len(ms.data) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, ms.data[ms.pos:])
	ms.pos += n
	return n, nil
}

// Write writes at the current position, overwriting or extending the stream.
func (ms *MemoryStream) Write(p []byte) (int, error) {
	end := ms.pos + len(p)
	if end > len(ms.data) {
		if end > cap(ms.data) {
			grown := make([]byte, len(ms.data), 2*end)
			copy(grown, ms.data)
			ms.data = grown
		}
		ms.data = ms.data[:end]
	}
	copy(ms.data[ms.pos:], p)
	ms.pos = end
	return len(p), nil
}

// Seek implements io.Seeker.
func (ms *MemoryStream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(ms.pos)
	case io.SeekEnd:
		base = int64(len(ms.data))
	default:
		return 0, errors.Errorf("invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, errors.Errorf("seek to negative position %d", next)
	}
	if next > int64(len(ms.data)) {
		return 0, errors.Errorf("seek to %d past end of %d byte stream", next, len(ms.data))
	}
	ms.pos = int(next)
	return next, nil
}

// Len returns the number of unread bytes.
func (ms *MemoryStream) Len() int {
	if ms.pos >= len(ms.data) {
		return 0
	}
	return len(ms.data) - ms.pos
}

// Bytes returns the whole content of the stream.
func (ms *MemoryStream) Bytes() []byte {
	return ms.data
}
