package serial

import (
	"io"
	"sync"
)

// ByteSource is the device a Reader polls. The Reader never opens or closes it.
type ByteSource interface {
	// Available returns the number of bytes that can be read without blocking.
	Available() (int, error)

	// Read returns at most n bytes in arrival order. It may block until at
	// least one byte is ready.
	Read(n int) ([]byte, error)
}

// StreamSource adapts a plain io.Reader, such as a serial port with a read
// timeout set, to ByteSource. Available makes a single read attempt into a
// pending slice, so the underlying reader's timeout bounds how long it blocks.
type StreamSource struct {
	r       io.Reader
	scratch []byte

	mu      sync.Mutex
	pending []byte
	err     error // returned once pending is drained
}

// NewStreamSource wraps r. A timed out read must return (0, nil); any error,
// io.EOF included, ends the stream once the bytes read before it are consumed.
func NewStreamSource(r io.Reader) *StreamSource {
	return &StreamSource{
		r:       r,
		scratch: make([]byte, 4096),
	}
}

func (s *StreamSource) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		return len(s.pending), nil
	}
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.r.Read(s.scratch)
	if n > 0 {
		s.pending = append(s.pending, s.scratch[:n]...)
		s.err = err
		return len(s.pending), nil
	}
	if err != nil {
		s.err = err
		return 0, err
	}
	return 0, nil
}

func (s *StreamSource) Read(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.pending) {
		n = len(s.pending)
	}
	out := make([]byte, n)
	copy(out, s.pending)
	s.pending = s.pending[n:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return out, nil
}
