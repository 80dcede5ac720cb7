package serial

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBuffer is returned by Pop when no bytes are buffered.
	ErrEmptyBuffer = errors.New("pop from empty buffer")

	// ErrAlreadyStarted is returned by Start on a reader that was started before,
	// including one that has since been stopped. Readers are not restartable.
	ErrAlreadyStarted = errors.New("reader already started")

	// ErrPortClosed is returned by Port operations after Close.
	ErrPortClosed = errors.New("serial port closed")
)

// SourceError reports a failure of the byte source that terminated a reader's
// polling loop.
type SourceError struct {
	Reader string
	Op     string // "available" or "read"
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("reader %s: source %s: %v", e.Reader, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
