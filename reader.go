package serial

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const defaultReaderName = "serial-reader"

// ReaderConfig holds optional settings for a Reader. The zero value is usable.
type ReaderConfig struct {
	// Name identifies the reader in logs and errors. Default "serial-reader".
	Name string

	// IdleSleep is how long the loop sleeps when no bytes are available.
	// Zero busy-polls the source.
	IdleSleep time.Duration

	// Logger overrides the package logger.
	Logger *zap.Logger
}

// Reader drains a ByteSource into an in-memory FIFO from a background goroutine.
// One goroutine produces; a single consumer is expected to Pop or Drain.
type Reader struct {
	src  ByteSource
	name string
	idle time.Duration
	log  *zap.Logger

	started atomic.Bool
	running atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	buf bytes.Buffer

	errMu sync.Mutex
	err   error
}

// NewReader binds src to a new, stopped Reader. No I/O is performed.
func NewReader(src ByteSource, cfg ReaderConfig) *Reader {
	if cfg.Name == "" {
		cfg.Name = defaultReaderName
	}
	l := cfg.Logger
	if l == nil {
		l = Logger()
	}
	return &Reader{
		src:  src,
		name: cfg.Name,
		idle: cfg.IdleSleep,
		log:  l.With(zap.String("reader", cfg.Name)),
		done: make(chan struct{}),
	}
}

// Name returns the reader's diagnostic name.
func (r *Reader) Name() string {
	return r.name
}

// Start launches the polling loop and returns immediately. The returned Guard
// stops the reader when released. A Reader can only be started once.
func (r *Reader) Start() (*Guard, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	r.running.Store(true)
	go r.run()
	r.log.Debug("reader started")
	return &Guard{r: r}, nil
}

// Stop asks the polling loop to exit at its next iteration. It does not wait,
// and a source read already in progress completes and is still buffered.
// Use Wait to join the loop.
func (r *Reader) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.log.Debug("reader stop requested")
	}
}

// Running reports whether the reader has been started and not yet stopped.
// It stays true if the loop exited on a source failure; see Done and Err.
func (r *Reader) Running() bool {
	return r.running.Load()
}

// Done is closed when the polling loop has returned. It is never closed for a
// reader that was not started.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the polling loop has returned and reports the error that
// ended it, if any. It returns nil immediately for a reader never started.
func (r *Reader) Wait() error {
	if !r.started.Load() {
		return nil
	}
	<-r.done
	return r.Err()
}

// Err returns the source failure that terminated the loop, or nil.
func (r *Reader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *Reader) run() {
	defer close(r.done)

	for r.running.Load() {
		n, err := r.src.Available()
		if err != nil {
			r.fail("available", err)
			return
		}
		if n <= 0 {
			if r.idle > 0 {
				time.Sleep(r.idle)
			}
			continue
		}

		data, err := r.src.Read(n)
		r.append(data)
		if err != nil {
			r.fail("read", err)
			return
		}
	}
	r.log.Debug("polling loop exited")
}

func (r *Reader) append(data []byte) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	r.buf.Write(data)
	r.mu.Unlock()
}

func (r *Reader) fail(op string, err error) {
	serr := &SourceError{Reader: r.name, Op: op, Err: err}
	r.errMu.Lock()
	r.err = serr
	r.errMu.Unlock()
	r.log.Error("polling loop terminated", zap.String("op", op), zap.Error(err))
}

// Pop removes and returns the oldest buffered byte. It returns ErrEmptyBuffer
// when nothing is buffered.
func (r *Reader) Pop() (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf.Len() == 0 {
		return 0, ErrEmptyBuffer
	}
	return r.buf.ReadByte()
}

// Drain removes and returns all buffered bytes, oldest first, or nil.
func (r *Reader) Drain() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(r.buf.Bytes())
	r.buf.Reset()
	return out
}

// Size returns the number of buffered bytes.
func (r *Reader) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

// IsEmpty reports whether Size is zero. The producer may append right after
// it returns, so a true result is only a snapshot.
func (r *Reader) IsEmpty() bool {
	return r.Size() == 0
}

func (r *Reader) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("serial.Reader(%s)[%d]: %q", r.name, r.buf.Len(), r.buf.Bytes())
}
