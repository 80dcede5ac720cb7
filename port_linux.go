//go:build linux

package serial

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Port is a raw Linux serial port usable as a ByteSource. Reads and writes may
// run on different goroutines; Close unblocks a pending Read.
type Port struct {
	fd        int
	fdMu      sync.RWMutex // held for writing while Close releases fd
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device   string
	BaudRate int // default 115200
}

// Open opens a serial port in raw 8N1 mode.
func Open(cfg Config) (*Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}

	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	makeRaw(termios, cfg.BaudRate)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	if err := syscall.SetNonblock(fd, false); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	return &Port{
		fd:     fd,
		file:   os.NewFile(uintptr(fd), cfg.Device),
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}, nil
}

// makeRaw switches t to raw 8N1 at the given baud rate, with reads returning
// as soon as one byte is queued.
func makeRaw(t *unix.Termios, baud int) {
	// no input translation, flow control or output processing
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	// no echo, line editing or signals
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	// raw 8N1
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | baudToUnix(baud)

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

// Device returns the path the port was opened with.
func (p *Port) Device() string {
	return p.config.Device
}

// Available returns the number of bytes in the driver's input queue.
func (p *Port) Available() (int, error) {
	p.fdMu.RLock()
	defer p.fdMu.RUnlock()

	select {
	case <-p.done:
		return 0, ErrPortClosed
	default:
	}
	n, err := unix.IoctlGetInt(p.fd, unix.TIOCINQ)
	if err != nil {
		return 0, p.closedOr(fmt.Errorf("TIOCINQ: %w", err))
	}
	return n, nil
}

// Read blocks until data arrives or the port is closed, then returns at most n bytes.
func (p *Port) Read(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	for {
		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfd, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, p.closedOr(err)
		}
		select {
		case <-p.done:
			return nil, ErrPortClosed
		default:
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			return nil, ErrPortClosed
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			m, err := p.file.Read(buf)
			if err != nil {
				return nil, p.closedOr(err)
			}
			return buf[:m], nil
		}
	}
}

// Write writes p to the port. It may be called while a Reader polls the same port.
func (p *Port) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

// Close closes the port and wakes any blocked Read.
// Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		unix.Write(p.pipeW, []byte{1})
		p.fdMu.Lock()
		err = p.file.Close()
		p.fdMu.Unlock()
		unix.Close(p.pipeR)
		unix.Close(p.pipeW)
	})
	return err
}

// closedOr reports ErrPortClosed for failures caused by a concurrent Close.
func (p *Port) closedOr(err error) error {
	select {
	case <-p.done:
		return ErrPortClosed
	default:
		return err
	}
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 1200:
		return unix.B1200
	case 2400:
		return unix.B2400
	case 4800:
		return unix.B4800
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	case 460800:
		return unix.B460800
	case 921600:
		return unix.B921600
	default:
		return unix.B115200 // fallback
	}
}
