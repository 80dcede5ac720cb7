package serial

import (
	"errors"
	"fmt"
	"time"

	bugst "go.bug.st/serial"
)

// allow tests to replace the port opener
var openPortable = func(name string, mode *bugst.Mode) (bugst.Port, error) { return bugst.Open(name, mode) }

// PortableConfig configures OpenPortable.
type PortableConfig struct {
	Port     string
	BaudRate int // default 115200

	// PollTimeout bounds each Available call. Default 10ms.
	PollTimeout time.Duration
}

// PortableSource is a go.bug.st/serial port exposed as a ByteSource. It works
// on every platform that library supports, at the cost of Available doing a
// timed read instead of querying the driver queue.
type PortableSource struct {
	*StreamSource
	port bugst.Port
	name string
}

// OpenPortable opens cfg.Port as 8N1 with the given baud rate.
func OpenPortable(cfg PortableConfig) (*PortableSource, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port path is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 10 * time.Millisecond
	}

	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	port, err := openPortable(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.PollTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &PortableSource{
		StreamSource: NewStreamSource(port),
		port:         port,
		name:         cfg.Port,
	}, nil
}

// PortName returns the serial port name.
func (p *PortableSource) PortName() string {
	return p.name
}

func (p *PortableSource) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *PortableSource) Close() error {
	return p.port.Close()
}
