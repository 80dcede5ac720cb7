//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openPTY(t *testing.T) (*os.File, *Port) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	port, err := Open(Config{Device: slave.Name(), BaudRate: 115200})
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return master, port
}

func TestPort_Available(t *testing.T) {
	master, port := openPTY(t)

	n, err := port.Available()
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = master.Write([]byte("hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := port.Available()
		return err == nil && n == 5
	}, time.Second, time.Millisecond)

	b, err := port.Read(5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b)
}

func TestPort_ReaderScenario(t *testing.T) {
	master, port := openPTY(t)

	err := Run(port, ReaderConfig{Name: "pty"}, func(r *Reader) error {
		_, err := master.Write([]byte("AB"))
		require.NoError(t, err)
		waitSize(t, r, 2)
		_, err = master.Write([]byte("C"))
		require.NoError(t, err)
		waitSize(t, r, 3)

		for _, want := range []byte("ABC") {
			b, err := r.Pop()
			require.NoError(t, err)
			require.Equal(t, want, b)
		}
		_, err = r.Pop()
		require.ErrorIs(t, err, ErrEmptyBuffer)
		return nil
	})
	require.NoError(t, err)
}

func TestPort_Echo(t *testing.T) {
	master, port := openPTY(t)

	fromPort := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		n, err := master.Read(buf)
		if err != nil {
			errs <- err
			return
		}
		fromPort <- string(buf[:n])
	}()

	r := NewReader(port, ReaderConfig{Name: "echo"})
	g, err := r.Start()
	require.NoError(t, err)
	defer g.Release()

	_, err = master.Write([]byte("ping"))
	require.NoError(t, err)
	waitSize(t, r, 4)

	_, err = port.Write(r.Drain())
	require.NoError(t, err)

	select {
	case msg := <-fromPort:
		require.Equal(t, "ping", msg)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for master to receive echo")
	}
}

func TestPort_CloseUnblocksRead(t *testing.T) {
	_, port := openPTY(t)

	done := make(chan error, 1)
	go func() {
		_, err := port.Read(16)
		done <- err
	}()

	// Give the goroutine a chance to block
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for Read to return after Close")
	}

	require.NoError(t, port.Close()) // no-op due to closeOnce
	_, err := port.Available()
	require.ErrorIs(t, err, ErrPortClosed)
}

func TestPort_CloseEndsReader(t *testing.T) {
	_, port := openPTY(t)

	r := NewReader(port, ReaderConfig{})
	_, err := r.Start()
	require.NoError(t, err)
	defer r.Stop()

	require.NoError(t, port.Close())

	select {
	case <-r.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for reader to exit after port Close")
	}
	var serr *SourceError
	require.True(t, errors.As(r.Err(), &serr))
	require.ErrorIs(t, r.Err(), ErrPortClosed)
}

func TestPort_OpenMissingDevice(t *testing.T) {
	_, err := Open(Config{Device: "/dev/does-not-exist"})
	require.Error(t, err)
}

func TestPort_AvailableRacingClose(t *testing.T) {
	_, port := openPTY(t)

	errs := make(chan error, 1)
	go func() {
		for {
			n, err := port.Available()
			if err != nil {
				errs <- err
				return
			}
			if n < 0 {
				errs <- fmt.Errorf("negative count %d", n)
				return
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrPortClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Available kept succeeding after Close")
	}
}

func TestMakeRaw(t *testing.T) {
	tio := &unix.Termios{
		Iflag: unix.ICRNL | unix.IXON,
		Oflag: unix.OPOST,
		Lflag: unix.ECHO | unix.ICANON,
		Cflag: unix.PARENB | unix.CS7 | unix.B9600,
	}
	makeRaw(tio, 57600)

	require.Zero(t, tio.Iflag&(unix.ICRNL|unix.IXON))
	require.Zero(t, tio.Oflag&unix.OPOST)
	require.Zero(t, tio.Lflag&(unix.ECHO|unix.ICANON))
	require.Zero(t, tio.Cflag&unix.PARENB)
	require.Equal(t, uint32(unix.CS8), tio.Cflag&unix.CSIZE)
	require.Equal(t, uint32(unix.B57600), tio.Cflag&unix.CBAUD)
	require.Equal(t, uint8(1), tio.Cc[unix.VMIN])
	require.Equal(t, uint8(0), tio.Cc[unix.VTIME])
}
