// Package serial drains a serial device into an in-memory byte FIFO from a
// background goroutine, so that the arrival of bytes is decoupled from when
// the application consumes them.
//
// A Reader polls a ByteSource: it asks how many bytes are ready, reads exactly
// that many and appends them under a mutex. The owning goroutine pops bytes
// with Pop or Drain and may write to the same device meanwhile.
//
// Features:
//   - Order preserving FIFO, never reordering or dropping read bytes
//   - Pop on an empty buffer returns ErrEmptyBuffer instead of blocking
//   - Single-use lifecycle: a second Start returns ErrAlreadyStarted
//   - Guard and Run stop the reader on every exit path
//   - Wait and Err surface the source failure that ended the loop
//   - Linux raw port (Open) and a cross-platform port (OpenPortable)
//
// Stop only requests termination; the loop exits at its next iteration and a
// read already in flight is still buffered. The loop busy-polls the source
// unless ReaderConfig.IdleSleep is set.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{Device: "/dev/ttyUSB0", BaudRate: 115200})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	err = serial.Run(port, serial.ReaderConfig{Name: "echo"}, func(r *serial.Reader) error {
//	    for {
//	        b, err := r.Pop()
//	        if errors.Is(err, serial.ErrEmptyBuffer) {
//	            select {
//	            case <-r.Done():
//	                return r.Err()
//	            default:
//	                continue
//	            }
//	        }
//	        if _, err := port.Write([]byte{b}); err != nil {
//	            return err
//	        }
//	    }
//	})
package serial
