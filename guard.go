package serial

import "sync"

// Guard scopes a started Reader. Release stops the reader and is safe to
// defer and to call more than once.
type Guard struct {
	r    *Reader
	once sync.Once
}

// Reader returns the guarded reader.
func (g *Guard) Reader() *Reader {
	return g.r
}

// Release requests the reader to stop. Like Stop, it does not wait for the loop.
func (g *Guard) Release() {
	g.once.Do(g.r.Stop)
}

// Run starts a Reader over src, calls fn with it and stops the reader when fn
// returns, fails or panics. The error from fn is returned unchanged.
//
//	err := serial.Run(port, serial.ReaderConfig{Name: "gps"}, func(r *serial.Reader) error {
//	    for {
//	        b, err := r.Pop()
//	        ...
//	    }
//	})
func Run(src ByteSource, cfg ReaderConfig, fn func(*Reader) error) error {
	r := NewReader(src, cfg)
	g, err := r.Start()
	if err != nil {
		return err
	}
	defer g.Release()

	return fn(r)
}
