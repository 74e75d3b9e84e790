// internal/link/serial.go
package link

import (
	"errors"
	"io"
	"os"

	"github.com/goburrow/serial"
)

// DialSerial opens a USB CDC serial port at 8N1.
// The per-read timeout is Options.Quiet, not the exchange budget: exchange()
// and drain() loop over short reads and enforce their own deadlines, so one
// exchange overshoots ReadTimeout by at most one Quiet interval.
func DialSerial(port string, opts Options) (io.ReadWriteCloser, error) {
	return serial.Open(&serial.Config{
		Address:  port,
		BaudRate: opts.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  opts.Quiet,
	})
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
