// internal/link/errors.go
package link

import (
	"errors"
	"fmt"

	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
)

// ErrClosed is returned for exchanges attempted on a closed Link.
var ErrClosed = errors.New("link: closed")

// ErrForeignDevice is returned when the vendor data does not identify a BENCHLAB.
var ErrForeignDevice = errors.New("link: device is not a benchlab")

// ConnectionError reports a failure to open a port.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("link: open %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadKind classifies a failed exchange.
type ReadKind uint8

const (
	ReadTimeout ReadKind = iota + 1
	ReadMalformed
	ReadDisconnected
	ReadClosed
)

func (k ReadKind) String() string {
	switch k {
	case ReadTimeout:
		return "timeout"
	case ReadMalformed:
		return "malformed"
	case ReadDisconnected:
		return "disconnected"
	case ReadClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReadError reports a failed command exchange.
// For ReadMalformed, Err is (or wraps) a *protocol.Error.
type ReadError struct {
	Port string
	Cmd  protocol.Command
	Kind ReadKind
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("link: %s on %s: %s: %v", e.Cmd, e.Port, e.Kind, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Code returns a stable numeric code for the failure kind.
func (e *ReadError) Code() uint16 { return uint16(e.Kind) }
