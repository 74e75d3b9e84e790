// internal/gateway/errors.go
package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("gateway: not found")

	// ErrShuttingDown is returned by Subscribe after Close, and is the
	// terminal error of subscriptions closed by the gateway.
	ErrShuttingDown = errors.New("gateway: shutting down")

	// ErrSlowConsumer is the terminal error of a subscription whose buffer
	// was full when a reading had to be delivered.
	ErrSlowConsumer = errors.New("gateway: subscriber too slow")
)

// NotFoundError reports an unknown device, an unknown sensor, or a device
// that has not produced a reading yet.
type NotFoundError struct {
	UID    string
	Sensor string // empty unless a sensor was requested
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Sensor != "" {
		return fmt.Sprintf("device %s: sensor %q: %s", e.UID, e.Sensor, e.Reason)
	}
	return fmt.Sprintf("device %s: %s", e.UID, e.Reason)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

const (
	reasonUnknownDevice = "unknown device"
	reasonNoData        = "no reading yet"
	reasonUnknownSensor = "unknown sensor"
)
