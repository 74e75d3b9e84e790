// internal/fleet/enumerator.go
package fleet

import (
	"errors"

	"go.bug.st/serial/enumerator"
)

// USB signature of the BENCHLAB CDC interface.
const (
	DefaultUSBVendor  = "0483"
	DefaultUSBProduct = "5740"
)

// PortInfo describes one candidate port. VID/PID are hex strings, may be empty.
type PortInfo struct {
	Name   string
	VID    string
	PID    string
	Serial string
}

// Enumerator lists ports that may host a device.
type Enumerator interface {
	Ports() ([]PortInfo, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func() ([]PortInfo, error)

func (f EnumeratorFunc) Ports() ([]PortInfo, error) { return f() }

// USBEnumerator lists USB serial ports with their VID:PID.
func USBEnumerator() Enumerator {
	return EnumeratorFunc(func() ([]PortInfo, error) {
		details, err := enumerator.GetDetailedPortsList()
		if err != nil {
			return nil, err
		}
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			if d == nil || !d.IsUSB {
				continue
			}
			out = append(out, PortInfo{
				Name:   d.Name,
				VID:    d.VID,
				PID:    d.PID,
				Serial: d.SerialNumber,
			})
		}
		return out, nil
	})
}

// StaticPorts reports a fixed port list as if each carried the given signature.
// Used for configured ports and simulated buses.
func StaticPorts(vid, pid string, names func() []string) Enumerator {
	return EnumeratorFunc(func() ([]PortInfo, error) {
		var out []PortInfo
		for _, n := range names() {
			out = append(out, PortInfo{Name: n, VID: vid, PID: pid})
		}
		return out, nil
	})
}

// Combine merges enumerators; a port reported twice is kept once.
// A failing enumerator is skipped; the error is returned only when no
// enumerator produced a port.
func Combine(es ...Enumerator) Enumerator {
	return EnumeratorFunc(func() ([]PortInfo, error) {
		seen := make(map[string]bool)
		var out []PortInfo
		var errs []error
		for _, e := range es {
			ports, err := e.Ports()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			for _, p := range ports {
				if seen[p.Name] {
					continue
				}
				seen[p.Name] = true
				out = append(out, p)
			}
		}
		if len(out) == 0 && len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return out, nil
	})
}
