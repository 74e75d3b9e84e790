// internal/link/sim/sim.go
package sim

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
)

// Simulated BENCHLAB devices on virtual ports.
// Used when no hardware is attached and by tests across packages.

type timeoutError struct{}

func (timeoutError) Error() string   { return "sim: read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

const idleRead = time.Millisecond

// ErrUnplugged is returned when dialing a port with no device.
var ErrUnplugged = errors.New("sim: no device on port")

// Device is the firmware side of one simulated instrument.
type Device struct {
	mu       sync.Mutex
	uid      []byte
	vendor   protocol.VendorData
	frame    func(n uint64) protocol.SensorFrame
	polls    uint64
	failNext int
	garbled  int
	silent   bool
}

// NewDevice creates a genuine device with the given 24-hex-digit UID.
func NewDevice(uid string) (*Device, error) {
	raw, err := hex.DecodeString(uid)
	if err != nil || len(raw) != protocol.UIDSize {
		return nil, fmt.Errorf("sim: uid must be %d hex bytes", protocol.UIDSize)
	}
	return &Device{
		uid:    raw,
		vendor: protocol.VendorData{VendorID: protocol.VendorID, ProductID: protocol.ProductID, Firmware: 1},
		frame:  Wave,
	}, nil
}

// MustDevice is NewDevice for fixtures.
func MustDevice(uid string) *Device {
	d, err := NewDevice(uid)
	if err != nil {
		panic(err)
	}
	return d
}

// UID returns the upper-case hex UID.
func (d *Device) UID() string { return strings.ToUpper(hex.EncodeToString(d.uid)) }

// SetFrame replaces the frame generator.
func (d *Device) SetFrame(fn func(n uint64) protocol.SensorFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = fn
}

// SetVendor overrides the vendor data response.
func (d *Device) SetVendor(v protocol.VendorData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vendor = v
}

// FailNext makes the next n sensor reads time out.
func (d *Device) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// GarbleNext makes the next n sensor reads return a truncated response.
func (d *Device) GarbleNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.garbled = n
}

// SetSilent makes every command go unanswered until cleared.
func (d *Device) SetSilent(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = v
}

// Polls returns how many READ_SENSORS commands were answered.
func (d *Device) Polls() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// respond builds the response for one command byte.
func (d *Device) respond(cmd protocol.Command) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.silent {
		return nil
	}

	switch cmd {
	case protocol.CmdReadUID:
		return append([]byte(nil), d.uid...)
	case protocol.CmdReadVendorData:
		return []byte{d.vendor.VendorID, d.vendor.ProductID, d.vendor.Firmware}
	case protocol.CmdReadSensors:
		if d.failNext > 0 {
			d.failNext--
			return nil
		}
		d.polls++
		b := protocol.AppendSensorFrame(nil, d.frame(d.polls))
		if d.garbled > 0 {
			d.garbled--
			return b[:len(b)/2]
		}
		return b
	default:
		return nil
	}
}

// ---- bus ----

// Bus maps virtual port names to devices.
type Bus struct {
	mu      sync.Mutex
	devices map[string]*Device
	conns   map[string][]*conn
}

func NewBus() *Bus {
	return &Bus{
		devices: make(map[string]*Device),
		conns:   make(map[string][]*conn),
	}
}

// Plug attaches d to port.
func (b *Bus) Plug(port string, d *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[port] = d
}

// Unplug detaches the device on port; open connections see EOF.
func (b *Bus) Unplug(port string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, port)
	for _, c := range b.conns[port] {
		c.unplug()
	}
	delete(b.conns, port)
}

// Device returns the device plugged into port.
func (b *Bus) Device(port string) (*Device, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.devices[port]
	return d, ok
}

// Ports lists ports with a device attached, sorted.
func (b *Bus) Ports() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.devices))
	for p := range b.devices {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dial is a link.DialFunc.
func (b *Bus) Dial(port string, _ link.Options) (io.ReadWriteCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[port]
	if !ok {
		return nil, ErrUnplugged
	}
	c := &conn{dev: d}
	b.conns[port] = append(b.conns[port], c)
	return c, nil
}

// conn is one open handle on a device.
type conn struct {
	mu      sync.Mutex
	dev     *Device
	pending []byte
	closed  bool
	gone    bool
}

func (c *conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, errors.New("sim: write on closed port")
	}
	if c.gone {
		return 0, io.EOF
	}
	for _, cmd := range p {
		c.pending = append(c.pending, c.dev.respond(protocol.Command(cmd))...)
	}
	return len(p), nil
}

func (c *conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, errors.New("sim: read on closed port")
	}
	if c.gone {
		return 0, io.EOF
	}
	if len(c.pending) == 0 {
		c.mu.Unlock()
		// a real port blocks for its read timeout
		time.Sleep(idleRead)
		c.mu.Lock()
		return 0, timeoutError{}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *conn) unplug() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gone = true
}
