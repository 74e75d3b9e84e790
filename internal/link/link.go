// internal/link/link.go
package link

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
)

// DialFunc opens the raw byte stream for a port.
type DialFunc func(port string, opts Options) (io.ReadWriteCloser, error)

// Options is the minimal runtime config a Link needs.
type Options struct {
	BaudRate    int
	ReadTimeout time.Duration // bound for one whole exchange
	FrameSize   int           // READ_SENSORS bytes to read; >= protocol.SensorFrameSize

	// Quiet is the per-read timeout of the port. Input that stays silent
	// this long counts as drained.
	Quiet time.Duration

	// Dial defaults to the serial dialer.
	Dial DialFunc
}

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = time.Second
	DefaultQuiet       = 20 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.Quiet <= 0 {
		o.Quiet = DefaultQuiet
	}
	if o.Quiet > o.ReadTimeout {
		o.Quiet = o.ReadTimeout
	}
	if o.FrameSize < protocol.SensorFrameSize {
		o.FrameSize = protocol.SensorFrameSize
	}
	if o.Dial == nil {
		o.Dial = DialSerial
	}
	return o
}

// Identity is what a device reports about itself. Immutable after discovery.
type Identity struct {
	UID       string `json:"uid"`
	VendorID  uint8  `json:"vendor_id"`
	ProductID uint8  `json:"product_id"`
	Firmware  uint8  `json:"firmware"`
	Port      string `json:"port"`
}

// FrameReader is the part of a Link a poller needs.
type FrameReader interface {
	ReadFrame() (protocol.SensorFrame, error)
}

// Link owns one physical connection.
// All exchanges are serialized; there is never more than one command in flight.
// No retries: callers decide what a failure means.
type Link struct {
	mu     sync.Mutex
	port   string
	opts   Options
	rw     io.ReadWriteCloser
	closed bool

	// desync is set when an exchange ended before its reply did.
	// The next exchange waits for a full ReadTimeout of silence first.
	desync    bool
	discarded uint64
}

// Open opens port. Failure is a *ConnectionError.
func Open(port string, opts Options) (*Link, error) {
	if port == "" {
		return nil, &ConnectionError{Port: port, Err: errors.New("port required")}
	}
	opts = opts.withDefaults()

	rw, err := opts.Dial(port, opts)
	if err != nil {
		return nil, &ConnectionError{Port: port, Err: err}
	}
	return &Link{port: port, opts: opts, rw: rw}, nil
}

// Port returns the port this link was opened on.
func (l *Link) Port() string { return l.port }

// ReadIdentity reads the hardware UID and vendor data.
func (l *Link) ReadIdentity() (Identity, error) {
	b, err := l.exchange(protocol.CmdReadUID, protocol.UIDSize)
	if err != nil {
		return Identity{}, err
	}
	uid, err := protocol.DecodeUID(b)
	if err != nil {
		return Identity{}, l.malformed(protocol.CmdReadUID, err)
	}

	b, err = l.exchange(protocol.CmdReadVendorData, protocol.VendorDataSize)
	if err != nil {
		return Identity{}, err
	}
	vd, err := protocol.DecodeVendorData(b)
	if err != nil {
		return Identity{}, l.malformed(protocol.CmdReadVendorData, err)
	}
	if !vd.Genuine() {
		return Identity{}, l.malformed(protocol.CmdReadVendorData, fmt.Errorf(
			"%w: vendor=0x%02X product=0x%02X", ErrForeignDevice, vd.VendorID, vd.ProductID,
		))
	}

	return Identity{
		UID:       uid,
		VendorID:  vd.VendorID,
		ProductID: vd.ProductID,
		Firmware:  vd.Firmware,
		Port:      l.port,
	}, nil
}

// ReadFrame performs one READ_SENSORS exchange.
func (l *Link) ReadFrame() (protocol.SensorFrame, error) {
	b, err := l.exchange(protocol.CmdReadSensors, l.opts.FrameSize)
	if err != nil {
		return protocol.SensorFrame{}, err
	}
	f, err := protocol.DecodeSensorFrame(b)
	if err != nil {
		return protocol.SensorFrame{}, l.malformed(protocol.CmdReadSensors, err)
	}
	return f, nil
}

// Discarded returns how many stray input bytes were dropped before commands.
func (l *Link) Discarded() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discarded
}

// Close releases the port. Safe to call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.rw.Close()
}

// exchange writes one command and reads exactly size bytes within ReadTimeout.
func (l *Link) exchange(cmd protocol.Command, size int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, &ReadError{Port: l.port, Cmd: cmd, Kind: ReadClosed, Err: ErrClosed}
	}

	req, err := protocol.Encode(cmd)
	if err != nil {
		return nil, l.malformed(cmd, err)
	}

	// Replies are located by position only. Anything still buffered (a late
	// tail, trailing fields of a longer frame) must go before the command.
	if err := l.drain(cmd); err != nil {
		return nil, err
	}

	if _, err := l.rw.Write(req); err != nil {
		return nil, &ReadError{Port: l.port, Cmd: cmd, Kind: classify(err), Err: err}
	}

	buf := make([]byte, size)
	deadline := time.Now().Add(l.opts.ReadTimeout)
	got := 0

	for got < size {
		n, err := l.rw.Read(buf[got:])
		got += n
		if got >= size {
			break
		}
		if err != nil && !isTimeout(err) {
			return nil, &ReadError{Port: l.port, Cmd: cmd, Kind: classify(err), Err: err}
		}
		if !time.Now().Before(deadline) {
			l.desync = true
			return nil, &ReadError{
				Port: l.port,
				Cmd:  cmd,
				Kind: ReadTimeout,
				Err:  fmt.Errorf("got %d of %d bytes within %s", got, size, l.opts.ReadTimeout),
			}
		}
	}

	return buf, nil
}

// drain discards pending input until the port has been silent for Quiet,
// or for ReadTimeout after a failed exchange. A device that never goes quiet
// within ReadTimeout past that window is reported as malformed.
func (l *Link) drain(cmd protocol.Command) error {
	window := l.opts.Quiet
	if l.desync {
		window = l.opts.ReadTimeout
	}

	scratch := make([]byte, 256)
	start := time.Now()
	limit := start.Add(window + l.opts.ReadTimeout)
	lastData := start

	for {
		n, err := l.rw.Read(scratch)
		now := time.Now()
		if n > 0 {
			l.discarded += uint64(n)
			lastData = now
		}
		if err != nil && !isTimeout(err) {
			return &ReadError{Port: l.port, Cmd: cmd, Kind: classify(err), Err: err}
		}
		if n == 0 && now.Sub(lastData) >= window {
			l.desync = false
			return nil
		}
		if !now.Before(limit) {
			return l.malformed(cmd, errors.New("input did not go quiet"))
		}
	}
}

func (l *Link) malformed(cmd protocol.Command, err error) error {
	return &ReadError{Port: l.port, Cmd: cmd, Kind: ReadMalformed, Err: err}
}

func classify(err error) ReadKind {
	if isTimeout(err) {
		return ReadTimeout
	}
	return ReadDisconnected
}
