// internal/daemon/daemon.go
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/clock"
	"github.com/tamzrod/benchlab-telemetry/internal/config"
	"github.com/tamzrod/benchlab-telemetry/internal/fleet"
	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/link/sim"
	"github.com/tamzrod/benchlab-telemetry/internal/metrics"
	"github.com/tamzrod/benchlab-telemetry/internal/poller"
)

// SimPortPrefix names the virtual ports of simulated devices.
const SimPortPrefix = "sim"

// Options are optional collaborators. Zero values are replaced by defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clock.Clock

	// Enumerator overrides discovery built from the config.
	Enumerator fleet.Enumerator

	// Dial overrides the link dialer built from the config.
	Dial link.DialFunc

	// OnError receives every failed poll or connect (export wires here).
	OnError func(uid string, err error)
}

// Daemon wires registry, gateway and one poller per registered device.
type Daemon struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger
	bus  *sim.Bus // nil unless simulating

	reg *fleet.Registry
	gw  *gateway.Gateway

	mu      sync.Mutex
	pollers map[string]*handle
	wg      sync.WaitGroup
}

type handle struct {
	p      *poller.Poller
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the daemon from a validated, normalized config.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemon: nil config")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	d := &Daemon{
		cfg:     cfg,
		opts:    opts,
		log:     log.With("component", "daemon"),
		pollers: make(map[string]*handle),
	}

	if n := cfg.Discovery.Simulate; n > 0 {
		d.bus = sim.NewBus()
		for i := 0; i < n; i++ {
			dev := sim.MustDevice(SimUID(i))
			d.bus.Plug(fmt.Sprintf("%s%d", SimPortPrefix, i), dev)
		}
		d.log.Info("simulated devices attached", "count", n)
	}

	d.reg = fleet.New(fleet.Options{
		Link: link.Options{
			BaudRate:    cfg.Link.BaudRate,
			ReadTimeout: cfg.Link.ReadTimeout(),
			FrameSize:   cfg.Link.FrameSize,
			Quiet:       cfg.Link.Quiet(),
			Dial:        d.dialer(),
		},
		ProbeTimeout: cfg.Link.ProbeTimeout(),
		USBVendor:    cfg.Discovery.USBVendor,
		USBProduct:   cfg.Discovery.USBProduct,
		Enumerator:   d.enumerator(),
		Logger:       log,
		Now:          opts.Clock.Now,
	})

	d.gw = gateway.New(d.reg, gateway.Options{
		HistoryLength:    cfg.Poll.HistoryLength,
		SubscriberBuffer: cfg.Gateway.SubscriberBuffer,
		Logger:           log,
		Metrics:          opts.Metrics,
	})

	return d, nil
}

// SimUID is the UID of the i-th simulated device.
func SimUID(i int) string { return fmt.Sprintf("BE1AB0000000000000%06X", i) }

func (d *Daemon) Registry() *fleet.Registry { return d.reg }
func (d *Daemon) Gateway() *gateway.Gateway { return d.gw }

// Bus returns the simulated bus, nil unless simulating.
func (d *Daemon) Bus() *sim.Bus { return d.bus }

// ------------------------------------------------------------
// DISCOVERY
// ------------------------------------------------------------

func (d *Daemon) enumerator() fleet.Enumerator {
	if d.opts.Enumerator != nil {
		return d.opts.Enumerator
	}

	disc := d.cfg.Discovery
	var es []fleet.Enumerator
	if !disc.DisableUSB {
		es = append(es, fleet.USBEnumerator())
	}
	if len(disc.Ports) > 0 {
		ports := append([]string(nil), disc.Ports...)
		es = append(es, fleet.StaticPorts(disc.USBVendor, disc.USBProduct, func() []string { return ports }))
	}
	if d.bus != nil {
		es = append(es, fleet.StaticPorts(disc.USBVendor, disc.USBProduct, d.bus.Ports))
	}
	return fleet.Combine(es...)
}

func (d *Daemon) dialer() link.DialFunc {
	if d.opts.Dial != nil {
		return d.opts.Dial
	}
	if d.bus == nil {
		return link.DialSerial
	}
	bus := d.bus
	return func(port string, o link.Options) (io.ReadWriteCloser, error) {
		if strings.HasPrefix(port, SimPortPrefix) {
			return bus.Dial(port, o)
		}
		return link.DialSerial(port, o)
	}
}

// ScanOnce probes every candidate port and returns what answered, without
// registering anything.
func (d *Daemon) ScanOnce(ctx context.Context) []fleet.Candidate {
	var out []fleet.Candidate
	for c := range d.reg.Scan(ctx) {
		out = append(out, c)
	}
	return out
}

// Discover scans, registers every device that answered and starts a poller
// for each registered device that has none running. Returns the number of
// pollers started.
func (d *Daemon) Discover(ctx context.Context) int {
	started := 0
	for c := range d.reg.Scan(ctx) {
		if c.Err != nil {
			continue
		}
		dev, err := d.reg.Register(ctx, c.Port)
		if err != nil {
			d.log.Warn("register failed", "port", c.Port, "error", err)
			continue
		}
		if d.startPoller(ctx, dev.UID()) {
			started++
		}
	}
	return started
}

// ------------------------------------------------------------
// POLLERS
// ------------------------------------------------------------

func (d *Daemon) startPoller(ctx context.Context, uid string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := d.pollers[uid]; ok {
		select {
		case <-h.done:
			// previous poller gave up; the device came back
		default:
			return false
		}
	}

	feed, err := d.gw.Feed(uid)
	if err != nil {
		d.log.Warn("no feed for device", "uid", uid, "error", err)
		return false
	}

	p, err := poller.Build(uid, d.cfg, d.reg, feed, poller.Deps{
		Clock:   d.opts.Clock,
		Logger:  d.opts.Logger,
		Metrics: d.opts.Metrics,
		OnError: d.opts.OnError,
	})
	if err != nil {
		d.log.Error("poller build failed", "uid", uid, "error", err)
		return false
	}

	pctx, cancel := context.WithCancel(ctx)
	h := &handle{p: p, cancel: cancel, done: make(chan struct{})}
	d.pollers[uid] = h

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(h.done)
		defer cancel()
		p.Run(pctx)
	}()

	d.log.Info("poller started", "uid", uid, "interval", d.cfg.Poll.Interval())
	return true
}

// PollerStates reports the current state of every poller by UID.
func (d *Daemon) PollerStates() map[string]poller.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]poller.State, len(d.pollers))
	for uid, h := range d.pollers {
		out[uid] = h.p.State()
	}
	return out
}

// ------------------------------------------------------------
// RUN
// ------------------------------------------------------------

// Run discovers devices, keeps rescanning when configured, and blocks until
// ctx is cancelled. Shutdown order: pollers, registry links, gateway.
func (d *Daemon) Run(ctx context.Context) error {
	n := d.Discover(ctx)
	d.log.Info("discovery complete", "devices", n)

	var rescan <-chan time.Time
	if s := d.cfg.Discovery.RescanSeconds; s > 0 {
		t := d.opts.Clock.NewTicker(time.Duration(s) * time.Second)
		defer t.Stop()
		rescan = t.C
	}

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case <-rescan:
			if n := d.Discover(ctx); n > 0 {
				d.log.Info("rescan found devices", "started", n)
			}
		}
	}
}

func (d *Daemon) shutdown() {
	d.mu.Lock()
	for _, h := range d.pollers {
		h.cancel()
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.reg.Close()
	d.gw.Close()
	d.log.Info("daemon stopped")
}
