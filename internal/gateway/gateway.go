// internal/gateway/gateway.go
package gateway

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/tamzrod/benchlab-telemetry/internal/fleet"
	"github.com/tamzrod/benchlab-telemetry/internal/metrics"
	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
)

// Directory is the read side of the fleet registry.
type Directory interface {
	List() []fleet.Device
	Lookup(uid string) (fleet.Device, bool)
}

// Options configures a Gateway.
type Options struct {
	HistoryLength    int // readings kept per device
	SubscriberBuffer int // per-subscription channel capacity
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

const (
	DefaultHistoryLength    = 10
	DefaultSubscriberBuffer = 16
)

// Gateway is the query and subscription surface over every device feed.
// Queries never touch a device; they read the last published state.
type Gateway struct {
	dir  Directory
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	feeds  map[string]*Feed
	closed bool
}

// New creates a gateway over dir.
func New(dir Directory, opts Options) *Gateway {
	if opts.HistoryLength <= 0 {
		opts.HistoryLength = DefaultHistoryLength
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Gateway{
		dir:   dir,
		opts:  opts,
		log:   log.With("component", "gateway"),
		feeds: make(map[string]*Feed),
	}
}

// Feed returns the feed for uid, creating it on first use. The daemon hands
// it to the device's poller as its sink.
func (g *Gateway) Feed(uid string) (*Feed, error) {
	uid = normalizeUID(uid)

	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.feeds[uid]; ok {
		return f, nil
	}
	if g.closed {
		return nil, ErrShuttingDown
	}

	f, err := newFeed(uid, g.opts.HistoryLength, g.opts.SubscriberBuffer, g.log, g.opts.Metrics)
	if err != nil {
		return nil, err
	}
	g.feeds[uid] = f
	return f, nil
}

// ------------------------------------------------------------
// QUERIES
// ------------------------------------------------------------

// List returns every known device, unreachable and removed ones included.
func (g *Gateway) List() []fleet.Device { return g.dir.List() }

// Info returns the registry view of one device.
func (g *Gateway) Info(uid string) (fleet.Device, error) {
	uid = normalizeUID(uid)
	d, ok := g.dir.Lookup(uid)
	if !ok {
		return fleet.Device{}, &NotFoundError{UID: uid, Reason: reasonUnknownDevice}
	}
	return d, nil
}

// Get returns the newest reading of uid.
func (g *Gateway) Get(uid string) (sensor.Reading, error) {
	uid = normalizeUID(uid)

	f := g.lookup(uid)
	if f == nil {
		return sensor.Reading{}, g.missing(uid)
	}
	r, ok := f.Latest()
	if !ok {
		return sensor.Reading{}, &NotFoundError{UID: uid, Reason: reasonNoData}
	}
	return r, nil
}

// GetSensor returns one named value from the newest reading.
func (g *Gateway) GetSensor(uid, name string) (sensor.Value, error) {
	r, err := g.Get(uid)
	if err != nil {
		return sensor.Value{}, err
	}
	v, _, ok := r.Lookup(name)
	if !ok {
		return sensor.Value{}, &NotFoundError{UID: normalizeUID(uid), Sensor: name, Reason: reasonUnknownSensor}
	}
	return v, nil
}

// GetHistory returns up to n readings, oldest first. n <= 0 returns the
// whole window.
func (g *Gateway) GetHistory(uid string, n int) ([]sensor.Reading, error) {
	uid = normalizeUID(uid)

	f := g.lookup(uid)
	if f == nil {
		return nil, g.missing(uid)
	}
	h := f.History(n)
	if len(h) == 0 {
		return nil, &NotFoundError{UID: uid, Reason: reasonNoData}
	}
	return h, nil
}

// Sensors returns the sorted sensor names of the newest reading.
func (g *Gateway) Sensors(uid string) ([]string, error) {
	r, err := g.Get(uid)
	if err != nil {
		return nil, err
	}
	return r.Names(), nil
}

// ------------------------------------------------------------
// SUBSCRIPTIONS
// ------------------------------------------------------------

// Subscribe opens a live subscription to uid. Only readings published after
// the call are delivered. Subscribing never polls the device.
func (g *Gateway) Subscribe(uid string) (*Subscription, error) {
	uid = normalizeUID(uid)

	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}

	if g.lookup(uid) == nil {
		if _, ok := g.dir.Lookup(uid); !ok {
			return nil, &NotFoundError{UID: uid, Reason: reasonUnknownDevice}
		}
	}

	f, err := g.Feed(uid)
	if err != nil {
		return nil, err
	}
	return f.subscribe()
}

// Close ends every subscription with ErrShuttingDown and refuses new ones.
// Queries keep answering from the last known state.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	feeds := make([]*Feed, 0, len(g.feeds))
	for _, f := range g.feeds {
		feeds = append(feeds, f)
	}
	g.mu.Unlock()

	for _, f := range feeds {
		f.close()
	}
	g.log.Info("gateway closed", "feeds", len(feeds))
}

// ------------------------------------------------------------
// helpers
// ------------------------------------------------------------

func (g *Gateway) lookup(uid string) *Feed {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feeds[uid]
}

func (g *Gateway) missing(uid string) error {
	if _, ok := g.dir.Lookup(uid); ok {
		return &NotFoundError{UID: uid, Reason: reasonNoData}
	}
	return &NotFoundError{UID: uid, Reason: reasonUnknownDevice}
}

// UIDs are reported upper-case by the codec.
func normalizeUID(uid string) string { return strings.ToUpper(strings.TrimSpace(uid)) }
