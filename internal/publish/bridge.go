// internal/publish/bridge.go
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/clock"
	"github.com/tamzrod/benchlab-telemetry/internal/fleet"
	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
)

// Source is the gateway surface the bridge consumes.
type Source interface {
	List() []fleet.Device
	Subscribe(uid string) (*gateway.Subscription, error)
}

// Options configures a Bridge.
type Options struct {
	TopicPrefix string        // topics are <prefix>/<uid>/info and <prefix>/<uid>/telemetry
	Sweep       time.Duration // how often live devices are (re)subscribed
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Bridge forwards every reading of every live device to MQTT.
// It is an ordinary gateway consumer: it never touches devices.
type Bridge struct {
	src    Source
	pub    Publisher
	prefix string
	sweepD time.Duration
	clock  clock.Clock
	log    *slog.Logger

	mu       sync.Mutex
	active   map[string]*gateway.Subscription
	infoSent map[string]bool

	wg sync.WaitGroup
}

// NewBridge creates a bridge. Nothing runs until Run.
func NewBridge(src Source, pub Publisher, opts Options) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "benchlab"
	}
	if opts.Sweep <= 0 {
		opts.Sweep = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Bridge{
		src:      src,
		pub:      pub,
		prefix:   opts.TopicPrefix,
		sweepD:   opts.Sweep,
		clock:    opts.Clock,
		log:      log.With("component", "mqtt"),
		active:   make(map[string]*gateway.Subscription),
		infoSent: make(map[string]bool),
	}
}

// Run sweeps immediately and then every Sweep until ctx is cancelled.
// On return every subscription is closed and every forwarder has exited.
func (b *Bridge) Run(ctx context.Context) {
	t := b.clock.NewTicker(b.sweepD)
	defer t.Stop()

	b.sweep()
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-t.C:
			b.sweep()
		}
	}
}

func (b *Bridge) infoTopic(uid string) string      { return b.prefix + "/" + uid + "/info" }
func (b *Bridge) telemetryTopic(uid string) string { return b.prefix + "/" + uid + "/telemetry" }

// sweep subscribes to live devices that have no forwarder and drops
// forwarders of devices that are no longer live.
func (b *Bridge) sweep() {
	for _, d := range b.src.List() {
		uid := d.UID()

		b.mu.Lock()
		sub, running := b.active[uid]
		b.mu.Unlock()

		if !d.Health.Live() {
			if running {
				b.log.Info("device no longer live, dropping forwarder", "uid", uid, "health", d.Health.String())
				sub.Close()
			}
			continue
		}
		if running {
			continue
		}

		b.publishInfo(d)

		sub, err := b.src.Subscribe(uid)
		if err != nil {
			b.log.Warn("subscribe failed", "uid", uid, "error", err)
			continue
		}

		b.mu.Lock()
		b.active[uid] = sub
		b.mu.Unlock()

		b.wg.Add(1)
		go b.forward(sub)
		b.log.Info("forwarding device", "uid", uid, "topic", b.telemetryTopic(uid))
	}
}

// publishInfo sends the retained identity message once per device.
func (b *Bridge) publishInfo(d fleet.Device) {
	uid := d.UID()

	b.mu.Lock()
	sent := b.infoSent[uid]
	b.mu.Unlock()
	if sent {
		return
	}

	body, err := json.Marshal(d.Identity)
	if err != nil {
		b.log.Error("encode info", "uid", uid, "error", err)
		return
	}
	if err := b.pub.Publish(b.infoTopic(uid), true, body); err != nil {
		b.log.Warn("publish info failed", "uid", uid, "error", err)
		return
	}

	b.mu.Lock()
	b.infoSent[uid] = true
	b.mu.Unlock()
}

// forward publishes one telemetry message per reading until the
// subscription ends. The next sweep re-subscribes if the device is live.
func (b *Bridge) forward(sub *gateway.Subscription) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		if b.active[sub.UID] == sub {
			delete(b.active, sub.UID)
		}
		b.mu.Unlock()
	}()

	topic := b.telemetryTopic(sub.UID)
	for rd := range sub.C {
		body, err := json.Marshal(rd)
		if err != nil {
			b.log.Error("encode reading", "uid", sub.UID, "error", err)
			continue
		}
		if err := b.pub.Publish(topic, false, body); err != nil {
			b.log.Warn("publish telemetry failed", "uid", sub.UID, "seq", rd.Seq, "error", err)
		}
	}

	if err := sub.Err(); err != nil {
		b.log.Warn("subscription ended", "uid", sub.UID, "error", err)
	}
}

func (b *Bridge) closeAll() {
	b.mu.Lock()
	subs := make([]*gateway.Subscription, 0, len(b.active))
	for _, s := range b.active {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	b.wg.Wait()
}
