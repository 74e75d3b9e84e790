// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/clock"
	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/metrics"
	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// Linker abstracts the fleet operations the poller needs.
// The poller never opens ports itself.
type Linker interface {
	Connect(ctx context.Context, uid string) (link.FrameReader, error)
	Release(uid string)
	SetHealth(uid string, h status.Health)
}

// Sink receives every successfully translated reading, in poll order.
// Publish MUST NOT block on consumers.
type Sink interface {
	Publish(r sensor.Reading)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	UID               string
	Interval          time.Duration
	FailureThreshold  int           // consecutive failed ticks before reconnecting
	ConnectAttempts   int           // attempts when first connecting
	ReconnectAttempts int           // attempts per reconnect cycle
	ReconnectSpacing  time.Duration // wait before each reconnect attempt
}

// Deps are optional collaborators. Zero values are replaced by defaults.
type Deps struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OnState is called synchronously on every state transition.
	OnState func(uid string, s State)

	// OnError is called synchronously with every failed poll or connect.
	OnError func(uid string, err error)
}

// Poller drives one device: one goroutine, one link, no overlap.
type Poller struct {
	cfg    Config
	linker Linker
	sink   Sink
	clock  clock.Clock
	log    *slog.Logger
	m      *metrics.Metrics
	hook   func(string, State)
	onErr  func(string, error)

	state atomic.Int32

	// owned by the Run goroutine
	src      link.FrameReader
	failures int
	health   status.Health

	mu    sync.Mutex
	stats Stats
}

// New creates a poller with immutable config.
func New(cfg Config, linker Linker, sink Sink, deps Deps) (*Poller, error) {
	if cfg.UID == "" {
		return nil, errors.New("poller: uid required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, errors.New("poller: failure threshold must be > 0")
	}
	if cfg.ConnectAttempts <= 0 || cfg.ReconnectAttempts <= 0 {
		return nil, errors.New("poller: connect and reconnect attempts must be > 0")
	}
	if linker == nil || sink == nil {
		return nil, errors.New("poller: linker and sink required")
	}

	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Poller{
		cfg:    cfg,
		linker: linker,
		sink:   sink,
		clock:  deps.Clock,
		log:    log.With("component", "poller", "uid", cfg.UID),
		m:      deps.Metrics,
		hook:   deps.OnState,
		onErr:  deps.OnError,
		health: status.HealthUnknown,
	}, nil
}

// UID returns the device this poller drives.
func (p *Poller) UID() string { return p.cfg.UID }

// State is safe to call from any goroutine.
func (p *Poller) State() State { return State(p.state.Load()) }

// Stats returns a copy of the counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// PollOnce performs exactly one poll cycle against src.
// All-or-nothing: any failure aborts the cycle and yields no reading.
func (p *Poller) PollOnce(src link.FrameReader) PollResult {
	res := PollResult{
		UID: p.cfg.UID,
		At:  p.clock.Now(),
	}

	frame, err := src.ReadFrame()
	if err != nil {
		res.Err = err
		return res
	}

	reading, omitted := sensor.Translate(frame)
	reading.At = res.At

	// Commit only if the whole frame was read and decoded
	res.Reading = reading
	res.Omitted = omitted
	return res
}

func (p *Poller) setState(s State) {
	prev := State(p.state.Swap(int32(s)))
	if prev == s {
		return
	}
	p.log.Debug("poller state", "from", prev.String(), "state", s.String())
	p.m.PollerState(p.cfg.UID, int(s))
	if p.hook != nil {
		p.hook(p.cfg.UID, s)
	}
}

func (p *Poller) setHealth(h status.Health) {
	if p.health == h {
		return
	}
	p.health = h
	p.linker.SetHealth(p.cfg.UID, h)
}

func (p *Poller) reportError(err error) {
	if p.onErr != nil {
		p.onErr(p.cfg.UID, err)
	}
}
