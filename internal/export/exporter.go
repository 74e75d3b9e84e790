// internal/export/exporter.go
package export

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/tamzrod/benchlab-telemetry/internal/clock"
	"github.com/tamzrod/benchlab-telemetry/internal/fleet"
	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
)

// Source is the gateway surface the exporter consumes.
type Source interface {
	Info(uid string) (fleet.Device, error)
	Subscribe(uid string) (*gateway.Subscription, error)
}

// Options configures an Exporter.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Exporter runs one device runner per plan and tracks the last error code
// reported by each device's poller.
type Exporter struct {
	src     Source
	plans   []Plan
	clients map[string]endpointClient
	clock   clock.Clock
	log     *slog.Logger

	mu    sync.Mutex
	codes map[string]uint16
}

// New creates an exporter. clients is keyed by endpoint.
func New(src Source, plans []Plan, clients map[string]*EndpointClient, opts Options) *Exporter {
	m := make(map[string]endpointClient, len(clients))
	for k, v := range clients {
		m[k] = v
	}
	return newExporter(src, plans, m, opts)
}

func newExporter(src Source, plans []Plan, clients map[string]endpointClient, opts Options) *Exporter {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Exporter{
		src:     src,
		plans:   plans,
		clients: clients,
		clock:   opts.Clock,
		log:     log.With("component", "export"),
		codes:   make(map[string]uint16),
	}
}

// ReportError records the error code of a failed poll or connect. Wired to
// the poller's OnError hook.
func (e *Exporter) ReportError(uid string, err error) {
	code := ErrorCode(err)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes[uid] = code
}

func (e *Exporter) lastError(uid string) uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.codes[uid]
}

func (e *Exporter) clearError(uid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.codes, uid)
}

// Run starts every device runner and blocks until ctx is cancelled and all
// runners have returned.
func (e *Exporter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range e.plans {
		wg.Add(1)
		go func(p Plan) {
			defer wg.Done()
			newRunner(e, p).run(ctx)
		}(p)
	}
	wg.Wait()
}

// ------------------------------------------------------------
// ERROR CODES
// ------------------------------------------------------------

// Codes written to the last-error slot. Read errors use their kind
// (1 timeout, 2 malformed, 3 disconnected, 4 closed).
const (
	CodeNone       uint16 = 0
	CodeConnection uint16 = 0x10
	CodeProtocol   uint16 = 0x11
	CodeGeneric    uint16 = 0xFF
)

// ErrorCode extracts a uint16 code from an error.
// If the error does not expose a code, returns CodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	var ce *link.ConnectionError
	if errors.As(err, &ce) {
		return CodeConnection
	}
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return CodeProtocol
	}

	return CodeGeneric
}
