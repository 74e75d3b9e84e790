// internal/fleet/registry.go
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// Device is a read-only view of one fleet entry.
type Device struct {
	Identity     link.Identity `json:"identity" cbor:"identity"`
	Health       status.Health `json:"health" cbor:"health"`
	Connected    bool          `json:"connected" cbor:"connected"`
	DiscoveredAt time.Time     `json:"discovered_at" cbor:"discovered_at"`
	UpdatedAt    time.Time     `json:"updated_at" cbor:"updated_at"`
}

// UID is shorthand for d.Identity.UID.
func (d Device) UID() string { return d.Identity.UID }

// Options configures a Registry.
type Options struct {
	Link         link.Options
	ProbeTimeout time.Duration // per-exchange bound while probing
	USBVendor    string
	USBProduct   string
	Enumerator   Enumerator
	Logger       *slog.Logger
	Now          func() time.Time
}

const DefaultProbeTimeout = 300 * time.Millisecond

type entry struct {
	id         link.Identity
	health     status.Health
	link       *link.Link
	discovered time.Time
	updated    time.Time
}

// Registry is the set of known devices keyed by UID.
//
// Two locks: life serializes open/close transitions (which do device IO);
// mu guards the entry map and is only held for short, IO-free sections.
// Readers never take either: List and Lookup read an immutable snapshot.
type Registry struct {
	opts Options
	log  *slog.Logger

	life sync.Mutex

	mu      sync.Mutex
	entries map[string]*entry

	snap atomic.Pointer[[]Device]
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.USBVendor == "" {
		opts.USBVendor = DefaultUSBVendor
	}
	if opts.USBProduct == "" {
		opts.USBProduct = DefaultUSBProduct
	}
	if opts.Enumerator == nil {
		opts.Enumerator = USBEnumerator()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := &Registry{
		opts:    opts,
		log:     log.With("component", "fleet"),
		entries: make(map[string]*entry),
	}
	empty := []Device{}
	r.snap.Store(&empty)
	return r
}

// ------------------------------------------------------------
// READERS (lock-free)
// ------------------------------------------------------------

// List returns every known device, sorted by UID, including unreachable
// and removed ones.
func (r *Registry) List() []Device {
	s := *r.snap.Load()
	out := make([]Device, len(s))
	copy(out, s)
	return out
}

// Lookup returns one device by UID.
func (r *Registry) Lookup(uid string) (Device, bool) {
	s := *r.snap.Load()
	i := sort.Search(len(s), func(i int) bool { return s[i].Identity.UID >= uid })
	if i < len(s) && s[i].Identity.UID == uid {
		return s[i], true
	}
	return Device{}, false
}

// ------------------------------------------------------------
// LIFECYCLE (serialized)
// ------------------------------------------------------------

// Register opens port, reads the device identity and inserts or updates the
// entry for its UID. A device seen again on a new port keeps its entry;
// the previous link is closed.
func (r *Registry) Register(ctx context.Context, port string) (Device, error) {
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}

	r.life.Lock()
	defer r.life.Unlock()

	l, err := link.Open(port, r.opts.Link)
	if err != nil {
		return Device{}, err
	}
	id, err := l.ReadIdentity()
	if err != nil {
		_ = l.Close()
		return Device{}, err
	}

	now := r.opts.Now()

	r.mu.Lock()
	e, existed := r.entries[id.UID]
	var stale *link.Link
	if existed {
		if e.link != nil {
			stale = e.link
		}
		e.id = id
		e.link = l
		e.health = status.HealthUnknown
		e.updated = now
	} else {
		e = &entry{id: id, link: l, health: status.HealthUnknown, discovered: now, updated: now}
		r.entries[id.UID] = e
	}
	d := e.view()
	r.publishLocked()
	r.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	if existed {
		r.log.Info("device re-registered", "uid", id.UID, "port", port)
	} else {
		r.log.Info("device registered", "uid", id.UID, "port", port, "firmware", id.Firmware)
	}
	return d, nil
}

// Deregister closes the device link and marks the entry removed.
func (r *Registry) Deregister(uid string) error {
	r.life.Lock()
	defer r.life.Unlock()

	r.mu.Lock()
	e, ok := r.entries[uid]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	l := e.link
	e.link = nil
	e.health = status.HealthRemoved
	e.updated = r.opts.Now()
	r.publishLocked()
	r.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	r.log.Info("device deregistered", "uid", uid)
	return nil
}

// Connect returns the open link for uid, reopening it on the known port
// when it was released. The reopened device must answer with the same UID.
func (r *Registry) Connect(ctx context.Context, uid string) (link.FrameReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.life.Lock()
	defer r.life.Unlock()

	r.mu.Lock()
	e, ok := r.entries[uid]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, uid)
	}
	if e.health == status.HealthRemoved {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRemoved, uid)
	}
	if e.link != nil {
		l := e.link
		r.mu.Unlock()
		return l, nil
	}
	port := e.id.Port
	r.mu.Unlock()

	l, err := link.Open(port, r.opts.Link)
	if err != nil {
		return nil, err
	}
	id, err := l.ReadIdentity()
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	if id.UID != uid {
		_ = l.Close()
		return nil, fmt.Errorf("%w: port %s now reports %s, want %s", ErrIdentityMismatch, port, id.UID, uid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e.health == status.HealthRemoved {
		_ = l.Close()
		return nil, fmt.Errorf("%w: %s", ErrRemoved, uid)
	}
	e.link = l
	e.updated = r.opts.Now()
	r.publishLocked()
	return l, nil
}

// Release closes the link held for uid, keeping the entry.
func (r *Registry) Release(uid string) {
	r.life.Lock()
	defer r.life.Unlock()

	r.mu.Lock()
	e, ok := r.entries[uid]
	if !ok || e.link == nil {
		r.mu.Unlock()
		return
	}
	l := e.link
	e.link = nil
	e.updated = r.opts.Now()
	r.publishLocked()
	r.mu.Unlock()

	_ = l.Close()
}

// SetHealth records a health transition. Removed entries stay removed.
// Does not touch the lifecycle lock, so it never waits on device IO.
func (r *Registry) SetHealth(uid string, h status.Health) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[uid]
	if !ok || e.health == h || e.health == status.HealthRemoved {
		return
	}
	e.health = h
	e.updated = r.opts.Now()
	r.publishLocked()
}

// Close closes every open link.
func (r *Registry) Close() {
	r.life.Lock()
	defer r.life.Unlock()

	r.mu.Lock()
	var links []*link.Link
	for _, e := range r.entries {
		if e.link != nil {
			links = append(links, e.link)
			e.link = nil
		}
	}
	r.publishLocked()
	r.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
}

// ------------------------------------------------------------
// internal
// ------------------------------------------------------------

func (e *entry) view() Device {
	return Device{
		Identity:     e.id,
		Health:       e.health,
		Connected:    e.link != nil,
		DiscoveredAt: e.discovered,
		UpdatedAt:    e.updated,
	}
}

// publishLocked rebuilds the reader snapshot. Caller holds r.mu.
func (r *Registry) publishLocked() {
	s := make([]Device, 0, len(r.entries))
	for _, e := range r.entries {
		s = append(s, e.view())
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Identity.UID < s[j].Identity.UID })
	r.snap.Store(&s)
}

// heldPorts returns the ports currently owned by an open link.
func (r *Registry) heldPorts() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := make(map[string]bool)
	for _, e := range r.entries {
		if e.link != nil {
			held[e.link.Port()] = true
		}
	}
	return held
}

func (r *Registry) matches(p PortInfo) bool {
	return strings.EqualFold(p.VID, r.opts.USBVendor) && strings.EqualFold(p.PID, r.opts.USBProduct)
}
