// internal/fleet/registry_test.go
package fleet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/fleet"
	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/link/sim"
	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

const (
	uidA = "AAAAAAAAAAAAAAAAAAAAAAAA"
	uidB = "BBBBBBBBBBBBBBBBBBBBBBBB"
)

// ---- helpers ----

func newRegistry(t *testing.T, bus *sim.Bus, extra ...fleet.PortInfo) *fleet.Registry {
	t.Helper()
	enum := fleet.EnumeratorFunc(func() ([]fleet.PortInfo, error) {
		var out []fleet.PortInfo
		for _, p := range bus.Ports() {
			out = append(out, fleet.PortInfo{Name: p, VID: "0483", PID: "5740"})
		}
		return append(out, extra...), nil
	})
	r := fleet.New(fleet.Options{
		Link:         link.Options{ReadTimeout: 30 * time.Millisecond, Dial: bus.Dial},
		ProbeTimeout: 30 * time.Millisecond,
		Enumerator:   enum,
	})
	t.Cleanup(r.Close)
	return r
}

func collect(ch <-chan fleet.Candidate) map[string]fleet.Candidate {
	out := make(map[string]fleet.Candidate)
	for c := range ch {
		out[c.Port] = c
	}
	return out
}

// ---- tests ----

func TestScan_MatchesSignatureAndProbes(t *testing.T) {
	bus := sim.NewBus()
	bus.Plug("sim0", sim.MustDevice(uidA))
	bus.Plug("sim1", sim.MustDevice(uidB))

	// a foreign USB device with another VID is never probed
	r := newRegistry(t, bus, fleet.PortInfo{Name: "ttyOTHER", VID: "1A86", PID: "7523"})

	got := collect(r.Scan(context.Background()))
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %v", len(got), got)
	}
	if got["sim0"].Identity.UID != uidA || got["sim1"].Identity.UID != uidB {
		t.Fatalf("unexpected identities %+v", got)
	}
	if _, ok := got["ttyOTHER"]; ok {
		t.Fatalf("foreign port was probed")
	}
	// probing does not register
	if len(r.List()) != 0 {
		t.Fatalf("scan must not register devices")
	}
}

func TestScan_SilentPortReportsError(t *testing.T) {
	bus := sim.NewBus()
	dev := sim.MustDevice(uidA)
	dev.SetSilent(true)
	bus.Plug("sim0", dev)
	bus.Plug("sim1", sim.MustDevice(uidB))

	r := newRegistry(t, bus)
	got := collect(r.Scan(context.Background()))

	if got["sim0"].Err == nil {
		t.Fatalf("silent device should fail probe")
	}
	if got["sim1"].Err != nil {
		t.Fatalf("healthy probe failed: %v", got["sim1"].Err)
	}
}

func TestRegister_UpsertByUID(t *testing.T) {
	bus := sim.NewBus()
	dev := sim.MustDevice(uidA)
	bus.Plug("sim0", dev)

	r := newRegistry(t, bus)
	ctx := context.Background()

	d, err := r.Register(ctx, "sim0")
	if err != nil {
		t.Fatalf("Register err=%v", err)
	}
	if d.UID() != uidA || !d.Connected || d.Health != status.HealthUnknown {
		t.Fatalf("unexpected device %+v", d)
	}

	// re-plug on another port
	bus.Unplug("sim0")
	bus.Plug("sim3", dev)

	d, err = r.Register(ctx, "sim3")
	if err != nil {
		t.Fatalf("re-Register err=%v", err)
	}
	if d.Identity.Port != "sim3" {
		t.Fatalf("expected port update, got %q", d.Identity.Port)
	}
	if n := len(r.List()); n != 1 {
		t.Fatalf("expected 1 entry after re-plug, got %d", n)
	}
}

func TestScan_SkipsHeldPorts(t *testing.T) {
	bus := sim.NewBus()
	bus.Plug("sim0", sim.MustDevice(uidA))
	bus.Plug("sim1", sim.MustDevice(uidB))

	r := newRegistry(t, bus)
	if _, err := r.Register(context.Background(), "sim0"); err != nil {
		t.Fatalf("Register err=%v", err)
	}

	got := collect(r.Scan(context.Background()))
	if _, ok := got["sim0"]; ok {
		t.Fatalf("held port was probed")
	}
	if _, ok := got["sim1"]; !ok {
		t.Fatalf("free port not probed")
	}
}

func TestRegister_ForeignDevice(t *testing.T) {
	bus := sim.NewBus()
	dev := sim.MustDevice(uidA)
	dev.SetVendor(protocol.VendorData{VendorID: 1, ProductID: 2})
	bus.Plug("sim0", dev)

	r := newRegistry(t, bus)
	if _, err := r.Register(context.Background(), "sim0"); !errors.Is(err, link.ErrForeignDevice) {
		t.Fatalf("expected ErrForeignDevice, got %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatalf("foreign device registered")
	}
}

func TestDeregister_MarksRemoved(t *testing.T) {
	bus := sim.NewBus()
	bus.Plug("sim0", sim.MustDevice(uidA))
	r := newRegistry(t, bus)
	ctx := context.Background()

	if _, err := r.Register(ctx, "sim0"); err != nil {
		t.Fatalf("Register err=%v", err)
	}
	if err := r.Deregister(uidA); err != nil {
		t.Fatalf("Deregister err=%v", err)
	}

	d, ok := r.Lookup(uidA)
	if !ok || d.Health != status.HealthRemoved || d.Connected {
		t.Fatalf("expected removed, disconnected entry, got %+v ok=%v", d, ok)
	}

	if _, err := r.Connect(ctx, uidA); !errors.Is(err, fleet.ErrRemoved) {
		t.Fatalf("expected ErrRemoved, got %v", err)
	}
	if err := r.Deregister("nope"); !errors.Is(err, fleet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// health updates do not resurrect a removed device
	r.SetHealth(uidA, status.HealthOK)
	if d, _ := r.Lookup(uidA); d.Health != status.HealthRemoved {
		t.Fatalf("removed device changed health to %v", d.Health)
	}
}

func TestConnect_ReleaseAndReopen(t *testing.T) {
	bus := sim.NewBus()
	dev := sim.MustDevice(uidA)
	bus.Plug("sim0", dev)
	r := newRegistry(t, bus)
	ctx := context.Background()

	if _, err := r.Register(ctx, "sim0"); err != nil {
		t.Fatalf("Register err=%v", err)
	}

	fr, err := r.Connect(ctx, uidA)
	if err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	if _, err := fr.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame err=%v", err)
	}

	r.Release(uidA)
	if d, _ := r.Lookup(uidA); d.Connected {
		t.Fatalf("expected disconnected after Release")
	}

	fr, err = r.Connect(ctx, uidA)
	if err != nil {
		t.Fatalf("reconnect err=%v", err)
	}
	if _, err := fr.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame after reconnect err=%v", err)
	}
	if dev.Polls() != 2 {
		t.Fatalf("expected 2 polls, got %d", dev.Polls())
	}
}

func TestConnect_IdentityMismatch(t *testing.T) {
	bus := sim.NewBus()
	bus.Plug("sim0", sim.MustDevice(uidA))
	r := newRegistry(t, bus)
	ctx := context.Background()

	if _, err := r.Register(ctx, "sim0"); err != nil {
		t.Fatalf("Register err=%v", err)
	}
	r.Release(uidA)

	// another device now sits on the same port
	bus.Unplug("sim0")
	bus.Plug("sim0", sim.MustDevice(uidB))

	if _, err := r.Connect(ctx, uidA); !errors.Is(err, fleet.ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
}

func TestSetHealth_VisibleInSnapshot(t *testing.T) {
	bus := sim.NewBus()
	bus.Plug("sim0", sim.MustDevice(uidA))
	r := newRegistry(t, bus)

	if _, err := r.Register(context.Background(), "sim0"); err != nil {
		t.Fatalf("Register err=%v", err)
	}

	before := r.List()
	r.SetHealth(uidA, status.HealthUnreachable)

	if before[0].Health != status.HealthUnknown {
		t.Fatalf("earlier snapshot mutated: %v", before[0].Health)
	}
	if d, _ := r.Lookup(uidA); d.Health != status.HealthUnreachable {
		t.Fatalf("expected unreachable, got %v", d.Health)
	}
}

func TestCombine_SkipsFailingEnumerator(t *testing.T) {
	broken := fleet.EnumeratorFunc(func() ([]fleet.PortInfo, error) { return nil, errors.New("no usb") })
	static := fleet.StaticPorts("0483", "5740", func() []string { return []string{"a", "b"} })

	ports, err := fleet.Combine(broken, static, static).Ports()
	if err != nil || len(ports) != 2 {
		t.Fatalf("expected 2 deduplicated ports, got %v, %v", ports, err)
	}

	if _, err := fleet.Combine(broken).Ports(); err == nil {
		t.Fatalf("expected error when every enumerator fails")
	}
}
