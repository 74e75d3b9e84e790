// internal/daemon/daemon_test.go
package daemon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/config"
	"github.com/tamzrod/benchlab-telemetry/internal/link/sim"
	"github.com/tamzrod/benchlab-telemetry/internal/poller"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

func simConfig(devices int) *config.Config {
	cfg := &config.Config{}
	cfg.Discovery.Simulate = devices
	cfg.Discovery.DisableUSB = true
	cfg.Poll.IntervalSeconds = 0.05
	cfg.Link.ReadTimeoutMs = 200
	cfg.Link.ProbeTimeoutMs = 100
	cfg.Reconnect.SpacingMs = 20
	config.Normalize(cfg)
	return cfg
}

func newDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScanOnce_FindsSimulatedDevices(t *testing.T) {
	d := newDaemon(t, simConfig(2))
	defer d.Registry().Close()

	cands := d.ScanOnce(context.Background())
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	for _, c := range cands {
		if c.Err != nil {
			t.Fatalf("probe %s failed: %v", c.Port, c.Err)
		}
	}
	if n := len(d.Registry().List()); n != 0 {
		t.Fatalf("scan must not register, got %d devices", n)
	}
}

func TestRun_PollsEveryDeviceAndStops(t *testing.T) {
	d := newDaemon(t, simConfig(2))
	gw := d.Gateway()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for i := 0; i < 2; i++ {
		uid := SimUID(i)
		eventually(t, "reading from "+uid, func() bool {
			r, err := gw.Get(uid)
			return err == nil && r.Seq >= 2
		})
	}

	devs := gw.List()
	if len(devs) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devs))
	}
	for _, dev := range devs {
		if dev.Health != status.HealthOK || !dev.Connected {
			t.Fatalf("unexpected device state %+v", dev)
		}
	}

	sub, err := gw.Subscribe(SimUID(0))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("daemon did not stop")
	}

	<-sub.Done()
	for uid, st := range d.PollerStates() {
		if st != poller.StateStopped {
			t.Fatalf("poller %s in state %s after shutdown", uid, st)
		}
	}
	if _, err := gw.Get(SimUID(0)); err != nil {
		t.Fatalf("last known reading must survive shutdown: %v", err)
	}
}

func TestDiscover_HotPlug(t *testing.T) {
	d := newDaemon(t, simConfig(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.shutdown()
	}()

	if n := d.Discover(ctx); n != 1 {
		t.Fatalf("expected 1 poller, got %d", n)
	}

	extra := sim.MustDevice(SimUID(7))
	d.Bus().Plug("sim7", extra)

	if n := d.Discover(ctx); n != 1 {
		t.Fatalf("expected only the new device to start, got %d", n)
	}
	eventually(t, "hot-plugged reading", func() bool {
		_, err := d.Gateway().Get(SimUID(7))
		return err == nil
	})
}

func TestUnplug_MarksUnreachable(t *testing.T) {
	cfg := simConfig(1)
	cfg.Reconnect.FailureThreshold = 1
	cfg.Reconnect.Attempts = 2
	d := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.shutdown()
	}()

	d.Discover(ctx)
	uid := SimUID(0)
	eventually(t, "first reading", func() bool {
		_, err := d.Gateway().Get(uid)
		return err == nil
	})

	d.Bus().Unplug("sim0")

	eventually(t, "unreachable", func() bool {
		dev, ok := d.Registry().Lookup(uid)
		return ok && dev.Health == status.HealthUnreachable
	})
	eventually(t, "poller stopped", func() bool {
		return d.PollerStates()[uid] == poller.StateStopped
	})
}

func (d *Daemon) pollerStats(uid string) poller.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.pollers[uid]; ok {
		return h.p.Stats()
	}
	return poller.Stats{}
}

func TestReconnect_KeepsHistory(t *testing.T) {
	cfg := simConfig(1)
	cfg.Poll.HistoryLength = 200
	d := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.shutdown()
	}()

	uid := SimUID(0)
	d.Discover(ctx)
	eventually(t, "readings before the outage", func() bool {
		r, err := d.Gateway().Get(uid)
		return err == nil && r.Seq >= 3
	})

	before, err := d.Gateway().GetHistory(uid, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}

	dev, ok := d.Bus().Device("sim0")
	if !ok {
		t.Fatalf("simulated device missing")
	}
	dev.FailNext(cfg.Reconnect.FailureThreshold)

	eventually(t, "reconnect", func() bool { return d.pollerStats(uid).Reconnects == 1 })
	last := before[len(before)-1].Seq
	eventually(t, "reading after recovery", func() bool {
		r, err := d.Gateway().Get(uid)
		return err == nil && r.Seq > last+1
	})

	if st := d.PollerStates()[uid]; st != poller.StatePolling {
		t.Fatalf("expected polling after recovery, got %s", st)
	}

	after, err := d.Gateway().GetHistory(uid, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(after) < len(before) {
		t.Fatalf("history shrank across the outage: %d -> %d", len(before), len(after))
	}
	for i, r := range before {
		if after[i].Seq != r.Seq || !after[i].At.Equal(r.At) {
			t.Fatalf("pre-outage reading %d changed: %d@%v -> %d@%v", i, r.Seq, r.At, after[i].Seq, after[i].At)
		}
	}
	for i := 1; i < len(after); i++ {
		if after[i].Seq != after[i-1].Seq+1 {
			t.Fatalf("history not contiguous at %d: %d then %d", i, after[i-1].Seq, after[i].Seq)
		}
	}
}
