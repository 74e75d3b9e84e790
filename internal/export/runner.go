// internal/export/runner.go
package export

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// runner owns the status snapshot of one device plan.
//
// Readings arrive through a gateway subscription and are mirrored as they
// come. A 1 Hz ticker refreshes health from the registry, advances
// seconds-in-error while the device is not healthy, and re-subscribes after
// a subscription ends.
type runner struct {
	ex   *Exporter
	plan Plan
	log  *slog.Logger

	statusW *deviceStatusWriter
	sensorW *sensorWriter

	snap status.Snapshot
	sub  *gateway.Subscription
}

func newRunner(ex *Exporter, p Plan) *runner {
	cli := ex.clients[p.Endpoint]

	r := &runner{
		ex:      ex,
		plan:    p,
		log:     ex.log.With("uid", p.UID, "endpoint", p.Endpoint),
		sensorW: newSensorWriter(p, cli),
		snap:    status.Snapshot{Health: status.HealthUnknown},
	}
	if sw, ok := NewDeviceStatusWriter(p, cli); ok {
		r.statusW = sw
	}
	return r
}

func (r *runner) run(ctx context.Context) {
	secTicker := r.ex.clock.NewTicker(time.Second)
	defer secTicker.Stop()
	defer func() {
		if r.sub != nil {
			r.sub.Close()
		}
	}()

	// Full block write on start (identity re-assert) if enabled.
	r.writeStatus("start")
	r.resubscribe()

	for {
		var readings <-chan sensor.Reading
		if r.sub != nil {
			readings = r.sub.C
		}

		select {
		case <-ctx.Done():
			return

		case rd, ok := <-readings:
			if !ok {
				r.log.Warn("export subscription ended", "error", r.sub.Err())
				r.sub = nil
				continue
			}
			r.onReading(rd)

		case <-secTicker.C:
			r.onSecond()
			if r.sub == nil {
				r.resubscribe()
			}
		}
	}
}

func (r *runner) resubscribe() {
	sub, err := r.ex.src.Subscribe(r.plan.UID)
	if err != nil {
		if !errors.Is(err, gateway.ErrNotFound) {
			r.log.Warn("export subscribe failed", "error", err)
		}
		return
	}
	r.sub = sub
}

// onReading mirrors sensors and records recovery.
func (r *runner) onReading(rd sensor.Reading) {
	if err := r.sensorW.Write(rd); err != nil {
		r.log.Warn("sensor export failed", "seq", rd.Seq, "error", err)
	}

	changed := r.snap.Health != status.HealthOK ||
		r.snap.LastErrorCode != CodeNone ||
		r.snap.SecondsInError != 0

	r.snap.Health = status.HealthOK
	r.snap.LastErrorCode = CodeNone
	r.snap.SecondsInError = 0
	r.ex.clearError(r.plan.UID)

	if changed {
		r.writeStatus("recovery")
	}
}

// onSecond refreshes the snapshot from the registry view and ticks
// seconds-in-error while not healthy.
func (r *runner) onSecond() {
	prev := r.snap

	d, err := r.ex.src.Info(r.plan.UID)
	if err != nil {
		// never seen: stays unknown
		r.snap.Health = status.HealthUnknown
	} else {
		r.snap.Health = d.Health
		r.snap.Firmware = uint16(d.Identity.Firmware)
	}

	if r.snap.Health == status.HealthOK {
		r.snap.LastErrorCode = CodeNone
		r.snap.SecondsInError = 0
	} else {
		if code := r.ex.lastError(r.plan.UID); code != CodeNone {
			r.snap.LastErrorCode = code
		}
		if r.snap.SecondsInError < status.SecondsInErrorMax {
			r.snap.SecondsInError++
		}
	}

	if r.snap != prev {
		r.writeStatus("tick")
	}
}

func (r *runner) writeStatus(why string) {
	if r.statusW == nil {
		return
	}
	if err := r.statusW.WriteStatus(r.snap); err != nil {
		r.log.Warn("status write failed", "on", why, "error", err)
	}
}
