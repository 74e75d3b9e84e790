// internal/export/sensor_writer.go
package export

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
)

// sensorWriter mirrors selected sensors of each reading into holding
// registers as signed fixed point: int16(round(value * scale)).
type sensorWriter struct {
	uid    string
	unitID uint8
	cli    endpointClient
	plans  []SensorPlan // sorted by address
}

func newSensorWriter(plan Plan, cli endpointClient) *sensorWriter {
	ps := append([]SensorPlan(nil), plan.Sensors...)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Address < ps[j].Address })

	return &sensorWriter{uid: plan.UID, unitID: plan.UnitID, cli: cli, plans: ps}
}

// Write sends one reading. Contiguous addresses go out in a single request.
// A sensor missing from the reading breaks the run and keeps its old value.
func (w *sensorWriter) Write(r sensor.Reading) error {
	if len(w.plans) == 0 {
		return nil
	}
	if w.cli == nil {
		return fmt.Errorf("sensor writer: missing client for device %s", w.uid)
	}

	var (
		errs    []string
		missing []string
		start   uint16
		run     []uint16
	)

	flush := func() {
		if len(run) == 0 {
			return
		}
		if err := w.cli.WriteRegisters(w.unitID, start, run); err != nil {
			errs = append(errs, fmt.Sprintf("addr=%d qty=%d err=%v", start, len(run), err))
		}
		run = nil
	}

	for _, p := range w.plans {
		v, _, ok := r.Lookup(p.Name)
		if !ok {
			flush()
			missing = append(missing, p.Name)
			continue
		}

		if len(run) > 0 && p.Address != start+uint16(len(run)) {
			flush()
		}
		if len(run) == 0 {
			start = p.Address
		}
		run = append(run, fixedPoint(v.Value, p.Scale))
	}
	flush()

	if len(errs) > 0 {
		return fmt.Errorf("sensor writer: %s", strings.Join(errs, " | "))
	}
	if len(missing) > 0 {
		return &MissingSensorsError{UID: w.uid, Names: missing}
	}
	return nil
}

// MissingSensorsError lists mapped sensors absent from a reading.
// Their registers keep the previous value.
type MissingSensorsError struct {
	UID   string
	Names []string
}

func (e *MissingSensorsError) Error() string {
	return fmt.Sprintf("device %s: sensors not in reading: %s", e.UID, strings.Join(e.Names, ", "))
}

// fixedPoint scales, rounds and saturates to the int16 range.
func fixedPoint(v, scale float64) uint16 {
	x := math.Round(v * scale)
	switch {
	case math.IsNaN(x):
		x = 0
	case x > math.MaxInt16:
		x = math.MaxInt16
	case x < math.MinInt16:
		x = math.MinInt16
	}
	return uint16(int16(x))
}
