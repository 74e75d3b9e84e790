// internal/sensor/translate.go
package sensor

import (
	"fmt"
	"math"

	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
)

// Plausible ranges. Values outside are reported and omitted.
// Centi-degree int16 spans about +-327 C, so both temperature bounds bite.
const (
	tempMinC     = -273.15
	tempMaxC     = 300.0
	humidityMin  = 0.0
	humidityMax  = 100.0
	milliPerUnit = 1000.0
)

// TranslationError reports a single field whose raw value cannot be scaled
// to a plausible physical value. Only that field is omitted from the Reading.
type TranslationError struct {
	Field  string
	Raw    int64
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("sensor: %s: raw=%d: %s", e.Field, e.Raw, e.Reason)
}

// rail labels the power channels by their position in the frame.
type rail struct {
	label string
	index int
}

// Rail label order matches how the channels are presented on the device.
var rails = []rail{
	{"EPS1", 0},
	{"EPS2", 1},
	{"12V", 5},
	{"5V", 3},
	{"5VSB", 4},
	{"3.3V", 2},
	{"PCIE8_1", 6},
	{"PCIE8_2", 7},
	{"PCIE8_3", 8},
	{"HPWR1", 9},
	{"HPWR2", 10},
}

// Power group membership by rail index.
var (
	cpuRails = []int{0, 1}
	mbRails  = []int{2, 3, 4, 5}
	gpuRails = []int{6, 7, 8, 9, 10}
)

// Translate converts one decoded frame into a normalized Reading.
// Deterministic, no IO. Seq and At are left for the caller to stamp.
//
// Bookkeeping bytes (switch status, RGB status, fan enable flags and
// external fan duty) are not sensor values and are not translated.
func Translate(f protocol.SensorFrame) (Reading, []*TranslationError) {
	r := Reading{
		Power:       make(Group, 4+3*len(rails)),
		Voltage:     make(Group, protocol.VinCount+2),
		Temperature: make(Group, 2+protocol.TempProbeCount),
		Fan:         make(Group, 2*protocol.FanCount),
		Other:       make(Group, 1),
	}
	var errs []*TranslationError

	// ---- power ----

	cpu := sumPower(f, cpuRails)
	mb := sumPower(f, mbRails)
	gpu := sumPower(f, gpuRails)

	r.Power["SYS_Power"] = Value{float64(cpu+mb+gpu) / milliPerUnit, UnitWatt}
	r.Power["CPU_Power"] = Value{float64(cpu) / milliPerUnit, UnitWatt}
	r.Power["GPU_Power"] = Value{float64(gpu) / milliPerUnit, UnitWatt}
	r.Power["MB_Power"] = Value{float64(mb) / milliPerUnit, UnitWatt}

	for _, rl := range rails {
		p := f.Power[rl.index]
		r.Power[rl.label+"_Voltage"] = Value{float64(p.Voltage) / milliPerUnit, UnitVolt}
		r.Power[rl.label+"_Current"] = Value{float64(p.Current) / milliPerUnit, UnitAmpere}
		r.Power[rl.label+"_Power"] = Value{float64(p.Power) / milliPerUnit, UnitWatt}
	}

	// ---- voltage ----

	for i, v := range f.Vin {
		r.Voltage[fmt.Sprintf("VIN_%d", i)] = Value{float64(v) / milliPerUnit, UnitVolt}
	}
	r.Voltage["Vdd"] = Value{float64(f.Vdd) / milliPerUnit, UnitVolt}
	r.Voltage["Vref"] = Value{float64(f.Vref) / milliPerUnit, UnitVolt}

	// ---- temperature ----

	putTemp := func(name string, raw int16) {
		v, err := temperature(name, raw)
		if err != nil {
			errs = append(errs, err)
			return
		}
		r.Temperature[name] = v
	}

	putTemp("Chip_Temp", f.Tchip)
	putTemp("Ambient_Temp", f.Tamb)
	for i, t := range f.Ts {
		putTemp(fmt.Sprintf("Temp_Sensor_%d", i+1), t)
	}

	// ---- fans ----

	for i, fan := range f.Fans {
		r.Fan[fmt.Sprintf("Fan%d_Duty", i+1)] = Value{float64(fan.Duty), UnitPercent}
		r.Fan[fmt.Sprintf("Fan%d_RPM", i+1)] = Value{float64(fan.Tach), UnitRPM}
	}

	// ---- other ----

	hum := float64(f.Hum) / 10
	if hum < humidityMin || hum > humidityMax {
		errs = append(errs, &TranslationError{
			Field:  "Humidity",
			Raw:    int64(f.Hum),
			Reason: fmt.Sprintf("%.1f%%RH outside [%g, %g]", hum, humidityMin, humidityMax),
		})
	} else {
		r.Other["Humidity"] = Value{hum, UnitHumidity}
	}

	return r, errs
}

// temperature scales centi-degrees to degrees C.
func temperature(name string, raw int16) (Value, *TranslationError) {
	if raw == math.MinInt16 || raw == math.MaxInt16 {
		return Value{}, &TranslationError{Field: name, Raw: int64(raw), Reason: "sensor absent"}
	}
	c := float64(raw) / 100
	if c < tempMinC || c > tempMaxC {
		return Value{}, &TranslationError{
			Field:  name,
			Raw:    int64(raw),
			Reason: fmt.Sprintf("%.2f°C outside [%g, %g]", c, tempMinC, tempMaxC),
		}
	}
	return Value{c, UnitCelsius}, nil
}

// sumPower adds rail power in mW without overflow.
func sumPower(f protocol.SensorFrame, idx []int) int64 {
	var s int64
	for _, i := range idx {
		s += int64(f.Power[i].Power)
	}
	return s
}
