// internal/sensor/reading.go
package sensor

import (
	"sort"
	"time"
)

// Category tags one group of a Reading.
type Category uint8

const (
	CategoryPower Category = iota
	CategoryVoltage
	CategoryTemperature
	CategoryFan
	CategoryOther
)

// Categories lists every category in presentation order.
var Categories = []Category{
	CategoryPower,
	CategoryVoltage,
	CategoryTemperature,
	CategoryFan,
	CategoryOther,
}

func (c Category) String() string {
	switch c {
	case CategoryPower:
		return "power"
	case CategoryVoltage:
		return "voltage"
	case CategoryTemperature:
		return "temperature"
	case CategoryFan:
		return "fan"
	case CategoryOther:
		return "other"
	default:
		return "unknown"
	}
}

// Units.
const (
	UnitWatt     = "W"
	UnitVolt     = "V"
	UnitAmpere   = "A"
	UnitCelsius  = "°C"
	UnitPercent  = "%"
	UnitRPM      = "RPM"
	UnitHumidity = "%RH"
)

// Value is one scaled sensor value.
type Value struct {
	Value float64 `json:"value" cbor:"value"`
	Unit  string  `json:"unit" cbor:"unit"`
}

// Group maps sensor names to values within one category.
type Group map[string]Value

// Reading is one normalized telemetry sample, derived from exactly one frame.
// A Reading is immutable once published; consumers must not mutate its groups.
type Reading struct {
	Seq uint64    `json:"seq" cbor:"seq"`
	At  time.Time `json:"at" cbor:"at"`

	Power       Group `json:"power" cbor:"power"`
	Voltage     Group `json:"voltage" cbor:"voltage"`
	Temperature Group `json:"temperature" cbor:"temperature"`
	Fan         Group `json:"fan" cbor:"fan"`
	Other       Group `json:"other" cbor:"other"`
}

// Group returns the group for c, or nil for an unknown category.
func (r Reading) Group(c Category) Group {
	switch c {
	case CategoryPower:
		return r.Power
	case CategoryVoltage:
		return r.Voltage
	case CategoryTemperature:
		return r.Temperature
	case CategoryFan:
		return r.Fan
	case CategoryOther:
		return r.Other
	default:
		return nil
	}
}

// Lookup finds a sensor by name across all categories.
func (r Reading) Lookup(name string) (Value, Category, bool) {
	for _, c := range Categories {
		if v, ok := r.Group(c)[name]; ok {
			return v, c, true
		}
	}
	return Value{}, 0, false
}

// Names returns every sensor name present in r, sorted.
func (r Reading) Names() []string {
	var out []string
	for _, c := range Categories {
		for name := range r.Group(c) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Flatten returns a name -> value map without units.
func (r Reading) Flatten() map[string]float64 {
	out := make(map[string]float64, r.Len())
	for _, c := range Categories {
		for name, v := range r.Group(c) {
			out[name] = v.Value
		}
	}
	return out
}

// Len is the total number of sensor values across categories.
func (r Reading) Len() int {
	n := 0
	for _, c := range Categories {
		n += len(r.Group(c))
	}
	return n
}
