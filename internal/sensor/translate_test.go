// internal/sensor/translate_test.go
package sensor

import (
	"math"
	"reflect"
	"testing"

	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
)

func sampleFrame() protocol.SensorFrame {
	var f protocol.SensorFrame
	f.Vin[0] = 12010
	f.Vdd = 3300
	f.Vref = 2500
	f.Tchip = 4520
	f.Tamb = 2350
	f.Ts = [4]int16{3000, 3100, 3200, 3300}
	f.Hum = 455
	f.FanExtDuty = 77

	for i := range f.Power {
		f.Power[i] = protocol.PowerRail{
			Voltage: 12000,
			Current: int32(1000 * (i + 1)),
			Power:   int32(10000 * (i + 1)),
		}
	}
	for i := range f.Fans {
		f.Fans[i] = protocol.Fan{Enable: 1, Duty: uint8(10 * i), Tach: uint16(100 * i)}
	}
	return f
}

func TestTranslate_KnownValues(t *testing.T) {
	r, errs := Translate(sampleFrame())
	if len(errs) != 0 {
		t.Fatalf("unexpected translation errors: %v", errs)
	}

	if v := r.Temperature["Chip_Temp"]; v.Value != 45.2 || v.Unit != UnitCelsius {
		t.Fatalf("Chip_Temp: got %+v want 45.2 °C", v)
	}
	if v := r.Voltage["VIN_0"]; v.Value != 12.01 || v.Unit != UnitVolt {
		t.Fatalf("VIN_0: got %+v want 12.01 V", v)
	}
	if v := r.Other["Humidity"]; v.Value != 45.5 {
		t.Fatalf("Humidity: got %+v want 45.5", v)
	}
	if v := r.Fan["Fan3_RPM"]; v.Value != 200 || v.Unit != UnitRPM {
		t.Fatalf("Fan3_RPM: got %+v", v)
	}
}

func TestTranslate_PowerGroups(t *testing.T) {
	r, _ := Translate(sampleFrame())

	// rail i carries 10*(i+1) W
	cpu := 10.0 + 20.0
	mb := 30.0 + 40.0 + 50.0 + 60.0
	gpu := 70.0 + 80.0 + 90.0 + 100.0 + 110.0

	checks := map[string]float64{
		"CPU_Power":     cpu,
		"MB_Power":      mb,
		"GPU_Power":     gpu,
		"SYS_Power":     cpu + mb + gpu,
		"EPS1_Power":    10,
		"12V_Power":     60, // rail 5
		"3.3V_Current":  3,  // rail 2
		"HPWR2_Power":   110,
		"PCIE8_1_Power": 70,
	}
	for name, want := range checks {
		got, ok := r.Power[name]
		if !ok {
			t.Fatalf("%s missing", name)
		}
		if math.Abs(got.Value-want) > 1e-9 {
			t.Fatalf("%s: got %v want %v", name, got.Value, want)
		}
	}
}

func TestTranslate_ExcludesBookkeeping(t *testing.T) {
	r, _ := Translate(sampleFrame())

	for _, name := range []string{"FanExtDuty", "Fan1_Status", "FanSwitchStatus", "RGBSwitchStatus"} {
		if _, _, ok := r.Lookup(name); ok {
			t.Fatalf("%s should not be translated", name)
		}
	}
}

func TestTranslate_Deterministic(t *testing.T) {
	f := sampleFrame()
	a, _ := Translate(f)
	b, _ := Translate(f)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical frames produced different readings")
	}
}

func TestTranslate_OutOfRangeOmitsField(t *testing.T) {
	f := sampleFrame()
	f.Ts[1] = math.MinInt16
	f.Hum = 1500

	r, errs := Translate(f)
	if len(errs) != 2 {
		t.Fatalf("expected 2 translation errors, got %d: %v", len(errs), errs)
	}
	if _, ok := r.Temperature["Temp_Sensor_2"]; ok {
		t.Fatalf("Temp_Sensor_2 should be omitted")
	}
	if _, ok := r.Other["Humidity"]; ok {
		t.Fatalf("Humidity should be omitted")
	}
	// neighbours survive
	if _, ok := r.Temperature["Temp_Sensor_1"]; !ok {
		t.Fatalf("Temp_Sensor_1 should be present")
	}
	if errs[0].Field != "Temp_Sensor_2" {
		t.Fatalf("unexpected first error field %q", errs[0].Field)
	}
}

func TestTranslate_TemperatureBounds(t *testing.T) {
	cases := []struct {
		raw  int16
		keep bool
	}{
		{-27315, true},
		{-27316, false},
		{30000, true},
		{30001, false},
		{-30000, false},
	}
	for _, c := range cases {
		f := sampleFrame()
		f.Tamb = c.raw
		r, errs := Translate(f)
		_, ok := r.Temperature["Ambient_Temp"]
		if ok != c.keep {
			t.Fatalf("raw %d: kept=%v, want %v (errs=%v)", c.raw, ok, c.keep, errs)
		}
		if !c.keep && (len(errs) != 1 || errs[0].Field != "Ambient_Temp") {
			t.Fatalf("raw %d: expected one Ambient_Temp error, got %v", c.raw, errs)
		}
	}
}

func TestReading_LookupAndNames(t *testing.T) {
	r, _ := Translate(sampleFrame())

	v, c, ok := r.Lookup("Vdd")
	if !ok || c != CategoryVoltage || v.Value != 3.3 {
		t.Fatalf("Lookup(Vdd) = %+v %v %v", v, c, ok)
	}

	names := r.Names()
	if len(names) != r.Len() {
		t.Fatalf("Names len %d != Len %d", len(names), r.Len())
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted at %d: %q > %q", i, names[i-1], names[i])
		}
	}

	// 4 totals + 11 rails*3, 13 vin + vdd + vref, 6 temps, 9 fans*2, humidity
	if want := 4 + 33 + 15 + 6 + 18 + 1; r.Len() != want {
		t.Fatalf("expected %d values, got %d", want, r.Len())
	}
}
