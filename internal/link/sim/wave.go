// internal/link/sim/wave.go
package sim

import "github.com/tamzrod/benchlab-telemetry/internal/protocol"

// Wave produces a plausible, slowly varying frame for poll n.
// Deterministic: the same n always yields the same frame.
func Wave(n uint64) protocol.SensorFrame {
	var f protocol.SensorFrame
	step := int(n % 60)

	for i := range f.Vin {
		f.Vin[i] = int16(12000 + i*10 + step)
	}
	f.Vdd = 3300
	f.Vref = 2500
	f.Tchip = int16(4000 + step*5)
	f.Tamb = 2350
	for i := range f.Ts {
		f.Ts[i] = int16(3000 + i*100 + step)
	}
	f.Hum = 450

	for i := range f.Power {
		mv := int16(12000)
		ma := int32(2000 + i*100 + step*10)
		f.Power[i] = protocol.PowerRail{
			Voltage: mv,
			Current: ma,
			Power:   int32(mv) * ma / 1000,
		}
	}
	for i := range f.Fans {
		f.Fans[i] = protocol.Fan{
			Enable: 1,
			Duty:   uint8(30 + i),
			Tach:   uint16(900 + i*50 + step),
		}
	}
	return f
}
