// internal/protocol/codec.go
package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// Shape names a fixed response structure and its minimum length.
type Shape struct {
	Name   string
	MinLen int
}

var (
	ShapeUID        = Shape{Name: "uid", MinLen: UIDSize}
	ShapeVendorData = Shape{Name: "vendor data", MinLen: VendorDataSize}
	ShapeSensors    = Shape{Name: "sensors", MinLen: SensorFrameSize}
)

// Check validates b against the shape. Trailing bytes are accepted.
func (s Shape) Check(b []byte) error {
	if len(b) < s.MinLen {
		return &Error{Op: "decode " + s.Name, Want: s.MinLen, Got: len(b)}
	}
	return nil
}

// VendorData is the READ_VENDOR_DATA response.
type VendorData struct {
	VendorID  uint8
	ProductID uint8
	Firmware  uint8
}

// Genuine reports whether the vendor and product bytes identify a BENCHLAB.
func (v VendorData) Genuine() bool {
	return v.VendorID == VendorID && v.ProductID == ProductID
}

// PowerRail is one power measurement channel (mV, mA, mW).
type PowerRail struct {
	Voltage int16
	Current int32
	Power   int32
}

// Fan is one fan channel. Tach is in RPM.
type Fan struct {
	Enable uint8
	Duty   uint8
	Tach   uint16
}

// SensorFrame is one decoded READ_SENSORS structure, raw device units.
type SensorFrame struct {
	Vin   [VinCount]int16 // mV
	Vdd   uint16          // mV
	Vref  uint16          // mV
	Tchip int16           // centi-degrees C
	Ts    [TempProbeCount]int16
	Tamb  int16
	Hum   int16 // per-mille RH

	FanSwitchStatus uint8
	RGBSwitchStatus uint8
	RGBExtStatus    uint8
	FanExtDuty      uint8

	Power [PowerRailCount]PowerRail
	Fans  [FanCount]Fan
}

// DecodeUID renders the 12-byte hardware UID as upper-case hex.
func DecodeUID(b []byte) (string, error) {
	if err := ShapeUID.Check(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b[:UIDSize])), nil
}

// DecodeVendorData decodes the READ_VENDOR_DATA response.
func DecodeVendorData(b []byte) (VendorData, error) {
	if err := ShapeVendorData.Check(b); err != nil {
		return VendorData{}, err
	}
	return VendorData{VendorID: b[0], ProductID: b[1], Firmware: b[2]}, nil
}

// DecodeSensorFrame decodes the READ_SENSORS response.
// No IO. No side effects.
func DecodeSensorFrame(b []byte) (SensorFrame, error) {
	var f SensorFrame
	if err := ShapeSensors.Check(b); err != nil {
		return f, err
	}

	le := binary.LittleEndian

	for i := 0; i < VinCount; i++ {
		f.Vin[i] = int16(le.Uint16(b[offVin+2*i:]))
	}
	f.Vdd = le.Uint16(b[offVdd:])
	f.Vref = le.Uint16(b[offVref:])
	f.Tchip = int16(le.Uint16(b[offTchip:]))
	for i := 0; i < TempProbeCount; i++ {
		f.Ts[i] = int16(le.Uint16(b[offTs+2*i:]))
	}
	f.Tamb = int16(le.Uint16(b[offTamb:]))
	f.Hum = int16(le.Uint16(b[offHum:]))

	f.FanSwitchStatus = b[offFanSwitchStatus]
	f.RGBSwitchStatus = b[offRGBSwitchStatus]
	f.RGBExtStatus = b[offRGBExtStatus]
	f.FanExtDuty = b[offFanExtDuty]

	for i := 0; i < PowerRailCount; i++ {
		rec := b[offPower+i*powerRecordSize:]
		f.Power[i] = PowerRail{
			Voltage: int16(le.Uint16(rec[powerOffVoltage:])),
			Current: int32(le.Uint32(rec[powerOffCurrent:])),
			Power:   int32(le.Uint32(rec[powerOffPower:])),
		}
	}

	for i := 0; i < FanCount; i++ {
		rec := b[offFans+i*fanRecordSize:]
		f.Fans[i] = Fan{
			Enable: rec[fanOffEnable],
			Duty:   rec[fanOffDuty],
			Tach:   le.Uint16(rec[fanOffTach:]),
		}
	}

	return f, nil
}

// AppendSensorFrame appends the wire form of f to dst.
// Used by device simulators and fixtures; the host never sends this structure.
func AppendSensorFrame(dst []byte, f SensorFrame) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, SensorFrameSize)...)
	b := dst[start:]

	le := binary.LittleEndian

	for i := 0; i < VinCount; i++ {
		le.PutUint16(b[offVin+2*i:], uint16(f.Vin[i]))
	}
	le.PutUint16(b[offVdd:], f.Vdd)
	le.PutUint16(b[offVref:], f.Vref)
	le.PutUint16(b[offTchip:], uint16(f.Tchip))
	for i := 0; i < TempProbeCount; i++ {
		le.PutUint16(b[offTs+2*i:], uint16(f.Ts[i]))
	}
	le.PutUint16(b[offTamb:], uint16(f.Tamb))
	le.PutUint16(b[offHum:], uint16(f.Hum))

	b[offFanSwitchStatus] = f.FanSwitchStatus
	b[offRGBSwitchStatus] = f.RGBSwitchStatus
	b[offRGBExtStatus] = f.RGBExtStatus
	b[offFanExtDuty] = f.FanExtDuty

	for i := 0; i < PowerRailCount; i++ {
		rec := b[offPower+i*powerRecordSize:]
		le.PutUint16(rec[powerOffVoltage:], uint16(f.Power[i].Voltage))
		le.PutUint32(rec[powerOffCurrent:], uint32(f.Power[i].Current))
		le.PutUint32(rec[powerOffPower:], uint32(f.Power[i].Power))
	}

	for i := 0; i < FanCount; i++ {
		rec := b[offFans+i*fanRecordSize:]
		rec[fanOffEnable] = f.Fans[i].Enable
		rec[fanOffDuty] = f.Fans[i].Duty
		le.PutUint16(rec[fanOffTach:], f.Fans[i].Tach)
	}

	return dst
}
