// internal/protocol/codec_test.go
package protocol

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncode_SingleByte(t *testing.T) {
	b, err := Encode(CmdReadSensors)
	if err != nil {
		t.Fatalf("Encode err=%v", err)
	}
	if len(b) != 1 || b[0] != 1 {
		t.Fatalf("expected [1], got %v", b)
	}

	b, err = Encode(CmdReadVendorData)
	if err != nil || b[0] != 14 {
		t.Fatalf("expected [14], got %v err=%v", b, err)
	}
}

func TestEncode_UnknownCommand(t *testing.T) {
	_, err := Encode(Command(200))
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *protocol.Error, got %v", err)
	}
}

func TestDecodeUID_UpperHex(t *testing.T) {
	raw := []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x70, 0x81, 0x92, 0xa3, 0xb4}
	uid, err := DecodeUID(raw)
	if err != nil {
		t.Fatalf("DecodeUID err=%v", err)
	}
	if uid != "001A2B3C4D5E6F708192A3B4" {
		t.Fatalf("unexpected uid %q", uid)
	}
}

func TestDecodeUID_Short(t *testing.T) {
	_, err := DecodeUID(make([]byte, 11))
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *protocol.Error, got %v", err)
	}
	if pe.Want != UIDSize || pe.Got != 11 {
		t.Fatalf("unexpected error detail: %+v", pe)
	}
}

func TestDecodeVendorData(t *testing.T) {
	v, err := DecodeVendorData([]byte{0xEE, 0x10, 0x03})
	if err != nil {
		t.Fatalf("DecodeVendorData err=%v", err)
	}
	if !v.Genuine() || v.Firmware != 3 {
		t.Fatalf("unexpected vendor data %+v", v)
	}

	v, _ = DecodeVendorData([]byte{0x01, 0x10, 0x03})
	if v.Genuine() {
		t.Fatalf("foreign vendor reported genuine")
	}
}

func TestDecodeSensorFrame_FieldOffsets(t *testing.T) {
	b := make([]byte, SensorFrameSize)
	le := binary.LittleEndian

	le.PutUint16(b[0:], 12010)              // Vin[0]
	le.PutUint16(b[24:], 3300)              // Vin[12]
	le.PutUint16(b[26:], 3310)              // Vdd
	le.PutUint16(b[30:], 4520)              // Tchip
	le.PutUint16(b[38:], uint16(0xFF38))    // Ts[3] = -200
	le.PutUint16(b[42:], 455)               // Hum
	b[47] = 60                              // FanExtDuty
	le.PutUint16(b[48:], 12100)             // Power[0].Voltage
	le.PutUint32(b[52:], 8000)              // Power[0].Current
	le.PutUint32(b[56:], 96800)             // Power[0].Power
	le.PutUint32(b[48+10*12+8:], 450000)    // Power[10].Power
	b[180] = 1                              // Fans[0].Enable
	b[181] = 40                             // Fans[0].Duty
	le.PutUint16(b[182:], 1200)             // Fans[0].Tach
	le.PutUint16(b[180+8*4+2:], 900)        // Fans[8].Tach

	f, err := DecodeSensorFrame(b)
	if err != nil {
		t.Fatalf("DecodeSensorFrame err=%v", err)
	}

	if f.Vin[0] != 12010 || f.Vin[12] != 3300 {
		t.Fatalf("vin mismatch: %v", f.Vin)
	}
	if f.Vdd != 3310 {
		t.Fatalf("vdd mismatch: %d", f.Vdd)
	}
	if f.Tchip != 4520 {
		t.Fatalf("tchip mismatch: %d", f.Tchip)
	}
	if f.Ts[3] != -200 {
		t.Fatalf("ts[3] mismatch: %d", f.Ts[3])
	}
	if f.Hum != 455 || f.FanExtDuty != 60 {
		t.Fatalf("hum/extduty mismatch: %d %d", f.Hum, f.FanExtDuty)
	}
	if f.Power[0] != (PowerRail{Voltage: 12100, Current: 8000, Power: 96800}) {
		t.Fatalf("power[0] mismatch: %+v", f.Power[0])
	}
	if f.Power[10].Power != 450000 {
		t.Fatalf("power[10] mismatch: %+v", f.Power[10])
	}
	if f.Fans[0] != (Fan{Enable: 1, Duty: 40, Tach: 1200}) {
		t.Fatalf("fan[0] mismatch: %+v", f.Fans[0])
	}
	if f.Fans[8].Tach != 900 {
		t.Fatalf("fan[8] mismatch: %+v", f.Fans[8])
	}
}

func TestDecodeSensorFrame_TrailingBytesIgnored(t *testing.T) {
	var want SensorFrame
	want.Vin[5] = 5000
	want.Fans[2].Tach = 777

	b := AppendSensorFrame(nil, want)
	b = append(b, 0xAA, 0xBB, 0xCC, 0xDD)

	got, err := DecodeSensorFrame(b)
	if err != nil {
		t.Fatalf("DecodeSensorFrame err=%v", err)
	}
	if got != want {
		t.Fatalf("frame mismatch with trailing bytes")
	}
}

func TestDecodeSensorFrame_Short(t *testing.T) {
	_, err := DecodeSensorFrame(make([]byte, SensorFrameSize-1))
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *protocol.Error, got %v", err)
	}
}

func TestResponseShape(t *testing.T) {
	s, ok := ResponseShape(CmdReadSensors)
	if !ok || s.MinLen != SensorFrameSize {
		t.Fatalf("unexpected sensors shape %+v ok=%v", s, ok)
	}
	if _, ok := ResponseShape(CmdAction); ok {
		t.Fatalf("ACTION has no response shape")
	}
}
