// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
)

const devUID = "0A0B0C0D0E0F101112131415"

func slot(v uint16) *uint16 { return &v }

// helper to build an export target quickly
func target(endpoint string, devices ...ExportDevice) ExportTarget {
	return ExportTarget{Endpoint: endpoint, UnitID: 1, Devices: devices}
}

func device(uid string, statusSlot *uint16, sensors ...ExportSensor) ExportDevice {
	return ExportDevice{UID: uid, StatusSlot: statusSlot, Sensors: sensors}
}

// ---- tests ----

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	if err := Validate(&Config{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsNegatives(t *testing.T) {
	cfg := &Config{}
	cfg.Reconnect.Attempts = -1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for negative reconnect.attempts")
	}

	cfg = &Config{}
	cfg.Poll.IntervalSeconds = -0.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestValidate_FrameSizeFloor(t *testing.T) {
	cfg := &Config{}
	cfg.Link.FrameSize = 100
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for short frame size")
	}

	cfg.Link.FrameSize = 256
	if err := Validate(cfg); err != nil {
		t.Fatalf("larger frame size should be accepted: %v", err)
	}
}

func TestValidate_USBSignatureHex(t *testing.T) {
	cfg := &Config{}
	cfg.Discovery.USBVendor = "04G3"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for non-hex vendor id")
	}
}

func TestValidate_MQTTRequiresBroker(t *testing.T) {
	cfg := &Config{}
	cfg.MQTT.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing broker")
	}
}

func TestValidate_ExportNoOverlapDifferentEndpoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{Targets: []ExportTarget{
		target("ep1", device(devUID, slot(0))),
		target("ep2", device(devUID, slot(0))),
	}}}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ExportStatusSlotCollision(t *testing.T) {
	other := strings.Repeat("1", 24)
	cfg := &Config{Export: ExportConfig{Targets: []ExportTarget{
		target("ep1", device(devUID, slot(2)), device(other, slot(2))),
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected status slot collision, got nil")
	}
}

func TestValidate_ExportSensorInsideStatusBlock(t *testing.T) {
	// slot 1 occupies registers 20-39
	cfg := &Config{Export: ExportConfig{Targets: []ExportTarget{
		target("ep1", device(devUID, slot(1), ExportSensor{Name: "CPU_Power", Address: 25})),
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected overlap error, got nil")
	}
}

func TestValidate_ExportTouchingRangesAllowed(t *testing.T) {
	cfg := &Config{Export: ExportConfig{Targets: []ExportTarget{
		target("ep1", device(devUID, slot(0), ExportSensor{Name: "CPU_Power", Address: 20})),
	}}}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ExportDeviceNameASCII(t *testing.T) {
	d := device(devUID, slot(0))
	d.DeviceName = "bänk"
	cfg := &Config{Export: ExportConfig{Targets: []ExportTarget{target("ep1", d)}}}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected ASCII error, got nil")
	}
}

func TestValidate_ExportBadUID(t *testing.T) {
	cfg := &Config{Export: ExportConfig{Targets: []ExportTarget{
		target("ep1", device("XYZ", slot(0))),
	}}}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected uid error, got nil")
	}
}

func TestValidate_NegativesReportedInFieldOrder(t *testing.T) {
	cfg := &Config{}
	cfg.Link.BaudRate = -1
	cfg.Reconnect.Attempts = -1
	cfg.MQTT.SweepSeconds = -1

	for i := 0; i < 20; i++ {
		err := Validate(cfg)
		if err == nil {
			t.Fatalf("expected error")
		}
		if !strings.HasPrefix(err.Error(), "link.baud_rate") {
			t.Fatalf("run %d: expected link.baud_rate first, got %v", i, err)
		}
	}
}
