// internal/config/validate.go
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values are legal everywhere a default exists; Normalize fills them.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// POLL / LINK / RECONNECT
	// ------------------------------------------------------------

	if cfg.Poll.IntervalSeconds < 0 {
		return fmt.Errorf("poll.interval_seconds must be > 0, got %v", cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.IntervalSeconds > 0 && cfg.Poll.IntervalSeconds < 0.05 {
		return fmt.Errorf("poll.interval_seconds must be >= 0.05, got %v", cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.HistoryLength < 0 {
		return fmt.Errorf("poll.history_length must be > 0, got %d", cfg.Poll.HistoryLength)
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"link.baud_rate", cfg.Link.BaudRate},
		{"link.read_timeout_ms", cfg.Link.ReadTimeoutMs},
		{"link.probe_timeout_ms", cfg.Link.ProbeTimeoutMs},
		{"link.quiet_ms", cfg.Link.QuietMs},
		{"reconnect.failure_threshold", cfg.Reconnect.FailureThreshold},
		{"reconnect.connect_attempts", cfg.Reconnect.ConnectAttempts},
		{"reconnect.attempts", cfg.Reconnect.Attempts},
		{"reconnect.spacing_ms", cfg.Reconnect.SpacingMs},
		{"discovery.rescan_seconds", cfg.Discovery.RescanSeconds},
		{"discovery.simulate", cfg.Discovery.Simulate},
		{"gateway.subscriber_buffer", cfg.Gateway.SubscriberBuffer},
		{"http.shutdown_timeout_ms", cfg.HTTP.ShutdownTimeoutMs},
		{"http.write_timeout_ms", cfg.HTTP.WriteTimeoutMs},
		{"mqtt.sweep_seconds", cfg.MQTT.SweepSeconds},
		{"mqtt.connect_timeout_ms", cfg.MQTT.ConnectTimeoutMs},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", f.name, f.v)
		}
	}

	if cfg.Link.FrameSize != 0 && cfg.Link.FrameSize < protocol.SensorFrameSize {
		return fmt.Errorf("link.frame_size must be >= %d, got %d", protocol.SensorFrameSize, cfg.Link.FrameSize)
	}

	// ------------------------------------------------------------
	// DISCOVERY
	// ------------------------------------------------------------

	for name, v := range map[string]string{
		"discovery.usb_vendor":  cfg.Discovery.USBVendor,
		"discovery.usb_product": cfg.Discovery.USBProduct,
	} {
		if v == "" {
			continue
		}
		if b, err := hex.DecodeString(v); err != nil || len(b) != 2 {
			return fmt.Errorf("%s must be 4 hex digits, got %q", name, v)
		}
	}

	for i, p := range cfg.Discovery.Ports {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("discovery.ports[%d] is empty", i)
		}
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if strings.ContainsAny(cfg.MQTT.TopicPrefix, "+#") {
		return fmt.Errorf("mqtt.topic_prefix must not contain wildcards")
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", cfg.Logging.Format)
	}

	return validateExport(cfg.Export)
}

// validateExport checks the Modbus export plan: device names, status slot
// ownership and register overlap between status blocks and mirrored sensors.
func validateExport(ex ExportConfig) error {
	type span struct {
		start uint32
		end   uint32
		owner string
	}

	// key = endpoint | unit_id
	spans := make(map[string][]span)

	claim := func(t ExportTarget, start, end uint32, owner string) error {
		if end > 0xFFFF {
			return fmt.Errorf(
				"export range out of bounds: endpoint=%s unit_id=%d range=%d-%d (%s)",
				t.Endpoint, t.UnitID, start, end, owner,
			)
		}

		key := fmt.Sprintf("%s|%d", t.Endpoint, t.UnitID)
		for _, s := range spans[key] {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"export overlap: endpoint=%s unit_id=%d range=%d-%d (%s) overlaps %d-%d (%s)",
					t.Endpoint, t.UnitID, start, end, owner, s.start, s.end, s.owner,
				)
			}
		}
		spans[key] = append(spans[key], span{start: start, end: end, owner: owner})
		return nil
	}

	for ti, t := range ex.Targets {
		if t.Endpoint == "" {
			return fmt.Errorf("modbus_export.targets[%d]: endpoint required", ti)
		}
		if t.TimeoutMs < 0 {
			return fmt.Errorf("modbus_export.targets[%d]: timeout_ms must not be negative", ti)
		}

		for _, d := range t.Devices {
			if d.UID == "" {
				return fmt.Errorf("modbus_export.targets[%d]: device uid required", ti)
			}
			if b, err := hex.DecodeString(d.UID); err != nil || len(b) != protocol.UIDSize {
				return fmt.Errorf("device %q: uid must be %d hex bytes", d.UID, protocol.UIDSize)
			}

			// device_name sanity (ASCII only)
			for i := 0; i < len(d.DeviceName); i++ {
				if d.DeviceName[i] > 0x7F {
					return fmt.Errorf("device %q: device_name must contain ASCII characters only", d.UID)
				}
			}

			if d.StatusSlot == nil && len(d.Sensors) == 0 {
				return fmt.Errorf("device %q: nothing to export (no status_slot, no sensors)", d.UID)
			}

			if d.StatusSlot != nil {
				start := uint32(*d.StatusSlot) * status.SlotsPerDevice
				end := start + status.SlotsPerDevice - 1
				if err := claim(t, start, end, "status "+d.UID); err != nil {
					return err
				}
			}

			for _, s := range d.Sensors {
				if s.Name == "" {
					return fmt.Errorf("device %q: sensor name required", d.UID)
				}
				if s.Scale < 0 {
					return fmt.Errorf("device %q: sensor %q: scale must not be negative", d.UID, s.Name)
				}
				a := uint32(s.Address)
				if err := claim(t, a, a, d.UID+"/"+s.Name); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
