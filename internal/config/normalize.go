// internal/config/normalize.go
package config

import (
	"strings"

	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// Defaults.
const (
	DefaultIntervalSeconds   = 1.0
	DefaultHistoryLength     = 10
	DefaultBaudRate          = 115200
	DefaultReadTimeoutMs     = 1000
	DefaultProbeTimeoutMs    = 300
	DefaultQuietMs           = 20
	DefaultFailureThreshold  = 3
	DefaultConnectAttempts   = 3
	DefaultReconnectAttempts = 5
	DefaultReconnectSpacing  = 2000
	DefaultUSBVendor         = "0483"
	DefaultUSBProduct        = "5740"
	DefaultSubscriberBuffer  = 16
	DefaultListen            = ":8000"
	DefaultShutdownTimeoutMs = 5000
	DefaultWriteTimeoutMs    = 2000
	DefaultTopicPrefix       = "benchlab"
	DefaultSweepSeconds      = 5
	DefaultMQTTConnectMs     = 5000
	DefaultExportTimeoutMs   = 1000
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// DEFAULTS
	// ------------------------------------------------------------

	setf(&cfg.Poll.IntervalSeconds, DefaultIntervalSeconds)
	seti(&cfg.Poll.HistoryLength, DefaultHistoryLength)

	seti(&cfg.Link.BaudRate, DefaultBaudRate)
	seti(&cfg.Link.ReadTimeoutMs, DefaultReadTimeoutMs)
	seti(&cfg.Link.ProbeTimeoutMs, DefaultProbeTimeoutMs)
	seti(&cfg.Link.FrameSize, protocol.SensorFrameSize)
	seti(&cfg.Link.QuietMs, DefaultQuietMs)

	seti(&cfg.Reconnect.FailureThreshold, DefaultFailureThreshold)
	seti(&cfg.Reconnect.ConnectAttempts, DefaultConnectAttempts)
	seti(&cfg.Reconnect.Attempts, DefaultReconnectAttempts)
	seti(&cfg.Reconnect.SpacingMs, DefaultReconnectSpacing)

	sets(&cfg.Discovery.USBVendor, DefaultUSBVendor)
	sets(&cfg.Discovery.USBProduct, DefaultUSBProduct)

	seti(&cfg.Gateway.SubscriberBuffer, DefaultSubscriberBuffer)

	sets(&cfg.HTTP.Listen, DefaultListen)
	seti(&cfg.HTTP.ShutdownTimeoutMs, DefaultShutdownTimeoutMs)
	seti(&cfg.HTTP.WriteTimeoutMs, DefaultWriteTimeoutMs)

	sets(&cfg.MQTT.TopicPrefix, DefaultTopicPrefix)
	cfg.MQTT.TopicPrefix = strings.TrimSuffix(cfg.MQTT.TopicPrefix, "/")
	seti(&cfg.MQTT.SweepSeconds, DefaultSweepSeconds)
	seti(&cfg.MQTT.ConnectTimeoutMs, DefaultMQTTConnectMs)

	sets(&cfg.Logging.Level, DefaultLogLevel)
	sets(&cfg.Logging.Format, DefaultLogFormat)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)

	// ------------------------------------------------------------
	// MODBUS EXPORT
	// ------------------------------------------------------------

	for ti := range cfg.Export.Targets {
		t := &cfg.Export.Targets[ti]
		seti(&t.TimeoutMs, DefaultExportTimeoutMs)

		for di := range t.Devices {
			d := &t.Devices[di]

			// UIDs are reported upper-case by the codec
			d.UID = strings.ToUpper(d.UID)

			// ASCII already validated; truncate to the status block name size.
			// An empty name falls back to the UID tail.
			if d.DeviceName == "" {
				d.DeviceName = d.UID
				if len(d.DeviceName) > status.DeviceNameMaxChars {
					d.DeviceName = d.DeviceName[len(d.DeviceName)-status.DeviceNameMaxChars:]
				}
			}
			if len(d.DeviceName) > status.DeviceNameMaxChars {
				d.DeviceName = d.DeviceName[:status.DeviceNameMaxChars]
			}

			for si := range d.Sensors {
				if d.Sensors[si].Scale == 0 {
					d.Sensors[si].Scale = 1
				}
			}
		}
	}
}

func seti(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setf(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func sets(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
