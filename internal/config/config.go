// internal/config/config.go
package config

import "time"

type Config struct {
	Poll      PollConfig      `yaml:"poll"`
	Link      LinkConfig      `yaml:"link"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	HTTP      HTTPConfig      `yaml:"http"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Export    ExportConfig    `yaml:"modbus_export"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalSeconds float64 `yaml:"interval_seconds"`
	HistoryLength   int     `yaml:"history_length"`
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds * float64(time.Second))
}

// ---- LINK ----

type LinkConfig struct {
	BaudRate       int `yaml:"baud_rate"`
	ReadTimeoutMs  int `yaml:"read_timeout_ms"`
	ProbeTimeoutMs int `yaml:"probe_timeout_ms"`
	FrameSize      int `yaml:"frame_size"` // bytes read per READ_SENSORS; >= 216
	QuietMs        int `yaml:"quiet_ms"`   // silence that counts as drained input
}

func (l LinkConfig) ReadTimeout() time.Duration {
	return time.Duration(l.ReadTimeoutMs) * time.Millisecond
}

func (l LinkConfig) Quiet() time.Duration {
	return time.Duration(l.QuietMs) * time.Millisecond
}

func (l LinkConfig) ProbeTimeout() time.Duration {
	return time.Duration(l.ProbeTimeoutMs) * time.Millisecond
}

// ---- RECONNECT ----

type ReconnectConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	ConnectAttempts  int `yaml:"connect_attempts"`
	Attempts         int `yaml:"attempts"`
	SpacingMs        int `yaml:"spacing_ms"`
}

func (r ReconnectConfig) Spacing() time.Duration {
	return time.Duration(r.SpacingMs) * time.Millisecond
}

// ---- DISCOVERY ----

type DiscoveryConfig struct {
	USBVendor     string   `yaml:"usb_vendor"`  // hex, e.g. "0483"
	USBProduct    string   `yaml:"usb_product"` // hex, e.g. "5740"
	DisableUSB    bool     `yaml:"disable_usb"`
	Ports         []string `yaml:"ports"` // always probed, regardless of USB signature
	RescanSeconds int      `yaml:"rescan_seconds"`
	Simulate      int      `yaml:"simulate"` // number of simulated devices to attach
}

// ---- GATEWAY ----

type GatewayConfig struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// ---- HTTP ----

type HTTPConfig struct {
	Listen            string `yaml:"listen"`
	ShutdownTimeoutMs int    `yaml:"shutdown_timeout_ms"`
	WriteTimeoutMs    int    `yaml:"write_timeout_ms"` // per stream message
}

// ---- MQTT ----

type MQTTConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	TopicPrefix      string `yaml:"topic_prefix"`
	QoS              byte   `yaml:"qos"`
	SweepSeconds     int    `yaml:"sweep_seconds"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
}

// ---- MODBUS EXPORT ----

type ExportConfig struct {
	Targets []ExportTarget `yaml:"targets"`
}

type ExportTarget struct {
	Endpoint  string         `yaml:"endpoint"`
	UnitID    uint8          `yaml:"unit_id"`
	TimeoutMs int            `yaml:"timeout_ms"`
	Devices   []ExportDevice `yaml:"devices"`
}

type ExportDevice struct {
	UID string `yaml:"uid"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`

	Sensors []ExportSensor `yaml:"sensors"`
}

// ExportSensor mirrors one sensor into a holding register as value*scale.
type ExportSensor struct {
	Name    string  `yaml:"name"`
	Address uint16  `yaml:"address"`
	Scale   float64 `yaml:"scale"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
