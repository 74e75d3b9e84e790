// internal/config/env.go
package config

import (
	"fmt"
	"net"
	"strconv"
)

// ApplyEnv overlays the environment variables understood by the original
// BENCHLAB telemetry tools. It runs before Validate so overridden values
// are validated like file values. getenv is usually os.Getenv.
//
//	POLL_INTERVAL   seconds between polls (float)
//	HISTORY_LENGTH  readings kept per device
//	API_HOST        HTTP listen host
//	API_PORT        HTTP listen port
//	LOG_LEVEL       debug, info, warn, error
//	MQTT_BROKER     enables the MQTT bridge when set
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("POLL_INTERVAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		cfg.Poll.IntervalSeconds = f
	}

	if v := getenv("HISTORY_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HISTORY_LENGTH: %w", err)
		}
		cfg.Poll.HistoryLength = n
	}

	host, port := getenv("API_HOST"), getenv("API_PORT")
	if host != "" || port != "" {
		h, p := "", DefaultListen[1:]
		if cfg.HTTP.Listen != "" {
			if eh, ep, err := net.SplitHostPort(cfg.HTTP.Listen); err == nil {
				h, p = eh, ep
			}
		}
		if host != "" {
			h = host
		}
		if port != "" {
			if _, err := strconv.ParseUint(port, 10, 16); err != nil {
				return fmt.Errorf("API_PORT: %w", err)
			}
			p = port
		}
		cfg.HTTP.Listen = net.JoinHostPort(h, p)
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = v
	}

	return nil
}
