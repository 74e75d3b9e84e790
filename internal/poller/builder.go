// internal/poller/builder.go
package poller

import (
	cfg "github.com/tamzrod/benchlab-telemetry/internal/config"
)

// Build constructs the Poller for one registered device from the
// normalized runtime config. The link itself is acquired lazily by Run
// through linker; nothing is opened here.
func Build(uid string, c *cfg.Config, linker Linker, sink Sink, deps Deps) (*Poller, error) {
	return New(
		Config{
			UID:               uid,
			Interval:          c.Poll.Interval(),
			FailureThreshold:  c.Reconnect.FailureThreshold,
			ConnectAttempts:   c.Reconnect.ConnectAttempts,
			ReconnectAttempts: c.Reconnect.Attempts,
			ReconnectSpacing:  c.Reconnect.Spacing(),
		},
		linker,
		sink,
		deps,
	)
}
