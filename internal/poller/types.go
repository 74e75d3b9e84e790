// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/sensor"
)

// State is the poller lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StatePolling
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	UID string
	At  time.Time

	// Reading is valid only when Err is nil.
	Reading sensor.Reading

	// Omitted lists fields dropped from Reading as implausible.
	Omitted []*sensor.TranslationError

	Err error // non-nil means the poll cycle failed and nothing is published
}

// Stats are cumulative counters for one poller.
type Stats struct {
	Polls               uint64
	Failures            uint64
	Published           uint64
	Reconnects          uint64
	ConsecutiveFailures int
}
