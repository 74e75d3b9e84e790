// internal/status/health.go
package status

import "fmt"

// Health is the device-level state shared by the fleet registry,
// the query surface and the status export.
type Health uint16

const (
	// HealthUnknown is the state between discovery and the first poll.
	HealthUnknown Health = 0

	// HealthOK means the last poll produced a reading.
	HealthOK Health = 1

	// HealthError means recent polls failed; the poller is still trying.
	HealthError Health = 2

	// HealthStale means the link was re-established after an outage and no
	// reading has been taken on it yet; cached readings predate the outage.
	HealthStale Health = 3

	// HealthUnreachable means the poller gave up reconnecting.
	HealthUnreachable Health = 4

	// HealthRemoved means the device was deregistered.
	HealthRemoved Health = 5
)

var healthNames = map[Health]string{
	HealthUnknown:     "unknown",
	HealthOK:          "ok",
	HealthError:       "error",
	HealthStale:       "stale",
	HealthUnreachable: "unreachable",
	HealthRemoved:     "removed",
}

func (h Health) String() string {
	if s, ok := healthNames[h]; ok {
		return s
	}
	return fmt.Sprintf("health(%d)", uint16(h))
}

// Live reports whether a device in this state may still produce readings.
func (h Health) Live() bool {
	return h != HealthUnreachable && h != HealthRemoved
}

func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Health) UnmarshalText(b []byte) error {
	for k, v := range healthNames {
		if v == string(b) {
			*h = k
			return nil
		}
	}
	return fmt.Errorf("status: unknown health %q", string(b))
}
