// internal/fleet/errors.go
package fleet

import "errors"

var (
	// ErrNotFound is returned for a UID the registry has never seen.
	ErrNotFound = errors.New("fleet: device not found")

	// ErrRemoved is returned when connecting a deregistered device.
	ErrRemoved = errors.New("fleet: device removed")

	// ErrIdentityMismatch is returned when a port now answers with another UID.
	ErrIdentityMismatch = errors.New("fleet: identity mismatch")

	// ErrProbeTimeout is reported for a probe that did not finish in time.
	ErrProbeTimeout = errors.New("fleet: probe timed out")
)
