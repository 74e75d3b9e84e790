// internal/status/snapshot.go
package status

// Snapshot represents exactly what the status exporter is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         Health
	LastErrorCode  uint16
	SecondsInError uint16
	Firmware       uint16
}
