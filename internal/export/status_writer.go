// internal/export/status_writer.go
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter writes one 20-register status block.
type deviceStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
}

// NewDeviceStatusWriter builds a status writer if the plan enables one.
func NewDeviceStatusWriter(plan Plan, cli endpointClient) (*deviceStatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}

	return &deviceStatusWriter{
		plan:     plan.Status,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Health: status.HealthUnknown},
	}, true
}

// WriteStatus delivers a device status snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	baseAddr := sw.baseAddr()
	unitID := sw.plan.UnitID

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		regs := status.Encode(s, sw.plan.DeviceName)

		if err := sw.cli.WriteRegisters(unitID, baseAddr, regs); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string

	write := func(slot int, name string, cur *uint16, next uint16) {
		if *cur == next {
			return
		}
		if err := sw.cli.WriteRegisters(unitID, baseAddr+uint16(slot), []uint16{next}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, name, err))
			return
		}
		*cur = next
	}

	health := uint16(sw.last.Health)
	write(status.SlotHealthCode, "health", &health, uint16(s.Health))
	sw.last.Health = status.Health(health)

	write(status.SlotLastErrorCode, "last_error", &sw.last.LastErrorCode, s.LastErrorCode)
	write(status.SlotSecondsInError, "seconds", &sw.last.SecondsInError, s.SecondsInError)
	write(status.SlotFirmware, "firmware", &sw.last.Firmware, s.Firmware)

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *deviceStatusWriter) baseAddr() uint16 {
	// Each device owns a fixed SlotsPerDevice block.
	return sw.plan.Slot * status.SlotsPerDevice
}
