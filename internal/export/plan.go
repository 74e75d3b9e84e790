// internal/export/plan.go
package export

import (
	"errors"
	"time"

	cfg "github.com/tamzrod/benchlab-telemetry/internal/config"
)

// StatusPlan places one device status block.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	Slot       uint16 // block starts at Slot * status.SlotsPerDevice
	DeviceName string
}

// SensorPlan mirrors one sensor into one holding register.
type SensorPlan struct {
	Name    string
	Address uint16
	Scale   float64
}

// Plan is the fully-built export plan for one device on one endpoint.
type Plan struct {
	UID      string
	Endpoint string
	UnitID   uint8
	Status   *StatusPlan // nil when the status block is disabled
	Sensors  []SensorPlan
}

// BuildPlans converts the export config into per-device plans.
// Assumes config has already passed Validate and Normalize.
func BuildPlans(ex cfg.ExportConfig) ([]Plan, error) {
	var plans []Plan

	for _, t := range ex.Targets {
		for _, d := range t.Devices {
			if d.UID == "" {
				return nil, errors.New("export: device uid required")
			}

			p := Plan{
				UID:      d.UID,
				Endpoint: t.Endpoint,
				UnitID:   t.UnitID,
			}
			if d.StatusSlot != nil {
				p.Status = &StatusPlan{
					Endpoint:   t.Endpoint,
					UnitID:     t.UnitID,
					Slot:       *d.StatusSlot,
					DeviceName: d.DeviceName,
				}
			}
			for _, s := range d.Sensors {
				p.Sensors = append(p.Sensors, SensorPlan{
					Name:    s.Name,
					Address: s.Address,
					Scale:   s.Scale,
				})
			}
			plans = append(plans, p)
		}
	}

	return plans, nil
}

// BuildEndpointClients creates one TCP client per unique endpoint.
func BuildEndpointClients(ex cfg.ExportConfig) (map[string]*EndpointClient, func() error, error) {
	clients := make(map[string]*EndpointClient)
	var closers []func() error

	for _, t := range ex.Targets {
		if _, ok := clients[t.Endpoint]; ok {
			continue
		}

		c, err := NewEndpointClient(ClientConfig{
			Endpoint: t.Endpoint,
			Timeout:  time.Duration(t.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		clients[t.Endpoint] = c
		closers = append(closers, c.Close)
	}

	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	return clients, closeAll, nil
}
