// internal/fleet/scan.go
package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/link"
)

// Candidate is the outcome of probing one port.
type Candidate struct {
	Port     string
	Identity link.Identity
	Err      error
}

// Scan enumerates ports carrying the vendor USB signature and probes each
// one concurrently. Results are emitted as each probe completes; the channel
// is closed when every probe has finished or timed out.
//
// Ports currently held open by a registered device are skipped: probing
// them would interleave commands with that device's poller.
func (r *Registry) Scan(ctx context.Context) <-chan Candidate {
	out := make(chan Candidate)

	go func() {
		defer close(out)

		ports, err := r.opts.Enumerator.Ports()
		if err != nil {
			r.log.Warn("port enumeration failed", "error", err)
			select {
			case out <- Candidate{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		held := r.heldPorts()

		var wg sync.WaitGroup
		for _, p := range ports {
			if !r.matches(p) || held[p.Name] {
				continue
			}
			wg.Add(1)
			go func(port string) {
				defer wg.Done()
				c := r.probe(ctx, port)
				select {
				case out <- c:
				case <-ctx.Done():
				}
			}(p.Name)
		}
		wg.Wait()
	}()

	return out
}

// probe opens port with the short probe timeout, reads identity and closes.
// The whole probe is bounded independently of other probes.
func (r *Registry) probe(ctx context.Context, port string) Candidate {
	opts := r.opts.Link
	opts.ReadTimeout = r.opts.ProbeTimeout

	done := make(chan Candidate, 1)
	go func() {
		l, err := link.Open(port, opts)
		if err != nil {
			done <- Candidate{Port: port, Err: err}
			return
		}
		id, err := l.ReadIdentity()
		_ = l.Close()
		done <- Candidate{Port: port, Identity: id, Err: err}
	}()

	// open + two exchanges (each drains for one quiet interval first),
	// with slack for the open itself
	quiet := opts.Quiet
	if quiet <= 0 {
		quiet = link.DefaultQuiet
	}
	if quiet > opts.ReadTimeout {
		quiet = opts.ReadTimeout
	}
	limit := 3*r.opts.ProbeTimeout + 2*quiet
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case c := <-done:
		if c.Err != nil {
			r.log.Debug("probe failed", "port", port, "error", c.Err)
		}
		return c
	case <-timer.C:
		return Candidate{Port: port, Err: ErrProbeTimeout}
	case <-ctx.Done():
		return Candidate{Port: port, Err: ctx.Err()}
	}
}
