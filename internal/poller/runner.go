// internal/poller/runner.go
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/tamzrod/benchlab-telemetry/internal/link"
	"github.com/tamzrod/benchlab-telemetry/internal/metrics"
	"github.com/tamzrod/benchlab-telemetry/internal/protocol"
	"github.com/tamzrod/benchlab-telemetry/internal/status"
)

// Run drives the state machine until ctx is cancelled or reconnecting is
// exhausted. One goroutine per device. Returns once the poller is Stopped
// and its link released.
//
// Ticks follow an absolute schedule (start + k*interval) taken from the
// injected clock, so time spent polling never shifts later ticks. A tick
// whose time has already passed when the previous poll finishes is skipped.
func (p *Poller) Run(ctx context.Context) {
	defer p.stop()

	p.setState(StateConnecting)
	if !p.connect(ctx, p.cfg.ConnectAttempts, false) {
		p.giveUp(ctx)
		return
	}

	p.setState(StatePolling)
	start := p.clock.Now()
	k := int64(0)

	for {
		// ---- wait for tick k ----
		due := start.Add(time.Duration(k) * p.cfg.Interval)
		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(due.Sub(p.clock.Now())):
		}
		if ctx.Err() != nil {
			return
		}

		res := p.PollOnce(p.src)
		if ctx.Err() != nil {
			// stopped while the read was in flight; the cache is no longer ours
			p.log.Debug("stop requested during poll, result discarded")
			return
		}
		p.handle(res)

		// ---- reconnect on sustained failure ----
		if p.failures >= p.cfg.FailureThreshold {
			p.setState(StateReconnecting)
			p.log.Warn("consecutive failures reached threshold, reconnecting", "failures", p.failures)

			p.linker.Release(p.cfg.UID)
			p.src = nil

			if !p.connect(ctx, p.cfg.ReconnectAttempts, true) {
				p.giveUp(ctx)
				return
			}
			p.failures = 0
			// connected again, but the cache only holds pre-outage readings
			p.setHealth(status.HealthStale)
			p.setState(StatePolling)

			start = p.clock.Now()
			k = 0
			continue
		}

		k = p.nextTick(start, k)
	}
}

// nextTick returns the index of the first tick after k that is not already
// in the past. Missed ticks are dropped, never queued.
func (p *Poller) nextTick(start time.Time, k int64) int64 {
	next := k + 1
	elapsed := p.clock.Now().Sub(start)
	if behind := int64(elapsed / p.cfg.Interval); behind >= next {
		next = behind
		if start.Add(time.Duration(next) * p.cfg.Interval).Before(p.clock.Now()) {
			next++
		}
	}
	return next
}

// handle applies one poll result: publish on success, count on failure.
func (p *Poller) handle(res PollResult) {
	elapsed := p.clock.Now().Sub(res.At).Seconds()

	p.mu.Lock()
	p.stats.Polls++
	p.mu.Unlock()

	if res.Err != nil {
		p.failures++

		p.mu.Lock()
		p.stats.Failures++
		p.stats.ConsecutiveFailures = p.failures
		p.mu.Unlock()

		p.m.Poll(p.cfg.UID, metrics.ResultError, elapsed)
		p.log.Warn("poll failed",
			"error", res.Err,
			"kind", errorKind(res.Err),
			"failures", p.failures,
		)
		p.reportError(res.Err)
		p.setHealth(status.HealthError)
		return
	}

	for _, te := range res.Omitted {
		p.m.TranslationError(p.cfg.UID, te.Field)
		p.log.Debug("sensor field omitted", "field", te.Field, "raw", te.Raw, "reason", te.Reason)
	}

	p.sink.Publish(res.Reading)
	p.failures = 0

	p.mu.Lock()
	p.stats.Published++
	p.stats.ConsecutiveFailures = 0
	p.mu.Unlock()

	p.m.Poll(p.cfg.UID, metrics.ResultOK, elapsed)
	p.m.Published(p.cfg.UID)
	p.setHealth(status.HealthOK)
}

// connect acquires a link in up to attempts tries. When spaced, it waits
// ReconnectSpacing before every attempt; otherwise only between attempts.
func (p *Poller) connect(ctx context.Context, attempts int, spaced bool) bool {
	for i := 1; i <= attempts; i++ {
		if spaced || i > 1 {
			select {
			case <-ctx.Done():
				return false
			case <-p.clock.After(p.cfg.ReconnectSpacing):
			}
		}
		if ctx.Err() != nil {
			return false
		}

		src, err := p.linker.Connect(ctx, p.cfg.UID)
		if err == nil {
			p.src = src
			if spaced {
				p.mu.Lock()
				p.stats.Reconnects++
				p.mu.Unlock()
				p.m.Reconnect(p.cfg.UID, metrics.ResultOK)
				p.log.Info("reconnected", "attempt", i)
			}
			return true
		}

		if spaced {
			p.m.Reconnect(p.cfg.UID, metrics.ResultError)
		}
		p.reportError(err)
		p.log.Warn("connect failed", "attempt", i, "of", attempts, "error", err)
	}
	return false
}

// giveUp marks the device unreachable unless the stop was requested.
func (p *Poller) giveUp(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	p.log.Error("device unreachable, poller stopping")
	p.setHealth(status.HealthUnreachable)
}

// stop releases the link and enters the terminal state.
func (p *Poller) stop() {
	if p.src != nil {
		p.linker.Release(p.cfg.UID)
		p.src = nil
	}
	p.setState(StateStopped)
}

// errorKind names the failure class for logs.
func errorKind(err error) string {
	var re *link.ReadError
	if errors.As(err, &re) {
		return re.Kind.String()
	}
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return "protocol"
	}
	return "other"
}
