// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "benchlab"

// Metrics holds the collectors shared by pollers, the gateway and adapters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	polls             *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	pollerState       *prometheus.GaugeVec
	reconnects        *prometheus.CounterVec
	translationErrors *prometheus.CounterVec
	subscribers       *prometheus.GaugeVec
	subscriberDrops   *prometheus.CounterVec
	published         *prometheus.CounterVec
}

// Poll results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll ticks per device by result.",
		}, []string{"uid", "result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent in one READ_SENSORS exchange.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		pollerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_state",
			Help:      "Current poller state per device (numeric state code).",
		}, []string{"uid"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts per device by result.",
		}, []string{"uid", "result"}),
		translationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_errors_total",
			Help:      "Sensor fields omitted because their raw value was implausible.",
		}, []string{"uid", "field"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Live subscriptions per device.",
		}, []string{"uid"}),
		subscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Subscriptions disconnected for not draining their buffer.",
		}, []string{"uid"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_published_total",
			Help:      "Readings pushed into the telemetry cache per device.",
		}, []string{"uid"}),
	}

	reg.MustRegister(
		m.polls,
		m.pollDuration,
		m.pollerState,
		m.reconnects,
		m.translationErrors,
		m.subscribers,
		m.subscriberDrops,
		m.published,
	)
	return m
}

func (m *Metrics) Poll(uid, result string, seconds float64) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(uid, result).Inc()
	m.pollDuration.Observe(seconds)
}

func (m *Metrics) PollerState(uid string, code int) {
	if m == nil {
		return
	}
	m.pollerState.WithLabelValues(uid).Set(float64(code))
}

func (m *Metrics) Reconnect(uid, result string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(uid, result).Inc()
}

func (m *Metrics) TranslationError(uid, field string) {
	if m == nil {
		return
	}
	m.translationErrors.WithLabelValues(uid, field).Inc()
}

func (m *Metrics) Published(uid string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(uid).Inc()
}

func (m *Metrics) SubscriberAdded(uid string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(uid).Inc()
}

func (m *Metrics) SubscriberRemoved(uid string, dropped bool) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(uid).Dec()
	if dropped {
		m.subscriberDrops.WithLabelValues(uid).Inc()
	}
}
