package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to upstream providers.
//
// Metrics:
//   - smolrouter_upstream_attempts_total: attempts by provider and outcome
//   - smolrouter_funnel_waits_total: google-genai calls that queued
type UpstreamMetrics struct {
	attempts    *prometheus.CounterVec
	funnelWaits prometheus.Counter
}

// NewUpstreamMetrics creates and registers upstream metrics with the provided registry.
func NewUpstreamMetrics(namespace string, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_attempts_total",
				Help:      "Upstream attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		funnelWaits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "funnel_waits_total",
				Help:      "google-genai calls that waited for a funnel slot",
			},
		),
	}

	registry.MustRegister(um.attempts, um.funnelWaits)
	return um
}

// RecordAttempt counts one attempt.
func (um *UpstreamMetrics) RecordAttempt(provider, outcome string) {
	um.attempts.WithLabelValues(provider, outcome).Inc()
}

// RecordFunnelWait counts one queued call.
func (um *UpstreamMetrics) RecordFunnelWait() {
	um.funnelWaits.Inc()
}
