package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initLimitMetrics initializes usage limit metrics.
func (m *Manager) initLimitMetrics(cfg Config) {
	m.limitViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_violations_total",
			Help:      "Total number of requests rejected by usage limits",
		},
		[]string{"metric", "period"},
	)

	m.rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-agent rate limiter",
		},
	)

	m.registry.MustRegister(m.limitViolations)
	m.registry.MustRegister(m.rateLimited)
}

// RecordLimitViolation records a rejected request.
func (m *Manager) RecordLimitViolation(metric, period string) {
	if !m.enabled {
		return
	}
	m.limitViolations.WithLabelValues(metric, period).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Manager) RecordRateLimited() {
	if !m.enabled {
		return
	}
	m.rateLimited.Inc()
}
