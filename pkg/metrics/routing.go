package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initRoutingMetrics initializes tier routing metrics.
func (m *Manager) initRoutingMetrics(cfg Config) {
	m.routingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions by tier and reason",
		},
		[]string{"tier", "reason"},
	)

	m.routingConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_confidence",
			Help:      "Confidence of routing decisions",
			Buckets:   []float64{0.5, 0.55, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"tier"},
	)

	m.scoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent scoring a request",
			Buckets:   cfg.ScoringDurationBuckets,
		},
	)

	m.momentumSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "momentum_sessions",
			Help:      "Number of sessions tracked for momentum",
		},
	)

	m.registry.MustRegister(m.routingDecisions)
	m.registry.MustRegister(m.routingConfidence)
	m.registry.MustRegister(m.scoringDuration)
	m.registry.MustRegister(m.momentumSessions)
}

// RecordRoutingDecision records a resolved tier with its reason and confidence.
func (m *Manager) RecordRoutingDecision(tier, reason string, confidence float64) {
	if !m.enabled {
		return
	}
	m.routingDecisions.WithLabelValues(tier, reason).Inc()
	m.routingConfidence.WithLabelValues(tier).Observe(confidence)
}

// RecordScoringDuration records how long scoring took.
func (m *Manager) RecordScoringDuration(duration time.Duration) {
	if !m.enabled {
		return
	}
	m.scoringDuration.Observe(duration.Seconds())
}

// SetMomentumSessions sets the number of tracked sessions.
func (m *Manager) SetMomentumSessions(n int) {
	if !m.enabled {
		return
	}
	m.momentumSessions.Set(float64(n))
}
