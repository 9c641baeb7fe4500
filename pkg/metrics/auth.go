package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initAuthMetrics initializes API key authentication metrics.
func (m *Manager) initAuthMetrics(cfg Config) {
	m.authCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_cache_lookups_total",
			Help:      "Total number of auth cache lookups by result",
		},
		[]string{"result"},
	)

	m.authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected API keys by reason",
		},
		[]string{"reason"},
	)

	m.authCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auth_cache_entries",
			Help:      "Number of cached API keys",
		},
	)

	m.registry.MustRegister(m.authCacheLookups)
	m.registry.MustRegister(m.authFailures)
	m.registry.MustRegister(m.authCacheEntries)
}

// RecordAuthCacheLookup records a cache hit or miss.
func (m *Manager) RecordAuthCacheLookup(hit bool) {
	if !m.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.authCacheLookups.WithLabelValues(result).Inc()
}

// RecordAuthFailure records a rejected request.
func (m *Manager) RecordAuthFailure(reason string) {
	if !m.enabled {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// SetAuthCacheEntries sets the number of cached keys.
func (m *Manager) SetAuthCacheEntries(n int) {
	if !m.enabled {
		return
	}
	m.authCacheEntries.Set(float64(n))
}
