// Package metrics provides Prometheus metrics instrumentation for Manifest.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "manifest"

// Manager manages all Prometheus metrics for Manifest.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Routing metrics
	routingDecisions  *prometheus.CounterVec
	routingConfidence *prometheus.HistogramVec
	scoringDuration   prometheus.Histogram
	momentumSessions  prometheus.Gauge

	// Provider metrics
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerChunks   *prometheus.CounterVec

	// Auth metrics
	authCacheLookups *prometheus.CounterVec
	authFailures     *prometheus.CounterVec
	authCacheEntries prometheus.Gauge

	// Limit metrics
	limitViolations *prometheus.CounterVec
	rateLimited     prometheus.Counter

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	// Histogram bucket configurations
	ScoringDurationBuckets  []float64
	ProviderDurationBuckets []float64
	HTTPDurationBuckets     []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Port:                    9091,
		Path:                    "/metrics",
		ScoringDurationBuckets:  []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		ProviderDurationBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		HTTPDurationBuckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	defaults := DefaultConfig()
	if len(cfg.ScoringDurationBuckets) == 0 {
		cfg.ScoringDurationBuckets = defaults.ScoringDurationBuckets
	}
	if len(cfg.ProviderDurationBuckets) == 0 {
		cfg.ProviderDurationBuckets = defaults.ProviderDurationBuckets
	}
	if len(cfg.HTTPDurationBuckets) == 0 {
		cfg.HTTPDurationBuckets = defaults.HTTPDurationBuckets
	}

	registry := prometheus.NewRegistry()

	// Register Go runtime metrics
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.initRoutingMetrics(cfg)
	m.initProviderMetrics(cfg)
	m.initAuthMetrics(cfg)
	m.initLimitMetrics(cfg)
	m.initHTTPMetrics(cfg)

	return m
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer starts the metrics HTTP server on the configured port.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}
