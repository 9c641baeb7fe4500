package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// initProviderMetrics initializes upstream provider metrics.
func (m *Manager) initProviderMetrics(cfg Config) {
	m.providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of upstream provider requests",
		},
		[]string{"provider", "status"},
	)

	m.providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Time until upstream response headers arrive",
			Buckets:   cfg.ProviderDurationBuckets,
		},
		[]string{"provider"},
	)

	m.providerChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_stream_chunks_total",
			Help:      "Total number of streamed chunks relayed to clients",
		},
		[]string{"provider"},
	)

	m.registry.MustRegister(m.providerRequests)
	m.registry.MustRegister(m.providerDuration)
	m.registry.MustRegister(m.providerChunks)
}

// RecordProviderRequest records an upstream call. The trace of ctx, when
// sampled, is attached to the latency observation as an exemplar.
func (m *Manager) RecordProviderRequest(ctx context.Context, provider, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.providerRequests.WithLabelValues(provider, status).Inc()

	observer := m.providerDuration.WithLabelValues(provider)
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(duration.Seconds(), labels)
			return
		}
	}
	observer.Observe(duration.Seconds())
}

// RecordStreamChunk counts one relayed stream chunk.
func (m *Manager) RecordStreamChunk(provider string) {
	if !m.enabled {
		return
	}
	m.providerChunks.WithLabelValues(provider).Inc()
}

func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}, true
}
