package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestNewManager_FillsMissingBuckets(t *testing.T) {
	m := NewManager(Config{Enabled: true, Path: "/metrics"})
	m.RecordScoringDuration(time.Millisecond)
	m.RecordProviderRequest(context.Background(), "openai", "200", time.Second)
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	// Record some metrics
	m.RecordRoutingDecision("complex", "scored", 0.8)
	m.RecordScoringDuration(200 * time.Microsecond)
	m.SetMomentumSessions(3)
	m.RecordProviderRequest(context.Background(), "anthropic", "200", 2*time.Second)
	m.RecordStreamChunk("anthropic")
	m.RecordAuthCacheLookup(true)
	m.RecordAuthCacheLookup(false)
	m.RecordAuthFailure("invalid_key")
	m.SetAuthCacheEntries(10)
	m.RecordLimitViolation("cost", "day")
	m.RecordRateLimited()
	m.RecordHTTPRequest("POST", "/v1/chat/completions", "200", 10*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expectedMetrics := []string{
		"manifest_routing_decisions_total",
		"manifest_routing_confidence",
		"manifest_scoring_duration_seconds",
		"manifest_momentum_sessions",
		"manifest_provider_requests_total",
		"manifest_provider_request_duration_seconds",
		"manifest_provider_stream_chunks_total",
		"manifest_auth_cache_lookups_total",
		"manifest_auth_failures_total",
		"manifest_auth_cache_entries",
		"manifest_limit_violations_total",
		"manifest_rate_limited_total",
		"http_requests_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestProviderExemplar(t *testing.T) {
	m := NewManager(DefaultConfig())

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)
	m.RecordProviderRequest(ctx, "openai", "200", 1500*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), spanCtx.TraceID().String()) {
		t.Error("expected trace id exemplar in OpenMetrics output")
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Port = 19091 // Use different port for testing

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		if err := m.StartServer(ctx, cfg.Port, cfg.Path); err != nil {
			errCh <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://localhost:19091/metrics")
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	// Cancel context to stop server
	cancel()

	select {
	case err := <-errCh:
		t.Errorf("Server error: %v", err)
	case <-time.After(1 * time.Second):
		// Server stopped cleanly
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	m.RecordRoutingDecision("simple", "short_message", 0.9)
	m.RecordScoringDuration(time.Millisecond)
	m.SetMomentumSessions(1)
	m.RecordProviderRequest(context.Background(), "openai", "200", time.Second)
	m.RecordStreamChunk("openai")
	m.RecordAuthCacheLookup(true)
	m.RecordAuthFailure("expired")
	m.SetAuthCacheEntries(1)
	m.RecordLimitViolation("tokens", "hour")
	m.RecordRateLimited()
	m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
}

func BenchmarkRecordRoutingDecision(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRoutingDecision("standard", "scored", 0.7)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 5 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordHTTPRequest("POST", "/v1/chat/completions", "200", d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRoutingDecision("standard", "scored", 0.7)
		m.RecordAuthCacheLookup(true)
	}
}
