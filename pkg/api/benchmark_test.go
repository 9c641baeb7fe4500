package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goclaw/manifest/pkg/limits"
)

func BenchmarkResolve(b *testing.B) {
	env := newTestEnv(b, nil, limits.RateConfig{})
	router := NewRouter(env.cfg, testLogger(), env.handlers)
	body := `{"messages":[{"role":"user","content":"Compare the trade-offs of sharding versus replication for a distributed database, step by step."}]}`

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			b.Fatalf("status = %d", w.Code)
		}
	}
}

func BenchmarkHealth(b *testing.B) {
	env := newTestEnv(b, nil, limits.RateConfig{})
	router := NewRouter(env.cfg, testLogger(), env.handlers)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
