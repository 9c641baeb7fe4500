package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.Health(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthHandler_Ready(t *testing.T) {
	handler := NewHealthHandler()
	handler.AddCheck("storage", func(ctx context.Context) error { return nil })

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	handler.AddCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	w = httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Checks)
}

func TestHealthHandler_NotReadyWhileDraining(t *testing.T) {
	handler := NewHealthHandler()
	handler.SetReady(false)

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	handler.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_Status(t *testing.T) {
	handler := NewHealthHandler()
	handler.AddGauge("momentum_sessions", func() int { return 3 })
	handler.AddGauge("auth_cache_entries", func() int { return 7 })

	w := httptest.NewRecorder()
	handler.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string            `json:"status"`
		Version    map[string]string `json:"version"`
		Components map[string]int    `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Contains(t, body.Version, "version")
	assert.Equal(t, 3, body.Components["momentum_sessions"])
	assert.Equal(t, 7, body.Components["auth_cache_entries"])
}
