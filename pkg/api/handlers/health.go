// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goclaw/manifest/pkg/api/response"
	"github.com/goclaw/manifest/pkg/version"
)

const readinessTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// GaugeFunc reports a current size on /status.
type GaugeFunc func() int

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	started time.Time
	ready   atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc
	gauges map[string]GaugeFunc
}

// NewHealthHandler creates a health handler that reports ready.
func NewHealthHandler() *HealthHandler {
	h := &HealthHandler{
		started: time.Now(),
		checks:  make(map[string]CheckFunc),
		gauges:  make(map[string]GaugeFunc),
	}
	h.ready.Store(true)
	return h
}

// AddCheck registers a readiness check.
func (h *HealthHandler) AddCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

// AddGauge registers a value reported by Status.
func (h *HealthHandler) AddGauge(name string, fn GaugeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gauges[name] = fn
}

// SetReady flips readiness, e.g. while draining on shutdown.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready": false,
		})
		return
	}

	failures := h.runChecks(r.Context())
	if len(failures) > 0 {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"checks": failures,
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	gauges := make(map[string]int, len(h.gauges))
	for name, fn := range h.gauges {
		gauges[name] = fn()
	}
	h.mu.RUnlock()

	response.JSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"ready":          h.ready.Load(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"version":        version.Info(),
		"components":     gauges,
	})
}

func (h *HealthHandler) runChecks(ctx context.Context) map[string]string {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	failures := make(map[string]string)
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}
