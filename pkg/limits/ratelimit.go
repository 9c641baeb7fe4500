package limits

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateConfig configures per-agent request rate limiting.
type RateConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an unused limiter is kept.
	IdleTTL time.Duration
}

type agentLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per agent.
type RateLimiter struct {
	mu       sync.Mutex
	cfg      RateConfig
	limiters map[string]*agentLimiter
	now      func() time.Time
}

// NewRateLimiter creates a RateLimiter. A non-positive rate disables limiting.
func NewRateLimiter(cfg RateConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      normalizeRate(cfg),
		limiters: make(map[string]*agentLimiter),
		now:      time.Now,
	}
}

func normalizeRate(cfg RateConfig) RateConfig {
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RequestsPerSecond))
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return cfg
}

// Update replaces the rate settings. Existing buckets are dropped.
func (r *RateLimiter) Update(cfg RateConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = normalizeRate(cfg)
	r.limiters = make(map[string]*agentLimiter)
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.RequestsPerSecond > 0
}

// Allow consumes one token for agentID.
func (r *RateLimiter) Allow(agentID string) bool {
	r.mu.Lock()
	if r.cfg.RequestsPerSecond <= 0 {
		r.mu.Unlock()
		return true
	}
	now := r.now()
	l, ok := r.limiters[agentID]
	if !ok {
		l = &agentLimiter{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)}
		r.limiters[agentID] = l
	}
	l.lastSeen = now
	r.mu.Unlock()

	return l.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle longer than IdleTTL.
func (r *RateLimiter) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, l := range r.limiters {
		if now.Sub(l.lastSeen) > r.cfg.IdleTTL {
			delete(r.limiters, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked agents.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
