// Package session keeps the short per-session tier history used for
// momentum scoring.
package session

import (
	"sync"
	"time"

	"github.com/goclaw/manifest/pkg/scoring"
)

const (
	// DefaultTTL is how long an idle session keeps its history.
	DefaultTTL = 30 * time.Minute

	// DefaultSweepInterval is how often idle sessions are purged.
	DefaultSweepInterval = 5 * time.Minute
)

type momentumEntry struct {
	tiers       []scoring.Tier
	lastUpdated time.Time
}

// MomentumCache maps a session key to its newest-first recent tiers.
type MomentumCache struct {
	mu      sync.Mutex
	entries map[string]*momentumEntry
	ttl     time.Duration
	limit   int
	now     func() time.Time
}

// Option configures a MomentumCache.
type Option func(*MomentumCache)

// WithTTL sets the idle expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *MomentumCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *MomentumCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMomentumCache creates an empty cache.
func NewMomentumCache(opts ...Option) *MomentumCache {
	c := &MomentumCache{
		entries: make(map[string]*momentumEntry),
		ttl:     DefaultTTL,
		limit:   scoring.MaxMomentumHistory,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordTier prepends tier to the session history and refreshes it.
func (c *MomentumCache) RecordTier(key string, tier scoring.Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if !ok || now.Sub(e.lastUpdated) > c.ttl {
		e = &momentumEntry{}
		c.entries[key] = e
	}

	tiers := make([]scoring.Tier, 0, c.limit)
	tiers = append(tiers, tier)
	tiers = append(tiers, e.tiers...)
	if len(tiers) > c.limit {
		tiers = tiers[:c.limit]
	}
	e.tiers = tiers
	e.lastUpdated = now
}

// RecentTiers returns a copy of the session history, newest first. Unknown
// or expired sessions return nil; expired ones are evicted.
func (c *MomentumCache) RecentTiers(key string) []scoring.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(e.lastUpdated) > c.ttl {
		delete(c.entries, key)
		return nil
	}

	out := make([]scoring.Tier, len(e.tiers))
	copy(out, e.tiers)
	return out
}

// Sweep evicts every idle session and returns how many were removed.
func (c *MomentumCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.lastUpdated) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (c *MomentumCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops all sessions.
func (c *MomentumCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*momentumEntry)
}
