// Package auth validates agent API keys presented as bearer tokens.
package auth

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/metrics"
	"github.com/goclaw/manifest/pkg/storage"
)

// DefaultKeyPrefix is the required prefix of agent API keys.
const DefaultKeyPrefix = "mnfst_"

const touchTimeout = 5 * time.Second

// Identity is the authenticated caller.
type Identity struct {
	TenantID  string `json:"tenant_id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	UserID    string `json:"user_id"`
	Local     bool   `json:"local,omitempty"`
}

// LocalIdentity is returned for loopback callers in local mode.
var LocalIdentity = Identity{
	TenantID:  "local-tenant",
	AgentID:   "local-agent",
	AgentName: "local",
	UserID:    "local-user",
	Local:     true,
}

// Config configures a Guard.
type Config struct {
	KeyPrefix string
	LocalMode bool
	CacheSize int
	CacheTTL  time.Duration
}

// Guard authenticates requests against a KeyStore through a bounded cache.
type Guard struct {
	cfg     Config
	keys    storage.KeyStore
	cache   *Cache
	logger  logger.Logger
	metrics *metrics.Manager
	now     func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithMetrics records cache and failure metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// NewGuard creates a Guard.
func NewGuard(keys storage.KeyStore, cfg Config, log logger.Logger, opts ...Option) *Guard {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Global()
	}

	g := &Guard{
		cfg:     cfg,
		keys:    keys,
		logger:  log.With("component", "auth"),
		metrics: metrics.NoOpManager(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = metrics.NoOpManager()
	}
	g.cache = NewCache(cfg.CacheSize, g.now)
	return g
}

// Authenticate validates the Authorization header of a request coming from
// remoteAddr. Failures are *Error values; store failures are returned
// wrapped.
func (g *Guard) Authenticate(ctx context.Context, authorization, remoteAddr string) (*Identity, error) {
	if g.cfg.LocalMode && IsLoopback(remoteAddr) {
		id := LocalIdentity
		return &id, nil
	}

	token, err := g.parseToken(authorization)
	if err != nil {
		g.metrics.RecordAuthFailure(err.(*Error).Code)
		return nil, err
	}

	hash := storage.HashAPIKey(token)
	if id, ok := g.cache.Get(hash); ok {
		g.metrics.RecordAuthCacheLookup(true)
		return &id, nil
	}
	g.metrics.RecordAuthCacheLookup(false)

	key, err := g.keys.LookupAPIKey(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if key == nil {
		g.metrics.RecordAuthFailure(ErrInvalidKey.Code)
		return nil, ErrInvalidKey
	}

	now := g.now()
	if key.Expired(now) {
		g.metrics.RecordAuthFailure(ErrExpiredKey.Code)
		return nil, ErrExpiredKey
	}

	id := Identity{
		TenantID:  key.TenantID,
		AgentID:   key.AgentID,
		AgentName: key.AgentName,
		UserID:    key.UserID,
	}

	expiresAt := now.Add(g.cfg.CacheTTL)
	if key.ExpiresAt != nil && key.ExpiresAt.Before(expiresAt) {
		expiresAt = *key.ExpiresAt
	}
	g.cache.Put(hash, id, expiresAt)
	g.metrics.SetAuthCacheEntries(g.cache.Len())

	g.touch(ctx, hash, now)

	return &id, nil
}

// touch records the key's last use without blocking or failing the request.
func (g *Guard) touch(ctx context.Context, hash string, at time.Time) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, touchTimeout)
		defer cancel()
		if err := g.keys.TouchAPIKey(ctx, hash, at); err != nil {
			g.logger.WarnContext(ctx, "failed to update api key last use", "error", err)
		}
	}()
}

func (g *Guard) parseToken(authorization string) (string, error) {
	if authorization == "" {
		return "", ErrMissingHeader
	}

	token := strings.TrimSpace(authorization)
	switch {
	case strings.EqualFold(token, "bearer"):
		token = ""
	case len(token) > 7 && strings.EqualFold(token[:7], "bearer "):
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", ErrEmptyToken
	}
	if !strings.HasPrefix(token, g.cfg.KeyPrefix) || len(token) == len(g.cfg.KeyPrefix) {
		return "", ErrInvalidFormat
	}
	return token, nil
}

// Invalidate drops the cached entry for a raw token, for key rotation.
func (g *Guard) Invalidate(token string) {
	g.cache.Delete(storage.HashAPIKey(token))
}

// InvalidateHash drops the cached entry for a stored key hash.
func (g *Guard) InvalidateHash(hash string) {
	g.cache.Delete(hash)
}

// PurgeExpired drops expired cache entries. It is run periodically.
func (g *Guard) PurgeExpired() int {
	n := g.cache.Purge()
	g.metrics.SetAuthCacheEntries(g.cache.Len())
	return n
}

// CacheLen returns the number of cached identities.
func (g *Guard) CacheLen() int {
	return g.cache.Len()
}

// LocalMode reports whether loopback callers bypass authentication.
func (g *Guard) LocalMode() bool {
	return g.cfg.LocalMode
}

// IsLoopback reports whether addr (host or host:port) is 127.0.0.1 or ::1.
func IsLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return host == "127.0.0.1" || host == "::1"
}
