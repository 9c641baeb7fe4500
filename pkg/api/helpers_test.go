package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goclaw/manifest/config"
	"github.com/goclaw/manifest/pkg/api/events"
	"github.com/goclaw/manifest/pkg/api/handlers"
	"github.com/goclaw/manifest/pkg/auth"
	"github.com/goclaw/manifest/pkg/limits"
	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/provider"
	"github.com/goclaw/manifest/pkg/proxy"
	"github.com/goclaw/manifest/pkg/routing"
	"github.com/goclaw/manifest/pkg/scoring"
	"github.com/goclaw/manifest/pkg/session"
	"github.com/goclaw/manifest/pkg/storage"
	"github.com/goclaw/manifest/pkg/storage/memory"
)

const testToken = "mnfst_integration_token"

type testEnv struct {
	cfg         *config.Config
	store       *memory.MemoryStorage
	momentum    *session.MomentumCache
	broadcaster *events.Broadcaster
	handlers    *Handlers
}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTP.ReadTimeout = 5 * time.Second
	cfg.Server.HTTP.WriteTimeout = 5 * time.Second
	cfg.Server.HTTP.RequestTimeout = 2 * time.Second
	cfg.Tracing.Enabled = false
	return cfg
}

// newTestEnv wires the full request path against an upstream provider
// served by upstream.
func newTestEnv(t testing.TB, upstream http.Handler, rate limits.RateConfig) *testEnv {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()
	log := testLogger()

	store := memory.NewMemoryStorage()
	require.NoError(t, store.PutAPIKey(ctx, &storage.APIKey{
		Hash:      storage.HashAPIKey(testToken),
		TenantID:  "t1",
		AgentID:   "a1",
		AgentName: "integration",
		CreatedAt: time.Now(),
	}))
	for _, tier := range scoring.AllTiers {
		require.NoError(t, store.PutTierAssignment(ctx, &storage.TierAssignment{
			AgentID: "a1", Tier: tier, Model: "gpt-" + string(tier), Provider: "openai",
		}))
	}
	require.NoError(t, store.PutProviderKey(ctx, "t1", "openai", "sk-upstream"))

	baseURLs := map[string]string{}
	if upstream != nil {
		server := httptest.NewServer(upstream)
		t.Cleanup(server.Close)
		baseURLs["openai"] = server.URL
	}
	registry, err := provider.NewRegistry(baseURLs)
	require.NoError(t, err)

	scorer, err := scoring.NewScorer(scoring.DefaultConfig())
	require.NoError(t, err)
	rs := routing.NewService(scorer, store, store, log)
	momentum := session.NewMomentumCache()
	broadcaster := events.NewBroadcaster()
	p := proxy.New(proxy.Config{}, rs, momentum, store, provider.NewClient(registry, log), log,
		proxy.WithEvents(broadcaster))

	guard := auth.NewGuard(store, auth.Config{
		KeyPrefix: auth.DefaultKeyPrefix,
		CacheSize: 100,
		CacheTTL:  time.Minute,
	}, log)

	h := &Handlers{
		Chat:      handlers.NewChatHandler(p, log, nil, cfg.Server.HTTP.MaxBodyBytes),
		Resolve:   handlers.NewResolveHandler(rs, log, cfg.Server.HTTP.MaxBodyBytes),
		Health:    handlers.NewHealthHandler(),
		Events:    handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{}),
		Auth:      guard,
		RateLimit: limits.NewRateLimiter(rate),
	}
	t.Cleanup(h.Events.Close)

	return &testEnv{cfg: cfg, store: store, momentum: momentum, broadcaster: broadcaster, handlers: h}
}
