package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/goclaw/manifest/config"
	"github.com/goclaw/manifest/pkg/api"
	"github.com/goclaw/manifest/pkg/api/events"
	"github.com/goclaw/manifest/pkg/api/handlers"
	"github.com/goclaw/manifest/pkg/auth"
	grpcpkg "github.com/goclaw/manifest/pkg/grpc"
	"github.com/goclaw/manifest/pkg/lane"
	"github.com/goclaw/manifest/pkg/limits"
	"github.com/goclaw/manifest/pkg/logger"
	"github.com/goclaw/manifest/pkg/metrics"
	"github.com/goclaw/manifest/pkg/provider"
	"github.com/goclaw/manifest/pkg/proxy"
	"github.com/goclaw/manifest/pkg/routing"
	"github.com/goclaw/manifest/pkg/scheduler"
	"github.com/goclaw/manifest/pkg/session"
	"github.com/goclaw/manifest/pkg/storage"
	"github.com/goclaw/manifest/pkg/storage/backend"
	"github.com/goclaw/manifest/pkg/telemetry/tracing"
	"github.com/goclaw/manifest/pkg/version"
)

const (
	usageLaneCapacity    = 1024
	usageLaneWorkers     = 4
	usageLaneTaskTimeout = 5 * time.Second
)

// app owns every long-lived component of the server process.
type app struct {
	cfgMu sync.Mutex
	cfg   *config.Config
	log   logger.Logger

	store       storage.Store
	redis       *redis.Client
	memoryUsage *limits.MemoryUsageStore
	usageLane   *lane.ChannelLane
	metrics     *metrics.Manager
	momentum    *session.MomentumCache
	guard       *auth.Guard
	rate        *limits.RateLimiter
	routing     *routing.Service
	broadcaster *events.Broadcaster
	health      *handlers.HealthHandler
	events      *handlers.WebSocketHandler
	http        *api.HTTPServer
	grpc        *grpcpkg.Server
	scheduler   *scheduler.Scheduler

	shutdownTracing tracing.ShutdownFunc
}

// newApp builds the component graph. On error every component opened so far
// is closed.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err == nil {
			return
		}
		if a.shutdownTracing != nil {
			_ = a.shutdownTracing(context.Background())
		}
		a.close()
	}()

	a.shutdownTracing, err = tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.store, err = backend.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	log.Info("Initialized storage", "type", cfg.Storage.Type, "location", backend.Describe(cfg.Storage))

	if err := storage.Seed(ctx, a.store, cfg.Seed); err != nil {
		return nil, fmt.Errorf("seed storage: %w", err)
	}

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	a.metrics = metrics.NewManager(metricsCfg)

	scorer, err := cfg.Scoring.NewScorer()
	if err != nil {
		return nil, fmt.Errorf("build scorer: %w", err)
	}
	a.routing = routing.NewService(scorer, a.store, a.store, log, routing.WithMetrics(a.metrics))
	a.momentum = session.NewMomentumCache(session.WithTTL(cfg.Momentum.TTL))
	a.broadcaster = events.NewBroadcaster()

	registry, err := provider.NewRegistry(cfg.Providers.BaseURLs)
	if err != nil {
		return nil, fmt.Errorf("build provider registry: %w", err)
	}
	client := provider.NewClient(registry, log,
		provider.WithTimeout(cfg.Proxy.UpstreamTimeout),
		provider.WithClientMetrics(a.metrics))

	opts := []proxy.Option{proxy.WithEvents(a.broadcaster), proxy.WithMetrics(a.metrics)}
	if cfg.Limits.Enabled {
		usage, err := a.openUsageStore(ctx)
		if err != nil {
			return nil, err
		}
		tracker := limits.NewTracker(a.store, a.store, usage, log)
		a.usageLane, err = lane.New(&lane.Config{
			Name:        "usage",
			Capacity:    usageLaneCapacity,
			Workers:     usageLaneWorkers,
			TaskTimeout: usageLaneTaskTimeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("build usage lane: %w", err)
		}
		opts = append(opts,
			proxy.WithLimits(tracker),
			proxy.WithUsageRecorder(tracker),
			proxy.WithSideEffectLane(a.usageLane))
	}
	p := proxy.New(proxy.Config{
		HeartbeatSentinel: cfg.Proxy.HeartbeatSentinel,
		ScoringWindow:     cfg.Proxy.ScoringWindow,
	}, a.routing, a.momentum, a.store, client, log, opts...)

	a.guard = auth.NewGuard(a.store, auth.Config{
		KeyPrefix: cfg.Auth.KeyPrefix,
		LocalMode: cfg.Auth.LocalMode,
		CacheSize: cfg.Auth.CacheSize,
		CacheTTL:  cfg.Auth.CacheTTL,
	}, log, auth.WithMetrics(a.metrics))
	a.rate = limits.NewRateLimiter(limits.RateConfig{
		RequestsPerSecond: cfg.Limits.Rate.RequestsPerSecond,
		Burst:             cfg.Limits.Rate.Burst,
	})

	a.health = handlers.NewHealthHandler()
	a.health.AddCheck("storage", a.store.Ping)
	if a.redis != nil {
		a.health.AddCheck("redis", func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	a.health.AddGauge("momentum_sessions", a.momentum.Len)
	a.health.AddGauge("auth_cache_entries", a.guard.CacheLen)
	a.health.AddGauge("rate_limited_agents", a.rate.Len)
	a.health.AddGauge("event_subscribers", a.broadcaster.SubscriberCount)
	if a.usageLane != nil {
		a.health.AddGauge("usage_lane_pending", a.usageLane.Pending)
	}

	a.events = handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		MaxConnections: cfg.Server.WebSocket.MaxConnections,
		PingInterval:   cfg.Server.WebSocket.PingInterval,
		PongTimeout:    cfg.Server.WebSocket.PongTimeout,
	})
	a.health.AddGauge("websocket_clients", a.events.Count)

	h := &api.Handlers{
		Chat:      handlers.NewChatHandler(p, log, a.metrics, cfg.Server.HTTP.MaxBodyBytes),
		Resolve:   handlers.NewResolveHandler(a.routing, log, cfg.Server.HTTP.MaxBodyBytes),
		Health:    a.health,
		Events:    a.events,
		Auth:      a.guard,
		RateLimit: a.rate,
	}
	if a.metrics.Enabled() {
		h.Metrics = a.metrics
		h.RateLimitMetrics = a.metrics
	}
	a.http = api.NewHTTPServer(cfg, log, h)

	if cfg.Server.GRPC.Enabled {
		a.grpc, err = grpcpkg.New(cfg.Server.GRPC.ToGRPCConfig(cfg.Tracing.Enabled), log)
		if err != nil {
			return nil, fmt.Errorf("build grpc server: %w", err)
		}
	}

	a.scheduler = scheduler.New(log)
	if err := a.registerJobs(); err != nil {
		return nil, err
	}

	return a, nil
}

// openUsageStore returns the counter backend of the usage tracker.
func (a *app) openUsageStore(ctx context.Context) (limits.UsageStore, error) {
	switch a.cfg.Limits.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:        a.cfg.Redis.Address,
			Password:    a.cfg.Redis.Password,
			DB:          a.cfg.Redis.DB,
			DialTimeout: a.cfg.Redis.DialTimeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.log.Warn("Redis unreachable at startup, usage limits fail open until it recovers",
				"address", a.cfg.Redis.Address, "error", err)
		}
		store, err := limits.NewRedisUsageStore(a.redis, a.cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("build redis usage store: %w", err)
		}
		a.log.Info("Initialized redis usage counters", "address", a.cfg.Redis.Address)
		return store, nil
	default:
		a.memoryUsage = limits.NewMemoryUsageStore(time.Now)
		return a.memoryUsage, nil
	}
}

// registerJobs schedules the cache sweeps and gauge refreshes.
func (a *app) registerJobs() error {
	if err := a.scheduler.Every("momentum_sweep", a.cfg.Momentum.SweepInterval, func(context.Context) {
		if n := a.momentum.Sweep(); n > 0 {
			a.log.Debug("Swept idle sessions", "removed", n)
		}
		a.metrics.SetMomentumSessions(a.momentum.Len())
	}); err != nil {
		return err
	}

	if err := a.scheduler.Every("auth_cache_purge", a.cfg.Auth.PurgeInterval, func(context.Context) {
		if n := a.guard.PurgeExpired(); n > 0 {
			a.log.Debug("Purged expired auth cache entries", "removed", n)
		}
		a.metrics.SetAuthCacheEntries(a.guard.CacheLen())
	}); err != nil {
		return err
	}

	if err := a.scheduler.Every("rate_limiter_sweep", a.cfg.Momentum.SweepInterval, func(context.Context) {
		a.rate.Sweep()
	}); err != nil {
		return err
	}

	if a.memoryUsage != nil {
		if err := a.scheduler.Every("usage_counter_sweep", a.cfg.Momentum.SweepInterval, func(context.Context) {
			a.memoryUsage.Sweep()
		}); err != nil {
			return err
		}
	}
	return nil
}

// run starts all servers and blocks until ctx is done or a server fails.
func (a *app) run(ctx context.Context) error {
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go a.events.Relay(relayCtx, a.broadcaster)

	a.scheduler.Start()

	errCh := make(chan error, 3)
	if a.metrics.Enabled() {
		go func() {
			a.log.Info("Starting metrics server", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
			if err := a.metrics.StartServer(ctx, a.cfg.Metrics.Port, a.cfg.Metrics.Path); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}
	if a.grpc != nil {
		if err := a.grpc.Start(); err != nil {
			return a.stop(fmt.Errorf("grpc server: %w", err))
		}
	}
	go func() {
		if err := a.http.Start(); err != nil {
			errCh <- err
		}
	}()

	a.health.SetReady(true)
	a.log.Info("Manifest is running",
		"http_addr", a.http.Addr(),
		"grpc_enabled", a.grpc != nil,
		"metrics_port", a.cfg.Metrics.Port,
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Received shutdown signal")
	case runErr = <-errCh:
		a.log.Error("Server error", "error", runErr)
	}
	return a.stop(runErr)
}

// stop drains traffic and releases every component. cause is returned
// joined with any shutdown errors.
func (a *app) stop(cause error) error {
	a.health.SetReady(false)
	if a.grpc != nil {
		a.grpc.SetServing(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()

	errs := []error{cause}
	if err := a.http.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.grpc != nil {
		if err := a.grpc.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.usageLane != nil {
		if err := a.usageLane.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain usage lane: %w", err))
		}
	}
	a.events.Close()
	a.broadcaster.Close()
	if err := a.shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	a.close()

	a.log.Info("Manifest stopped")
	return errors.Join(errs...)
}

// close releases storage and client connections.
func (a *app) close() {
	if a.usageLane != nil && !a.usageLane.IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), usageLaneTaskTimeout)
		_ = a.usageLane.Close(ctx)
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Error closing redis client", "error", err)
		}
		a.redis = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Error closing storage", "error", err)
		}
		a.store = nil
	}
}

// applyConfig applies the hot-reloadable subset of next.
func (a *app) applyConfig(next *config.Config) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	prev := config.ExtractHotReloadable(a.cfg)
	hot := config.ExtractHotReloadable(next)
	if !prev.Changed(hot) {
		return
	}

	if hot.LogLevel != prev.LogLevel {
		a.log.SetLevel(logger.ParseLevel(hot.LogLevel))
		a.log.Info("Log level changed", "level", hot.LogLevel)
	}
	if prev.ScoringChanged(hot) {
		scorer, err := hot.Scoring.NewScorer()
		if err != nil {
			a.log.Error("Rejected scoring config, keeping previous scorer", "error", err)
		} else {
			a.routing.SetScorer(scorer)
			a.log.Info("Scorer reloaded")
		}
	}
	if hot.RateLimit != prev.RateLimit {
		a.rate.Update(limits.RateConfig{
			RequestsPerSecond: hot.RateLimit.RequestsPerSecond,
			Burst:             hot.RateLimit.Burst,
		})
		a.log.Info("Rate limit changed", "rps", hot.RateLimit.RequestsPerSecond, "burst", hot.RateLimit.Burst)
	}
	if hot.UpstreamTimeout != prev.UpstreamTimeout {
		a.log.Warn("Upstream timeout change applies after restart", "upstream_timeout", hot.UpstreamTimeout)
	}

	cfg := *a.cfg
	cfg.Log.Level = hot.LogLevel
	cfg.Scoring = hot.Scoring
	cfg.Limits.Rate = hot.RateLimit
	a.cfg = &cfg
}
