package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "manifest",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3001,
			GRPC: GRPCConfig{
				Enabled:          false,
				Port:             9090,
				MaxConnections:   100,
				EnableReflection: false,
				Keepalive: GRPCKeepaliveConfig{
					MaxIdleSeconds: 300,
					TimeSeconds:    60,
					TimeoutSeconds: 20,
				},
			},
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    200 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				RequestTimeout:  10 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
				MaxBodyBytes:    20 << 20, // 20MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Session-Key", "X-Request-ID"},
				ExposedHeaders: []string{
					"X-Manifest-Tier", "X-Manifest-Model", "X-Manifest-Provider",
					"X-Manifest-Confidence", "X-Manifest-Reason", "X-Request-ID",
				},
				MaxAge: 600,
			},
			WebSocket: WebSocketConfig{
				Enabled:        true,
				MaxConnections: 100,
				PingInterval:   30 * time.Second,
				PongTimeout:    60 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1 << 28, // 256MB
				NumVersionsToKeep: 1,
			},
			SQLite: SQLiteConfig{
				Path: "./data/manifest.db",
			},
		},
		Redis: RedisConfig{
			Address:     "localhost:6379",
			Password:    "",
			DB:          0,
			KeyPrefix:   "manifest:usage",
			DialTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlpgrpc",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
		Auth: AuthConfig{
			KeyPrefix:     "mnfst_",
			LocalMode:     false,
			CacheSize:     10_000,
			CacheTTL:      5 * time.Minute,
			PurgeInterval: time.Minute,
		},
		Scoring: ScoringConfig{
			Boundaries: BoundariesConfig{
				SimpleMax:   0.0,
				StandardMax: 0.12,
				ComplexMax:  0.25,
			},
			ConfidenceThreshold: 0.55,
			SigmoidK:            8,
			ShortMessageLength:  30,
			LargeContextTokens:  50_000,
		},
		Momentum: MomentumConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Proxy: ProxyConfig{
			HeartbeatSentinel: "HEARTBEAT_OK",
			UpstreamTimeout:   180 * time.Second,
			ScoringWindow:     10,
		},
		Limits: LimitsConfig{
			Enabled: true,
			Backend: "memory",
		},
	}
}
