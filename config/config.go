// Package config provides configuration management for Manifest.
package config

import (
	"fmt"
	"time"

	"github.com/goclaw/manifest/pkg/storage"
)

// Config is the global configuration for Manifest.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration for keys, tiers, pricing and limits.
	Storage StorageConfig `mapstructure:"storage"`

	// Redis is the Redis connection used by the usage tracker.
	Redis RedisConfig `mapstructure:"redis"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Auth is the agent key authentication configuration.
	Auth AuthConfig `mapstructure:"auth"`

	// Scoring is the complexity scorer configuration.
	Scoring ScoringConfig `mapstructure:"scoring"`

	// Momentum is the session momentum cache configuration.
	Momentum MomentumConfig `mapstructure:"momentum"`

	// Proxy is the chat completions proxy configuration.
	Proxy ProxyConfig `mapstructure:"proxy"`

	// Providers overrides upstream endpoints.
	Providers ProvidersConfig `mapstructure:"providers"`

	// Limits is the usage limit and rate limit configuration.
	Limits LimitsConfig `mapstructure:"limits"`

	// Seed is written into the store at startup.
	Seed storage.SeedData `mapstructure:"seed"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP/gRPC server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" validate:"omitempty,host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// GRPC is the gRPC health server configuration.
	GRPC GRPCConfig `mapstructure:"grpc"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// WebSocket is the routing event feed configuration.
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// GRPCConfig holds gRPC-specific settings.
type GRPCConfig struct {
	// Enabled enables the gRPC health server.
	Enabled bool `mapstructure:"enabled"`

	// Port is the gRPC server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// MaxConnections is the maximum number of concurrent connections.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// EnableReflection enables gRPC server reflection for debugging.
	EnableReflection bool `mapstructure:"enable_reflection"`

	// Keepalive is the keepalive configuration.
	Keepalive GRPCKeepaliveConfig `mapstructure:"keepalive"`
}

// GRPCKeepaliveConfig holds gRPC keepalive settings.
type GRPCKeepaliveConfig struct {
	// MaxIdleSeconds is the maximum idle time before closing connection.
	MaxIdleSeconds int `mapstructure:"max_idle_seconds" validate:"min=0"`

	// TimeSeconds is the keepalive ping interval.
	TimeSeconds int `mapstructure:"time_seconds" validate:"min=0"`

	// TimeoutSeconds is the keepalive ping timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"min=0"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes. It must
	// exceed the upstream timeout or long completions are cut off.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds the resolve endpoint.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`

	// MaxBodyBytes limits the size of request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=0"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// WebSocketConfig holds routing event feed settings.
type WebSocketConfig struct {
	// Enabled exposes /ws/events.
	Enabled bool `mapstructure:"enabled"`

	// MaxConnections caps concurrent subscribers.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// PingInterval is how often idle connections are pinged.
	PingInterval time.Duration `mapstructure:"ping_interval"`

	// PongTimeout is how long to wait for a pong.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger, sqlite).
	Type string `mapstructure:"type" validate:"oneof=memory badger sqlite"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// SQLite is the SQLite configuration.
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	// Path is the database file.
	Path string `mapstructure:"path"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// KeyPrefix namespaces usage counters.
	KeyPrefix string `mapstructure:"key_prefix"`

	// DialTimeout bounds connection setup.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds each export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is the sampling strategy (always_on, always_off, parentbased_traceidratio).
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// AuthConfig holds agent key authentication settings.
type AuthConfig struct {
	// KeyPrefix is the required prefix of agent API keys.
	KeyPrefix string `mapstructure:"key_prefix" validate:"required"`

	// LocalMode lets loopback callers through without a key.
	LocalMode bool `mapstructure:"local_mode"`

	// CacheSize is the maximum number of cached identities.
	CacheSize int `mapstructure:"cache_size" validate:"min=1"`

	// CacheTTL is how long a validated key stays cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// PurgeInterval is how often expired cache entries are dropped.
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

// ScoringConfig holds complexity scorer settings.
type ScoringConfig struct {
	// Boundaries are the cut points between tiers.
	Boundaries BoundariesConfig `mapstructure:"boundaries"`

	// ConfidenceThreshold is the confidence below which a request is ambiguous.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"min=0,max=1"`

	// SigmoidK is the steepness of the confidence curve.
	SigmoidK float64 `mapstructure:"sigmoid_k" validate:"gt=0"`

	// ShortMessageLength is the character count below which a message is trivially simple.
	ShortMessageLength int `mapstructure:"short_message_length" validate:"min=1"`

	// LargeContextTokens is the estimated token count that forces at least the complex tier.
	LargeContextTokens int `mapstructure:"large_context_tokens" validate:"min=1"`

	// Weights override dimension weights by name.
	Weights map[string]float64 `mapstructure:"weights" validate:"dive,min=0,max=1"`
}

// BoundariesConfig holds the three tier cut points.
type BoundariesConfig struct {
	SimpleMax   float64 `mapstructure:"simple_max"`
	StandardMax float64 `mapstructure:"standard_max" validate:"gtfield=SimpleMax"`
	ComplexMax  float64 `mapstructure:"complex_max" validate:"gtfield=StandardMax"`
}

// MomentumConfig holds session momentum cache settings.
type MomentumConfig struct {
	// TTL is how long an idle session keeps its history.
	TTL time.Duration `mapstructure:"ttl"`

	// SweepInterval is how often idle sessions are purged.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ProxyConfig holds chat completions proxy settings.
type ProxyConfig struct {
	// HeartbeatSentinel marks heartbeat requests that skip scoring.
	HeartbeatSentinel string `mapstructure:"heartbeat_sentinel" validate:"required"`

	// UpstreamTimeout bounds each provider request.
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`

	// ScoringWindow is how many trailing non-system messages are scored.
	ScoringWindow int `mapstructure:"scoring_window" validate:"min=1"`
}

// ProvidersConfig holds upstream endpoint overrides.
type ProvidersConfig struct {
	// BaseURLs replaces the base URL of a provider, keyed by provider name.
	BaseURLs map[string]string `mapstructure:"base_urls" validate:"dive,url"`
}

// LimitsConfig holds usage limit settings.
type LimitsConfig struct {
	// Enabled turns on usage limit enforcement.
	Enabled bool `mapstructure:"enabled"`

	// Backend is the usage counter backend (memory, redis).
	Backend string `mapstructure:"backend" validate:"oneof=memory redis"`

	// Rate is the per-agent request rate limit.
	Rate RateConfig `mapstructure:"rate"`
}

// RateConfig holds per-agent request rate settings.
type RateConfig struct {
	// RequestsPerSecond is the sustained rate. Zero disables rate limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the bucket size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type)
}
