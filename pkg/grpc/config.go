package grpc

import (
	"fmt"
	"time"
)

// Config holds gRPC server configuration
type Config struct {
	// Address is the server listening address (e.g., ":9090")
	Address string

	// MaxConnections is the maximum number of concurrent streams per connection
	MaxConnections int

	// Keepalive settings
	Keepalive *KeepaliveConfig

	// EnableReflection enables gRPC server reflection for debugging
	EnableReflection bool

	// EnableTracing adds the OpenTelemetry interceptors
	EnableTracing bool
}

// KeepaliveConfig holds keepalive configuration
type KeepaliveConfig struct {
	// MaxIdleSeconds is the maximum idle time before closing connection
	MaxIdleSeconds int

	// TimeSeconds is the keepalive ping interval
	TimeSeconds int

	// TimeoutSeconds is the keepalive ping timeout
	TimeoutSeconds int
}

// DefaultConfig returns a default gRPC server configuration
func DefaultConfig() *Config {
	return &Config{
		Address:          ":9090",
		MaxConnections:   100,
		EnableReflection: false,
		Keepalive: &KeepaliveConfig{
			MaxIdleSeconds: 300, // 5 minutes
			TimeSeconds:    60,  // 1 minute
			TimeoutSeconds: 20,  // 20 seconds
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections cannot be negative")
	}

	if c.Keepalive != nil {
		if err := c.Keepalive.Validate(); err != nil {
			return fmt.Errorf("invalid keepalive config: %w", err)
		}
	}

	return nil
}

// Validate validates keepalive configuration
func (k *KeepaliveConfig) Validate() error {
	if k.MaxIdleSeconds < 0 {
		return fmt.Errorf("max idle seconds cannot be negative")
	}

	if k.TimeSeconds < 0 {
		return fmt.Errorf("time seconds cannot be negative")
	}

	if k.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout seconds cannot be negative")
	}

	if k.TimeoutSeconds > 0 && k.TimeSeconds > 0 {
		if time.Duration(k.TimeoutSeconds)*time.Second >= time.Duration(k.TimeSeconds)*time.Second {
			return fmt.Errorf("timeout must be less than ping interval")
		}
	}

	return nil
}
