package config

import (
	"fmt"

	grpcpkg "github.com/goclaw/manifest/pkg/grpc"
)

// ToGRPCConfig converts config.GRPCConfig to pkg/grpc.Config
func (g *GRPCConfig) ToGRPCConfig(tracing bool) *grpcpkg.Config {
	return &grpcpkg.Config{
		Address:          fmt.Sprintf(":%d", g.Port),
		MaxConnections:   g.MaxConnections,
		EnableReflection: g.EnableReflection,
		EnableTracing:    tracing,
		Keepalive: &grpcpkg.KeepaliveConfig{
			MaxIdleSeconds: g.Keepalive.MaxIdleSeconds,
			TimeSeconds:    g.Keepalive.TimeSeconds,
			TimeoutSeconds: g.Keepalive.TimeoutSeconds,
		},
	}
}
