// Package grpc serves the standard gRPC health service so orchestrators can
// probe the router over gRPC.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/goclaw/manifest/pkg/grpc/interceptors"
	"github.com/goclaw/manifest/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "manifest.Router"

// Server represents a gRPC server instance
type Server struct {
	config   *Config
	log      logger.Logger
	grpcSrv  *grpc.Server
	listener net.Listener
	health   *routerHealth
	mu       sync.RWMutex
	running  bool
}

// New creates a new gRPC server with the given configuration
func New(cfg *Config, log logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.Global()
	}

	return &Server{
		config: cfg,
		log:    log.With("component", "grpc"),
	}, nil
}

// Start starts the gRPC server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	// Create listener
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener

	// Create gRPC server
	s.grpcSrv = grpc.NewServer(s.buildServerOptions()...)

	// Enable reflection if configured
	if s.config.EnableReflection {
		reflection.Register(s.grpcSrv)
	}

	s.health = registerHealth(s.grpcSrv)

	s.running = true

	srv := s.grpcSrv
	go func() {
		if err := srv.Serve(listener); err != nil {
			s.log.Error("gRPC server error", "error", err)
		}
	}()

	s.log.Info("gRPC health server started", "address", listener.Addr().String())
	return nil
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	// Report NOT_SERVING while draining.
	s.health.drain()

	stopped := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(stopped)
	}()

	// Wait for graceful stop or context timeout
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcSrv.Stop()
		s.running = false
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}

	s.running = false
	return nil
}

// SetServing flips the reported health of the router service.
func (s *Server) SetServing(serving bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.health == nil {
		return
	}
	s.health.setReady(serving)
}

// Address returns the server's listening address
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// buildServerOptions constructs gRPC server options from config
func (s *Server) buildServerOptions() []grpc.ServerOption {
	var opts []grpc.ServerOption

	// Connection limits
	if s.config.MaxConnections > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(s.config.MaxConnections)))
	}

	// Keepalive settings
	if s.config.Keepalive != nil {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: time.Duration(s.config.Keepalive.MaxIdleSeconds) * time.Second,
			Time:              time.Duration(s.config.Keepalive.TimeSeconds) * time.Second,
			Timeout:           time.Duration(s.config.Keepalive.TimeoutSeconds) * time.Second,
		}))
	}

	chain := interceptors.DefaultChain(s.log)
	if s.config.EnableTracing {
		chain = chain.WithTracing()
	}
	return append(opts, chain.Build()...)
}
