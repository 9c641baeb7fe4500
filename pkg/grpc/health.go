package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// routerHealth reports two statuses: the overall server ("") follows the
// process lifetime, ServiceName follows routing readiness.
type routerHealth struct {
	server *health.Server
}

// registerHealth attaches the health service to s with both statuses SERVING.
func registerHealth(s *grpc.Server) *routerHealth {
	h := &routerHealth{server: health.NewServer()}
	grpc_health_v1.RegisterHealthServer(s, h.server)
	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.setReady(true)
	return h
}

func (h *routerHealth) setReady(ready bool) {
	h.server.SetServingStatus(ServiceName, servingStatus(ready))
}

// drain reports NOT_SERVING for every service and ignores later updates.
func (h *routerHealth) drain() {
	h.server.Shutdown()
}

func servingStatus(ok bool) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if ok {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}
