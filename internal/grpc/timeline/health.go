package timeline

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"openprotect-lab/pkg/logger"
)

// DefaultHealthInterval is how often dependencies are probed
const DefaultHealthInterval = 10 * time.Second

// Pinger is a dependency whose reachability gates the serving status
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealthServer registers the gRPC health check service and probes
// the given dependencies until ctx is cancelled
func RegisterHealthServer(ctx context.Context, grpcServer *grpc.Server, interval time.Duration, log *logger.Logger, deps ...Pinger) *health.Server {
	log = log.WithComponent("grpc-health")
	healthServer := health.NewServer()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	if len(deps) == 0 {
		return healthServer
	}
	if interval <= 0 {
		interval = DefaultHealthInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			status := probe(ctx, deps)
			healthServer.SetServingStatus("", status)
			healthServer.SetServingStatus(ServiceName, status)
			if status != grpc_health_v1.HealthCheckResponse_SERVING {
				log.Warn().Msg("dependency unreachable, reporting NOT_SERVING")
			}

			select {
			case <-ctx.Done():
				healthServer.Shutdown()
				return
			case <-ticker.C:
			}
		}
	}()

	return healthServer
}

func probe(ctx context.Context, deps []Pinger) grpc_health_v1.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for _, d := range deps {
		if err := d.Ping(pingCtx); err != nil {
			return grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}
