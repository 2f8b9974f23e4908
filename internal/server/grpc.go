package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ToolService is the health service name that tracks the mapping tool.
const ToolService = "claude"

// NewGRPCServer returns a gRPC server carrying the standard health service
// and reflection for grpcurl.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ToolService, healthpb.HealthCheckResponse_UNKNOWN)
	reflection.Register(gs)
	return gs, hs
}

// WatchToolHealth probes the tool every interval and publishes the result
// under ToolService until ctx ends.
func WatchToolHealth(ctx context.Context, hs *health.Server, tool ToolHealth, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	last := healthpb.HealthCheckResponse_UNKNOWN
	probe := func() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if tool.HealthCheck(ctx) {
			st = healthpb.HealthCheckResponse_SERVING
		}
		if st != last {
			logger.Info("health.tool.changed", "service", ToolService, "status", st.String())
			last = st
		}
		hs.SetServingStatus(ToolService, st)
	}

	probe()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			probe()
		}
	}
}
