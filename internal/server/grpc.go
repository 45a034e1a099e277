package server

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServer is a gRPC server carrying only the standard health service and reflection.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(gs)
	return &HealthServer{grpc: gs, health: hs, logger: logger}
}

// Serve blocks until Stop is called or the listener fails.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info("grpc.serve", "addr", lis.Addr().String())
	return h.grpc.Serve(lis)
}

// Stop flips every service to NOT_SERVING and drains in-flight calls.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
	h.logger.Info("grpc.stopped")
}
