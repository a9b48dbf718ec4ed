package server

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService serves the standard grpc.health.v1 protocol so orchestrators
// can probe the process. It reports SERVING while running.
type HealthService struct {
	addr   string
	logger *zap.Logger
	health *health.Server
	grpc   *grpc.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthService creates a health endpoint bound to addr. The overall ("")
// status is NOT_SERVING until Start.
//
// Precondition: addr must be a host:port; logger must be non-nil.
func NewHealthService(addr string, logger *zap.Logger) *HealthService {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthService{addr: addr, logger: logger, health: hs, grpc: srv}
}

// Start listens on the configured address and serves until Stop.
func (h *HealthService) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}
	h.mu.Lock()
	h.listener = lis
	h.mu.Unlock()

	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	return h.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight probes.
func (h *HealthService) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// SetServing reports the status of a named component.
func (h *HealthService) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// Addr returns the bound address, or empty string before Start.
func (h *HealthService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
