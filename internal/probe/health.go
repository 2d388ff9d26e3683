package probe

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/kvasilopoulos/contact-center/internal/breaker"
)

// ServiceName is the gRPC health service that mirrors breaker state.
const ServiceName = "contactcenter.Classifier"

// Health serves the standard gRPC health protocol. The classifier service is
// NOT_SERVING while any breaker is open.
type Health struct {
	srv    *health.Server
	logger *slog.Logger

	mu     sync.Mutex
	open   map[string]bool
	server *grpc.Server
}

func New(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Health{srv: health.NewServer(), logger: logger, open: make(map[string]bool)}
	h.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return h
}

// OnBreakerChange matches breaker.StateChangeFunc.
func (h *Health) OnBreakerChange(name string, _, to breaker.State) {
	h.mu.Lock()
	if to == breaker.StateOpen {
		h.open[name] = true
	} else {
		delete(h.open, name)
	}
	status := healthpb.HealthCheckResponse_SERVING
	if len(h.open) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.mu.Unlock()

	h.srv.SetServingStatus(ServiceName, status)
	h.logger.Debug("health status updated", "service", ServiceName, "status", status.String(), "breaker", name)
}

// Serve blocks serving health checks on lis.
func (h *Health) Serve(lis net.Listener) error {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.srv)

	h.mu.Lock()
	h.server = gs
	h.mu.Unlock()

	h.logger.Info("grpc health server listening", "addr", lis.Addr().String())
	return gs.Serve(lis)
}

// ListenAndServe listens on host:port and serves.
func (h *Health) ListenAndServe(host string, port int) error {
	lis, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return fmt.Errorf("grpc health listen: %w", err)
	}
	return h.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops the server.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
	h.mu.Lock()
	gs := h.server
	h.mu.Unlock()
	if gs != nil {
		gs.GracefulStop()
	}
}
