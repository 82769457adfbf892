package probe

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/drivewatch/drivewatch/internal/config"
)

// Service is the health service name reported alongside the overall ("")
// status.
const Service = "drivewatch.Monitor"

// Status reports whether the monitored pipeline is up. *monitor.Monitor
// satisfies it.
type Status interface {
	Running() bool
}

// Server is the gRPC health endpoint for the alert pipeline.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	status Status
}

// New creates a Server guarded by auth. Both services start NOT_SERVING
// until Track observes a running pipeline.
func New(status Status, auth config.AuthConfig) *Server {
	s := &Server{
		grpc:   grpc.NewServer(interceptors(auth)...),
		health: health.NewServer(),
		status: status,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("probe: gRPC health listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Track refreshes the serving status every interval until ctx is cancelled,
// then marks both services NOT_SERVING.
func (s *Server) Track(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	s.Refresh()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Refresh()
		}
	}
}

// Refresh sets the serving status from the pipeline state once.
func (s *Server) Refresh() {
	if s.status.Running() {
		s.set(healthpb.HealthCheckResponse_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Stop drains in-flight calls and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
}
