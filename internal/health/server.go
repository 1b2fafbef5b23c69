// Package health exposes the standard gRPC health service for the process.
package health

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name clients may check in addition to the overall "" service.
const ServiceName = "emojirooms.Rooms"

// Checker is a dependency whose reachability decides the serving status.
type Checker interface {
	Ping(ctx context.Context) error
}

// Server serves grpc.health.v1.Health.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	checks []Checker
	logger *slog.Logger
}

// NewServer creates a health server reporting SERVING until a check fails
// or Shutdown is called.
func NewServer(logger *slog.Logger, checks ...Checker) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		checks: checks,
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Watch re-runs the checks every interval until ctx ends.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs every dependency check once and updates the serving status.
func (s *Server) Check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.Ping(checkCtx)
		cancel()
		if err != nil {
			s.logger.Error("Health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.setStatus(status)
}

// Shutdown reports NOT_SERVING to watchers and stops the server gracefully.
// Open Watch streams keep a graceful stop waiting, so once ctx ends the
// remaining connections are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.logger.Warn("gRPC graceful stop timed out, forcing", "error", ctx.Err())
		s.grpc.Stop()
		<-stopped
	}
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
