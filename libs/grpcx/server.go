package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check reports whether a dependency is usable. A nil error means healthy.
type Check func(context.Context) error

// HealthServer is a gRPC server exposing the standard health service.
// The overall status ("" service) follows the supplied checks.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	name   string
	checks []Check
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger, serviceName string, checks ...Check) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerRequestIDInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return &HealthServer{srv: srv, health: hs, name: serviceName, checks: checks, logger: logger}
}

// Probe runs every check once and publishes the result.
func (s *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, check := range s.checks {
		if check == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if s.logger != nil {
				s.logger.Warn("health check failed", "service", s.name, "err", err)
			}
			break
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.name, status)
	return status
}

// Serve blocks until ctx is cancelled or the listener fails. Checks are re-run every interval.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Probe(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.srv.GracefulStop()
				return
			case <-ticker.C:
				s.Probe(ctx)
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	}
	if err := s.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
