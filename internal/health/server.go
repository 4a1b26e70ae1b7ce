// Package health serves the grpc.health.v1 protocol and keeps the reported
// status in line with the backing stores.
package health

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"chat-realtime/internal/observability"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	service string
	checks  map[string]Check
	log     *zap.Logger
}

// NewServer builds the gRPC server. service is reported alongside the overall
// "" status.
func NewServer(service string, checks map[string]Check, log *zap.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
			observability.GRPCServerMetricsUnaryInterceptor(),
		),
	)
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{grpc: srv, health: hs, service: service, checks: checks, log: log}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	if s.service != "" {
		s.health.SetServingStatus(s.service, st)
	}
}

// Probe runs every check once and publishes the result.
func (s *Server) Probe(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn("health probe failed", zap.String("check", name), zap.Error(err))
			healthy = false
		}
	}
	if healthy {
		s.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Watch probes every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks the server as not serving and stops it, forcibly after timeout.
func (s *Server) Stop(timeout time.Duration) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.grpc.Stop()
	}
}
