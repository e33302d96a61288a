package grpc

import (
	"context"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"referral-ledger-backend/internal/api/grpc/interceptor"
	"referral-ledger-backend/internal/logger"
	"referral-ledger-backend/internal/security"
)

// LedgerServiceName is the health-check service key of the ledger store.
const LedgerServiceName = "referral.v1.Ledger"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the gRPC endpoint of the service. It exposes the standard health
// protocol, driven by periodic store pings.
type Server struct {
	grpc     *gogrpc.Server
	health   *health.Server
	store    Pinger
	clock    clockwork.Clock
	interval time.Duration
}

func NewServer(store Pinger, tm security.TokenManager, clock clockwork.Clock, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	auth := interceptor.NewAuthInterceptor(tm)
	grpcServer := gogrpc.NewServer(
		gogrpc.ChainUnaryInterceptor(interceptor.Recovery(), auth.Unary()),
		gogrpc.StreamInterceptor(auth.Stream()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(LedgerServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpc:     grpcServer,
		health:   healthServer,
		store:    store,
		clock:    clock,
		interval: interval,
	}
}

func (s *Server) Serve(lis net.Listener) error {
	logger.Info("gRPC server listening", "address", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Watch pings the store every interval and updates the serving status until
// ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	s.check(ctx)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.check(ctx)
		}
	}
}

func (s *Server) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.store.Ping(pingCtx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		logger.WarnContext(ctx, "Store ping failed", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(LedgerServiceName, status)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
