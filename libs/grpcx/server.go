package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/bookly/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewServer(logger *slog.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	)
}

// HealthReporter mirrors the /readyz checks into the standard gRPC health service.
type HealthReporter struct {
	server  *health.Server
	service string
	checks  []runtime.ReadyCheck
	logger  *slog.Logger
}

func NewHealthReporter(logger *slog.Logger, service string, checks ...runtime.ReadyCheck) *HealthReporter {
	return &HealthReporter{
		server:  health.NewServer(),
		service: service,
		checks:  checks,
		logger:  logger,
	}
}

func (h *HealthReporter) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.server)
}

// Refresh runs the checks once and publishes the result for both "" and the service name.
func (h *HealthReporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if failures := runtime.RunChecks(ctx, h.checks); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("health checks failing", "failures", failures)
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
	return status
}

func (h *HealthReporter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	h.Refresh(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Serve listens on addr until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, srv *grpc.Server, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logger.Info("grpc server starting", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}
