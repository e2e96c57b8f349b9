package rpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/gpiobridge/internal/gpiopb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	defaultProbeTimeout = 2 * time.Second
	shutdownGrace       = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	Backend Backend
	Logger  *slog.Logger

	// Reflection registers the gRPC server reflection service.
	Reflection bool
	// HealthInterval is the period between daemon health probes. Zero
	// probes once at startup only.
	HealthInterval time.Duration
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration
}

// Server wraps a grpc.Server carrying GpioDemo, health and (optionally)
// reflection.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	watcher *healthWatcher
	logger  *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("rpc server backend is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}

	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	gpiopb.RegisterGpioDemoServer(gs, &service{backend: opts.Backend})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(gpiopb.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	if opts.Reflection {
		reflection.Register(gs)
	}

	return &Server{
		grpc:   gs,
		health: hs,
		watcher: &healthWatcher{
			backend:  opts.Backend,
			health:   hs,
			interval: opts.HealthInterval,
			timeout:  opts.ProbeTimeout,
			logger:   logger,
			last:     healthpb.HealthCheckResponse_NOT_SERVING,
		},
		logger: logger,
	}, nil
}

// Serve accepts RPCs on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpc.Serve(lis)
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go s.watcher.run(watchCtx)

	s.logger.Info("grpc listening", "address", lis.Addr().String())

	select {
	case <-ctx.Done():
		s.stop()
		<-serveErr
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	}
}

func (s *Server) stop() {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		s.logger.Warn("grpc graceful stop timed out; forcing")
		s.grpc.Stop()
	}
}
