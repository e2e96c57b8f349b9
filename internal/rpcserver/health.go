package rpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/gpiobridge/internal/gpiopb"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthWatcher keeps the standard health service in line with whether
// the daemon answers GETLED.
type healthWatcher struct {
	backend  Backend
	health   *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	last healthpb.HealthCheckResponse_ServingStatus
}

func (w *healthWatcher) run(ctx context.Context) {
	w.probe(ctx)
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

// probe runs one health check and publishes the result for both the
// server-wide ("") and the GpioDemo service entries.
func (w *healthWatcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	next := healthpb.HealthCheckResponse_SERVING
	_, err := w.backend.LEDs(probeCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		next = healthpb.HealthCheckResponse_NOT_SERVING
	}

	if next != w.last {
		if err != nil {
			w.logger.Warn("daemon not ready", "error", err.Error())
		} else {
			w.logger.Info("daemon ready")
		}
	}
	w.last = next

	w.health.SetServingStatus("", next)
	w.health.SetServingStatus(gpiopb.ServiceName, next)
}
