// Package httpapi serves the JSON HTTP API and LED websocket stream on top
// of a daemon backend.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rbright/gpiobridge/internal/daemon"
	"github.com/rbright/gpiobridge/internal/linecodec"
)

const (
	defaultStreamInterval = 250 * time.Millisecond
	minStreamInterval     = 20 * time.Millisecond
	shutdownGrace         = 5 * time.Second
)

// DefaultCORSOrigins are the local front-end dev servers allowed by default.
var DefaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:3000",
	"http://127.0.0.1:3000",
}

// Backend is the daemon surface the HTTP API needs. *daemon.Client
// satisfies it.
type Backend interface {
	Press(ctx context.Context, index int) (string, error)
	Release(ctx context.Context, index int) (string, error)
	LEDs(ctx context.Context) (linecodec.LEDState, error)
	Step(ctx context.Context, times, intervalMS int) (string, error)
}

// Options configures a Server.
type Options struct {
	Backend Backend
	Logger  *slog.Logger

	// CORSOrigins lists exact allowed origins. Nil uses DefaultCORSOrigins.
	CORSOrigins []string
	// StreamInterval is the default poll period for /api/leds/stream.
	StreamInterval time.Duration
	// Stats reports client counters for /api/stats. Nil reports none.
	Stats func() []daemon.Stats
	// Topology is echoed by /api/stats.
	Topology string
}

// Server is the HTTP front-end.
type Server struct {
	backend        Backend
	logger         *slog.Logger
	origins        []string
	streamInterval time.Duration
	stats          func() []daemon.Stats
	topology       string

	handler http.Handler
}

func New(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("http server backend is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	origins := opts.CORSOrigins
	if origins == nil {
		origins = DefaultCORSOrigins
	}
	interval := opts.StreamInterval
	if interval <= 0 {
		interval = defaultStreamInterval
	}

	s := &Server{
		backend:        opts.Backend,
		logger:         logger,
		origins:        origins,
		streamInterval: interval,
		stats:          opts.Stats,
		topology:       opts.Topology,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/leds", s.handleLEDs)
	mux.HandleFunc("POST /api/button", s.handleButton)
	mux.HandleFunc("POST /api/step", s.handleStep)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/leds/stream", s.handleStream)

	s.handler = requestID(accessLog(logger, cors(origins, mux)))
	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts HTTP requests on lis until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()
	s.logger.Info("http listening", "address", lis.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http graceful shutdown failed; forcing", "error", err.Error())
			_ = srv.Close()
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
