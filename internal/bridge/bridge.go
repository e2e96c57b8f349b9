// Package bridge wires daemon clients to the gRPC and HTTP front-ends and
// runs them together.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/gpiobridge/internal/config"
	"github.com/rbright/gpiobridge/internal/daemon"
	"github.com/rbright/gpiobridge/internal/httpapi"
	"github.com/rbright/gpiobridge/internal/rpcserver"
	"golang.org/x/sync/errgroup"
)

// Bridge owns the daemon clients for one process.
type Bridge struct {
	cfg    config.Config
	logger *slog.Logger

	rpcClient  *daemon.Client
	httpClient *daemon.Client
	clients    []*daemon.Client
}

// New builds the daemon clients for cfg.Topology. No socket is opened.
func New(cfg config.Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, err := config.Validate(cfg); err != nil {
		return nil, err
	}

	b := &Bridge{cfg: cfg, logger: logger}
	switch cfg.Topology {
	case config.TopologySeparate:
		if cfg.RPC.Enable {
			c, err := b.newClient("rpc")
			if err != nil {
				return nil, err
			}
			b.rpcClient = c
		}
		if cfg.HTTP.Enable {
			c, err := b.newClient("http")
			if err != nil {
				b.closeClients()
				return nil, err
			}
			b.httpClient = c
		}
	default:
		c, err := b.newClient("shared")
		if err != nil {
			return nil, err
		}
		b.rpcClient, b.httpClient = c, c
	}
	return b, nil
}

func (b *Bridge) newClient(name string) (*daemon.Client, error) {
	d := b.cfg.Daemon
	c, err := daemon.New(daemon.Config{
		Address:         d.Address,
		Timeout:         d.Timeout(),
		ConnectAttempts: d.ConnectAttempts,
		Backoff:         d.Backoff(),
		QueueTimeout:    d.QueueTimeout(),
		Name:            name,
		Logger:          b.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon client %s: %w", name, err)
	}
	b.clients = append(b.clients, c)
	return c, nil
}

// Stats reports every client owned by the bridge.
func (b *Bridge) Stats() []daemon.Stats {
	out := make([]daemon.Stats, 0, len(b.clients))
	for _, c := range b.clients {
		out = append(out, c.Stats())
	}
	return out
}

// Run listens on the configured addresses and serves until ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	var rpcLis, httpLis net.Listener
	if b.cfg.RPC.Enable {
		lis, err := net.Listen("tcp", b.cfg.RPC.Listen)
		if err != nil {
			b.closeClients()
			return fmt.Errorf("listen rpc %s: %w", b.cfg.RPC.Listen, err)
		}
		rpcLis = lis
	}
	if b.cfg.HTTP.Enable {
		lis, err := net.Listen("tcp", b.cfg.HTTP.Listen)
		if err != nil {
			if rpcLis != nil {
				_ = rpcLis.Close()
			}
			b.closeClients()
			return fmt.Errorf("listen http %s: %w", b.cfg.HTTP.Listen, err)
		}
		httpLis = lis
	}
	return b.Serve(ctx, rpcLis, httpLis)
}

// Serve runs the front-ends on the given listeners. A nil listener leaves
// that front-end off. Serve owns the listeners: they are closed on every
// return path, as are the clients.
func (b *Bridge) Serve(ctx context.Context, rpcLis, httpLis net.Listener) error {
	defer b.closeClients()

	if rpcLis == nil && httpLis == nil {
		return errors.New("no front-end listener")
	}

	runners, err := b.frontEnds(rpcLis, httpLis)
	if err != nil {
		closeListeners(rpcLis, httpLis)
		return err
	}

	b.logger.Info("bridge starting",
		"topology", string(b.cfg.Topology),
		"daemon", b.cfg.Daemon.Address,
		"clients", len(b.clients),
	)
	if b.cfg.Daemon.EagerConnect {
		b.eagerConnect(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error { return run(gctx) })
	}

	err = g.Wait()
	b.logger.Info("bridge stopped")
	return err
}

// frontEnds builds every requested server before any of them starts.
func (b *Bridge) frontEnds(rpcLis, httpLis net.Listener) ([]func(context.Context) error, error) {
	var runners []func(context.Context) error

	if rpcLis != nil {
		if b.rpcClient == nil {
			return nil, errors.New("rpc listener given but the rpc front-end is disabled in config")
		}
		srv, err := rpcserver.New(rpcserver.Options{
			Backend:        b.rpcClient,
			Logger:         b.logger.With("frontend", "rpc"),
			Reflection:     b.cfg.RPC.Reflection,
			HealthInterval: b.cfg.RPC.HealthInterval(),
		})
		if err != nil {
			return nil, err
		}
		runners = append(runners, func(ctx context.Context) error { return srv.Serve(ctx, rpcLis) })
	}
	if httpLis != nil {
		if b.httpClient == nil {
			return nil, errors.New("http listener given but the http front-end is disabled in config")
		}
		srv, err := httpapi.New(httpapi.Options{
			Backend:        b.httpClient,
			Logger:         b.logger.With("frontend", "http"),
			CORSOrigins:    b.cfg.HTTP.CORSOrigins,
			StreamInterval: b.cfg.HTTP.StreamInterval(),
			Stats:          b.Stats,
			Topology:       string(b.cfg.Topology),
		})
		if err != nil {
			return nil, err
		}
		runners = append(runners, func(ctx context.Context) error { return srv.Serve(ctx, httpLis) })
	}
	return runners, nil
}

func closeListeners(listeners ...net.Listener) {
	for _, lis := range listeners {
		if lis != nil {
			_ = lis.Close()
		}
	}
}

// eagerConnect opens every client up front. Failure is only a warning: the
// next command reconnects on its own.
func (b *Bridge) eagerConnect(ctx context.Context) {
	for _, c := range b.clients {
		started := time.Now()
		if err := c.Connect(ctx); err != nil {
			b.logger.Warn("daemon not reachable at startup",
				"client", c.Stats().Name,
				"error", err.Error(),
			)
			continue
		}
		b.logger.Info("daemon connected",
			"client", c.Stats().Name,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

func (b *Bridge) closeClients() {
	for _, c := range b.clients {
		if err := c.Close(); err != nil {
			b.logger.Debug("close daemon client", "client", c.Stats().Name, "error", err.Error())
		}
	}
}
