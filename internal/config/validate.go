package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rbright/gpiobridge/internal/daemon"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if _, _, err := daemon.ParseAddress(cfg.Daemon.Address); err != nil {
		return nil, fmt.Errorf("daemon.address: %w", err)
	}
	if cfg.Daemon.TimeoutMS <= 0 {
		return nil, fmt.Errorf("daemon.timeout_ms must be > 0")
	}
	if cfg.Daemon.ConnectAttempts < 1 {
		return nil, fmt.Errorf("daemon.connect_attempts must be >= 1")
	}
	if cfg.Daemon.BackoffMS < 0 {
		return nil, fmt.Errorf("daemon.backoff_ms must be >= 0")
	}
	if cfg.Daemon.QueueTimeoutMS < 0 {
		return nil, fmt.Errorf("daemon.queue_timeout_ms must be >= 0")
	}

	switch cfg.Topology {
	case TopologyShared, TopologySeparate:
	default:
		return nil, fmt.Errorf("topology must be one of: shared, separate")
	}

	if !cfg.RPC.Enable && !cfg.HTTP.Enable {
		return nil, fmt.Errorf("at least one of rpc.enable or http.enable must be true")
	}

	if cfg.RPC.Enable {
		if err := validateListen("rpc.listen", cfg.RPC.Listen); err != nil {
			return nil, err
		}
	}
	if cfg.RPC.HealthIntervalMS < 0 {
		return nil, fmt.Errorf("rpc.health_interval_ms must be >= 0")
	}
	if cfg.RPC.Enable && cfg.RPC.HealthIntervalMS == 0 {
		warnings = append(warnings, Warning{Field: "rpc.health_interval_ms", Message: "health_interval_ms=0; gRPC health is probed once at startup only"})
	}

	if cfg.HTTP.Enable {
		if err := validateListen("http.listen", cfg.HTTP.Listen); err != nil {
			return nil, err
		}
	}
	if cfg.HTTP.StreamIntervalMS <= 0 {
		return nil, fmt.Errorf("http.stream_interval_ms must be > 0")
	}
	for _, origin := range cfg.HTTP.CORSOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("http.cors_origins entry %q must look like scheme://host[:port]", origin)
		}
		if u.Path != "" || u.RawQuery != "" {
			warnings = append(warnings, Warning{Field: "http.cors_origins", Message: fmt.Sprintf("origin %q has a path or query; browsers never send one, so it will not match", origin)})
		}
	}

	if cfg.Topology == TopologySeparate && !(cfg.RPC.Enable && cfg.HTTP.Enable) {
		warnings = append(warnings, Warning{Field: "topology", Message: "topology=separate with a single front-end enabled behaves like shared"})
	}
	if cfg.Daemon.QueueTimeoutMS > 0 && cfg.Daemon.QueueTimeoutMS < cfg.Daemon.TimeoutMS {
		warnings = append(warnings, Warning{Field: "daemon.queue_timeout_ms", Message: "queue_timeout_ms is shorter than timeout_ms; callers may see busy errors behind one slow exchange"})
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

func validateListen(field, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
