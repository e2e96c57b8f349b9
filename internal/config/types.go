// Package config resolves, parses, validates, and defaults gpiobridge configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by gpiobridge.
type Config struct {
	Daemon   DaemonConfig
	Topology Topology
	RPC      RPCConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

// DaemonConfig controls the connection to the GPIO simulation daemon.
type DaemonConfig struct {
	Address         string
	TimeoutMS       int
	ConnectAttempts int
	BackoffMS       int
	QueueTimeoutMS  int
	EagerConnect    bool
}

func (d DaemonConfig) Timeout() time.Duration      { return ms(d.TimeoutMS) }
func (d DaemonConfig) Backoff() time.Duration      { return ms(d.BackoffMS) }
func (d DaemonConfig) QueueTimeout() time.Duration { return ms(d.QueueTimeoutMS) }

// Topology selects how front-ends share daemon connections.
type Topology string

const (
	// TopologyShared routes both front-ends through one connection.
	TopologyShared Topology = "shared"
	// TopologySeparate gives each front-end its own connection.
	TopologySeparate Topology = "separate"
)

// RPCConfig controls the gRPC front-end.
type RPCConfig struct {
	Enable           bool
	Listen           string
	Reflection       bool
	HealthIntervalMS int
}

func (r RPCConfig) HealthInterval() time.Duration { return ms(r.HealthIntervalMS) }

// HTTPConfig controls the HTTP/JSON front-end.
type HTTPConfig struct {
	Enable           bool
	Listen           string
	CORSOrigins      []string
	StreamIntervalMS int
}

func (h HTTPConfig) StreamInterval() time.Duration { return ms(h.StreamIntervalMS) }

// LogConfig controls runtime log output.
type LogConfig struct {
	Level  string
	Stderr bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Field   string
	Message string
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
