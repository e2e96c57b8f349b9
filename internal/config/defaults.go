package config

// DefaultDaemonAddress is where the simulation daemon listens out of the box.
const DefaultDaemonAddress = "unix:///tmp/gpio_sim.sock"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			Address:         DefaultDaemonAddress,
			TimeoutMS:       1000,
			ConnectAttempts: 3,
			BackoffMS:       100,
			QueueTimeoutMS:  0,
			EagerConnect:    true,
		},
		Topology: TopologyShared,
		RPC: RPCConfig{
			Enable:           true,
			Listen:           "[::]:50051",
			Reflection:       true,
			HealthIntervalMS: 5000,
		},
		HTTP: HTTPConfig{
			Enable: true,
			Listen: "0.0.0.0:8000",
			CORSOrigins: []string{
				"http://localhost:5173",
				"http://127.0.0.1:5173",
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
			StreamIntervalMS: 250,
		},
		Log: LogConfig{
			Level:  "info",
			Stderr: false,
		},
	}
}
