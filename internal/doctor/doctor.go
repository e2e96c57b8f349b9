// Package doctor runs runtime readiness diagnostics for config, the daemon
// socket, and the front-end listen addresses.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rbright/gpiobridge/internal/config"
	"github.com/rbright/gpiobridge/internal/daemon"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config/daemon/listener checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	addrCheck := checkDaemonAddress(cfg.Config.Daemon.Address)
	checks = append(checks, addrCheck)
	if addrCheck.Pass {
		checks = append(checks, checkDaemonRoundTrip(ctx, cfg.Config.Daemon))
	}

	checks = append(checks,
		checkListen("rpc.listen", cfg.Config.RPC.Enable, cfg.Config.RPC.Listen),
		checkListen("http.listen", cfg.Config.HTTP.Enable, cfg.Config.HTTP.Listen),
	)
	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkDaemonAddress validates the address and, for unix sockets, that the
// socket file exists.
func checkDaemonAddress(raw string) Check {
	network, address, err := daemon.ParseAddress(raw)
	if err != nil {
		return Check{Name: "daemon.address", Pass: false, Message: err.Error()}
	}
	if network != "unix" {
		return Check{Name: "daemon.address", Pass: true, Message: fmt.Sprintf("%s %s", network, address)}
	}

	info, err := os.Stat(address)
	if err != nil {
		return Check{Name: "daemon.address", Pass: false, Message: fmt.Sprintf("socket %s: %v", address, err)}
	}
	if info.Mode()&os.ModeSocket == 0 {
		return Check{Name: "daemon.address", Pass: false, Message: fmt.Sprintf("%s is not a unix socket", address)}
	}
	return Check{Name: "daemon.address", Pass: true, Message: fmt.Sprintf("socket %s present", address)}
}

// checkDaemonRoundTrip sends one GETLED through a short-lived client.
func checkDaemonRoundTrip(ctx context.Context, cfg config.DaemonConfig) Check {
	client, err := daemon.New(daemon.Config{
		Address:         cfg.Address,
		Timeout:         cfg.Timeout(),
		ConnectAttempts: 1,
		Name:            "doctor",
	})
	if err != nil {
		return Check{Name: "daemon.roundtrip", Pass: false, Message: err.Error()}
	}
	defer client.Close()

	started := time.Now()
	leds, err := client.LEDs(ctx)
	if err != nil {
		return Check{Name: "daemon.roundtrip", Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    "daemon.roundtrip",
		Pass:    true,
		Message: fmt.Sprintf("GETLED answered %v in %s", []int(leds), time.Since(started).Round(time.Millisecond)),
	}
}

// checkListen verifies an enabled front-end can bind its address.
func checkListen(name string, enabled bool, addr string) Check {
	if !enabled {
		return Check{Name: name, Pass: true, Message: "disabled"}
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot bind %s: %v", addr, err)}
	}
	_ = lis.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is free", addr)}
}
