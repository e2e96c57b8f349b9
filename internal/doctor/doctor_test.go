package doctor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/gpiobridge/internal/config"
	"github.com/rbright/gpiobridge/internal/daemontest"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckConfigMissingFileStillPasses(t *testing.T) {
	check := checkConfig(config.Loaded{Path: "/nope/config.jsonc"})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "using defaults")

	check = checkConfig(config.Loaded{Path: "/etc/config.jsonc", Exists: true})
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "loaded")
}

func TestCheckDaemonAddress(t *testing.T) {
	d := daemontest.Start(t, daemontest.Canned("LED 0 0"))
	require.True(t, checkDaemonAddress(d.Address()).Pass)

	missing := checkDaemonAddress("unix://" + filepath.Join(t.TempDir(), "absent.sock"))
	require.False(t, missing.Pass)
	require.Contains(t, missing.Message, "no such file")

	regular := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(regular, nil, 0o600))
	notSocket := checkDaemonAddress(regular)
	require.False(t, notSocket.Pass)
	require.Contains(t, notSocket.Message, "not a unix socket")

	tcp := checkDaemonAddress("tcp://127.0.0.1:7000")
	require.True(t, tcp.Pass)
	require.Contains(t, tcp.Message, "tcp 127.0.0.1:7000")

	bad := checkDaemonAddress("ftp://nope")
	require.False(t, bad.Pass)
}

func TestCheckDaemonRoundTrip(t *testing.T) {
	d := daemontest.Start(t, daemontest.Canned("LED 1 0 1"))
	cfg := config.Default().Daemon
	cfg.Address = d.Address()

	check := checkDaemonRoundTrip(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)
	require.Contains(t, check.Message, "[1 0 1]")
	require.Equal(t, []string{"GETLED"}, d.Lines())
}

func TestCheckDaemonRoundTripReportsDecodeFailure(t *testing.T) {
	d := daemontest.Start(t, daemontest.Canned("garbage"))
	cfg := config.Default().Daemon
	cfg.Address = d.Address()

	check := checkDaemonRoundTrip(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "garbage")
}

func TestCheckListen(t *testing.T) {
	require.True(t, checkListen("rpc.listen", false, "ignored").Pass)
	require.True(t, checkListen("rpc.listen", true, "127.0.0.1:0").Pass)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	check := checkListen("http.listen", true, taken.Addr().String())
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "cannot bind")
}

func TestRunSkipsRoundTripWhenSocketMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Daemon.Address = "unix://" + filepath.Join(t.TempDir(), "absent.sock")
	cfg.RPC.Listen = "127.0.0.1:0"
	cfg.HTTP.Listen = "127.0.0.1:0"

	report := Run(context.Background(), config.Loaded{Path: "cfg.jsonc", Config: cfg})
	require.False(t, report.OK())

	names := []string{}
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "daemon.address", "rpc.listen", "http.listen"}, names)
}

func TestRunAllChecksPass(t *testing.T) {
	d := daemontest.Start(t, daemontest.Counter())
	cfg := config.Default()
	cfg.Daemon.Address = d.Address()
	cfg.RPC.Listen = "127.0.0.1:0"
	cfg.HTTP.Enable = false

	report := Run(context.Background(), config.Loaded{Path: "cfg.jsonc", Config: cfg, Exists: true})
	require.True(t, report.OK(), report.String())
	require.Len(t, report.Checks, 5)
}
