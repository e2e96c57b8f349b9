package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbright/gpiobridge/internal/config"
	"github.com/rbright/gpiobridge/internal/daemontest"
	"github.com/rbright/gpiobridge/internal/gpiopb"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(address string) config.Config {
	cfg := config.Default()
	cfg.Daemon.Address = address
	cfg.Daemon.TimeoutMS = 500
	cfg.Daemon.BackoffMS = 10
	cfg.RPC.Listen = "127.0.0.1:0"
	cfg.HTTP.Listen = "127.0.0.1:0"
	return cfg
}

type running struct {
	rpcAddr  string
	httpAddr string
	cancel   context.CancelFunc
	done     chan error
}

func serve(t *testing.T, b *Bridge) running {
	t.Helper()

	rpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, rpcLis, httpLis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return running{
		rpcAddr:  rpcLis.Addr().String(),
		httpAddr: httpLis.Addr().String(),
		cancel:   cancel,
		done:     done,
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func TestSharedTopologyServesBothFrontEnds(t *testing.T) {
	d := daemontest.Start(t, daemontest.Counter())

	b, err := New(testConfig(d.Address()), nil)
	require.NoError(t, err)
	r := serve(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := gpiopb.Dial(ctx, r.rpcAddr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	client := gpiopb.NewClient(conn)

	_, err = client.PressButton(ctx, gpiopb.ButtonReq{Index: 0})
	require.NoError(t, err)
	_, err = client.ReleaseButton(ctx, gpiopb.ButtonReq{Index: 0})
	require.NoError(t, err)

	var leds struct {
		Leds []int `json:"leds"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+r.httpAddr+"/api/leds", &leds))
	require.Equal(t, []int{1, 0, 0, 0}, leds.Leds)

	var stats struct {
		Topology string `json:"topology"`
		Clients  []struct {
			Name string `json:"name"`
		} `json:"clients"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+r.httpAddr+"/api/stats", &stats))
	require.Equal(t, "shared", stats.Topology)
	require.Len(t, stats.Clients, 1)
	require.Equal(t, "shared", stats.Clients[0].Name)

	require.Equal(t, 1, d.Connections())
	require.Empty(t, d.Violations())
}

func TestSeparateTopologyUsesOneConnectionPerFrontEnd(t *testing.T) {
	d := daemontest.Start(t, daemontest.Counter())

	cfg := testConfig(d.Address())
	cfg.Topology = config.TopologySeparate
	b, err := New(cfg, nil)
	require.NoError(t, err)

	names := []string{}
	for _, s := range b.Stats() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"rpc", "http"}, names)

	r := serve(t, b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := gpiopb.Dial(ctx, r.rpcAddr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = gpiopb.NewClient(conn).GetLedState(ctx)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getJSON(t, "http://"+r.httpAddr+"/api/leds", nil))

	require.Equal(t, 2, d.Connections())
}

func TestSeparateTopologySkipsDisabledFrontEnd(t *testing.T) {
	cfg := testConfig(config.DefaultDaemonAddress)
	cfg.Topology = config.TopologySeparate
	cfg.HTTP.Enable = false

	b, err := New(cfg, nil)
	require.NoError(t, err)
	require.Len(t, b.Stats(), 1)
	require.Equal(t, "rpc", b.Stats()[0].Name)
}

func TestEagerConnectFailureOnlyWarns(t *testing.T) {
	missing := "unix://" + filepath.Join(t.TempDir(), "absent.sock")
	cfg := testConfig(missing)
	cfg.Daemon.ConnectAttempts = 1

	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	b, err := New(cfg, logger)
	require.NoError(t, err)
	r := serve(t, b)

	var detail struct {
		Detail string `json:"detail"`
	}
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, "http://"+r.httpAddr+"/api/health", &detail))
	require.Contains(t, detail.Detail, "daemon not ready")
	require.Contains(t, logs.String(), "daemon not reachable at startup")
	require.Contains(t, logs.String(), `"topology":"shared"`)
}

func TestServeStopsOnCancelAndClosesClients(t *testing.T) {
	d := daemontest.Start(t, daemontest.Counter())

	b, err := New(testConfig(d.Address()), nil)
	require.NoError(t, err)
	r := serve(t, b)

	require.Equal(t, http.StatusOK, getJSON(t, "http://"+r.httpAddr+"/api/health", nil))

	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
		r.done <- err
	case <-time.After(10 * time.Second):
		t.Fatal("bridge did not stop")
	}

	_, err = b.rpcClient.LEDs(context.Background())
	require.Error(t, err)
}

func TestServeRequiresAListener(t *testing.T) {
	b, err := New(testConfig(config.DefaultDaemonAddress), nil)
	require.NoError(t, err)
	require.Error(t, b.Serve(context.Background(), nil, nil))
}

func TestServeSetupFailureStartsNothingAndClosesListeners(t *testing.T) {
	cfg := testConfig(config.DefaultDaemonAddress)
	cfg.Topology = config.TopologySeparate
	cfg.HTTP.Enable = false
	b, err := New(cfg, nil)
	require.NoError(t, err)

	rpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = b.Serve(context.Background(), rpcLis, httpLis)
	require.Error(t, err)
	require.Contains(t, err.Error(), "http front-end is disabled")

	_, err = rpcLis.Accept()
	require.ErrorIs(t, err, net.ErrClosed)
	_, err = httpLis.Accept()
	require.ErrorIs(t, err, net.ErrClosed)
}

func TestRunListensOnConfiguredAddresses(t *testing.T) {
	d := daemontest.Start(t, daemontest.Counter())

	cfg := testConfig(d.Address())
	cfg.RPC.Enable = false
	b, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRunReportsListenFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig(config.DefaultDaemonAddress)
	cfg.HTTP.Listen = taken.Addr().String()
	cfg.Daemon.EagerConnect = false
	b, err := New(cfg, nil)
	require.NoError(t, err)

	err = b.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen http")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(config.DefaultDaemonAddress)
	cfg.Daemon.ConnectAttempts = 0

	_, err := New(cfg, nil)
	require.Error(t, err)
}
