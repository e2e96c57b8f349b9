package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rbright/gpiobridge/internal/daemon"
	"github.com/rbright/gpiobridge/internal/daemontest"
	"github.com/rbright/gpiobridge/internal/linecodec"
	"github.com/stretchr/testify/require"
)

func TestEndToEndThroughDaemon(t *testing.T) {
	d := daemontest.Start(t, daemontest.Canned("LED 1 0"))
	backend, err := daemon.New(daemon.Config{Address: d.Address(), Backoff: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	ts := startServer(t, Options{Backend: backend})

	code, body := do(t, ts, http.MethodPost, "/api/button", `{"index":0,"action":"press"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"msg":"OK"}`, body)

	code, body = do(t, ts, http.MethodPost, "/api/button", `{"index":0,"action":"release"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"msg":"OK"}`, body)

	code, body = do(t, ts, http.MethodGet, "/api/leds", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"leds":[1,0]}`, body)

	require.Equal(t, []string{"PRESS 0", "RELEASE 0", "GETLED"}, d.Lines())
}

func TestHealth(t *testing.T) {
	backend := &fakeBackend{leds: linecodec.LEDState{0}}
	ts := startServer(t, Options{Backend: backend})

	code, body := do(t, ts, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"msg":"ok"}`, body)

	backend.setErr(fmt.Errorf("%w: refused", daemon.ErrConnect))
	code, body = do(t, ts, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, detail(t, body), "daemon not ready: daemon connection failed: refused")
}

func TestUpstreamFailuresAreBadGateway(t *testing.T) {
	backend := &fakeBackend{err: fmt.Errorf("%w: %q", daemon.ErrDecode, "ERR")}
	ts := startServer(t, Options{Backend: backend})

	code, body := do(t, ts, http.MethodGet, "/api/leds", "")
	require.Equal(t, http.StatusBadGateway, code)
	require.Contains(t, detail(t, body), "unexpected daemon response")

	code, _ = do(t, ts, http.MethodPost, "/api/button", `{"index":1,"action":"press"}`)
	require.Equal(t, http.StatusBadGateway, code)

	code, _ = do(t, ts, http.MethodPost, "/api/step", `{}`)
	require.Equal(t, http.StatusBadGateway, code)
}

func TestButtonValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "malformed", body: `{"index":`, code: http.StatusBadRequest},
		{name: "empty body", body: ``, code: http.StatusBadRequest},
		{name: "wrong type", body: `{"index":"zero","action":"press"}`, code: http.StatusBadRequest},
		{name: "missing index", body: `{"action":"press"}`, code: http.StatusUnprocessableEntity},
		{name: "negative index", body: `{"index":-1,"action":"press"}`, code: http.StatusUnprocessableEntity},
		{name: "bad action", body: `{"index":0,"action":"toggle"}`, code: http.StatusUnprocessableEntity},
		{name: "missing action", body: `{"index":0}`, code: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			ts := startServer(t, Options{Backend: backend})

			code, body := do(t, ts, http.MethodPost, "/api/button", tt.body)
			require.Equal(t, tt.code, code)
			require.NotEmpty(t, detail(t, body))
			require.Empty(t, backend.calls())
		})
	}
}

func TestStepDefaultsAndValidation(t *testing.T) {
	backend := &fakeBackend{}
	ts := startServer(t, Options{Backend: backend})

	code, body := do(t, ts, http.MethodPost, "/api/step", `{}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"msg":"OK"}`, body)

	code, _ = do(t, ts, http.MethodPost, "/api/step", ``)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, ts, http.MethodPost, "/api/step", `{"times":3,"interval_ms":40}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, ts, http.MethodPost, "/api/step", `{"times":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = do(t, ts, http.MethodPost, "/api/step", `{"interval_ms":-5}`)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = do(t, ts, http.MethodPost, "/api/step", `[1,2]`)
	require.Equal(t, http.StatusBadRequest, code)

	require.Equal(t, []string{"step 1 0", "step 1 0", "step 3 40"}, backend.calls())
}

func TestMethodMismatchIsRejected(t *testing.T) {
	ts := startServer(t, Options{Backend: &fakeBackend{}})

	code, _ := do(t, ts, http.MethodGet, "/api/button", "")
	require.Equal(t, http.StatusMethodNotAllowed, code)
	code, _ = do(t, ts, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestStatsReportsClients(t *testing.T) {
	ts := startServer(t, Options{
		Backend:  &fakeBackend{},
		Topology: "separate",
		Stats: func() []daemon.Stats {
			return []daemon.Stats{{Name: "rpc", Exchanges: 2}, {Name: "http", Failures: 1}}
		},
	})

	code, body := do(t, ts, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, code)

	var resp statsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Equal(t, "separate", resp.Topology)
	require.Len(t, resp.Clients, 2)
	require.EqualValues(t, 2, resp.Clients[0].Exchanges)
	require.Equal(t, "http", resp.Clients[1].Name)
}

func TestRequestIDHeader(t *testing.T) {
	ts := startServer(t, Options{Backend: &fakeBackend{}})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/leds", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))

	resp, err = ts.Client().Get(ts.URL + "/api/leds")
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, resp.Header.Get(RequestIDHeader), 36)
}

func TestCORS(t *testing.T) {
	ts := startServer(t, Options{Backend: &fakeBackend{}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/button", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "POST", resp.Header.Get("Access-Control-Allow-Methods"))
	require.Equal(t, "content-type", resp.Header.Get("Access-Control-Allow-Headers"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/leds", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStreamPushesChanges(t *testing.T) {
	backend := &fakeBackend{leds: linecodec.LEDState{0, 0}}
	ts := startServer(t, Options{Backend: backend, StreamInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/leds/stream?interval_ms=20"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, []any{float64(0), float64(0)}, frame["leds"])

	backend.setLEDs(linecodec.LEDState{1, 0})
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, []any{float64(1), float64(0)}, frame["leds"])

	backend.setErr(fmt.Errorf("%w: reset", daemon.ErrTransport))
	frame = nil
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Contains(t, frame["detail"], "daemon transport failed")

	backend.setErr(nil)
	frame = nil
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, []any{float64(1), float64(0)}, frame["leds"])

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestStreamRejectsBadInterval(t *testing.T) {
	ts := startServer(t, Options{Backend: &fakeBackend{}})

	code, body := do(t, ts, http.MethodGet, "/api/leds/stream?interval_ms=abc", "")
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Contains(t, detail(t, body), "interval_ms")
}

func TestServeStopsOnContextCancel(t *testing.T) {
	srv, err := New(Options{Backend: &fakeBackend{}})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func startServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func detail(t *testing.T, body string) string {
	t.Helper()
	var resp detailResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return resp.Detail
}

type fakeBackend struct {
	mu   sync.Mutex
	leds linecodec.LEDState
	err  error
	log  []string
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *fakeBackend) setLEDs(leds linecodec.LEDState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leds = leds
}

func (b *fakeBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

func (b *fakeBackend) record(call string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.log = append(b.log, call)
	return nil
}

func (b *fakeBackend) Press(_ context.Context, index int) (string, error) {
	if err := b.record(fmt.Sprintf("press %d", index)); err != nil {
		return "", err
	}
	return "OK", nil
}

func (b *fakeBackend) Release(_ context.Context, index int) (string, error) {
	if err := b.record(fmt.Sprintf("release %d", index)); err != nil {
		return "", err
	}
	return "OK", nil
}

func (b *fakeBackend) LEDs(context.Context) (linecodec.LEDState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return append(linecodec.LEDState(nil), b.leds...), nil
}

func (b *fakeBackend) Step(_ context.Context, times, intervalMS int) (string, error) {
	if err := b.record(fmt.Sprintf("step %d %d", times, intervalMS)); err != nil {
		return "", err
	}
	return "OK", nil
}
