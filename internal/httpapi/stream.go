package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleStream upgrades to a websocket and pushes the LED vector whenever
// it changes. Daemon failures are pushed as a detail frame once per
// distinct failure; the stream stays open and keeps polling.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	interval := s.streamInterval
	if raw := strings.TrimSpace(r.URL.Query().Get("interval_ms")); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: fmt.Sprintf("interval_ms must be a positive integer, got %q", raw)})
			return
		}
		interval = max(time.Duration(ms)*time.Millisecond, minStreamInterval)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(s.origins),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err.Error(), "request_id", RequestIDFrom(r.Context()))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	err = s.pushLEDs(ctx, conn, interval)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "done")
	case websocket.CloseStatus(err) != -1:
	default:
		s.logger.Debug("led stream ended", "error", err.Error(), "request_id", RequestIDFrom(r.Context()))
		conn.Close(websocket.StatusInternalError, "stream failed")
	}
}

func (s *Server) pushLEDs(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastLeds   []int
		lastDetail string
		sent       bool
	)
	for {
		leds, err := s.backend.LEDs(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var frame any
		if err != nil {
			if detail := err.Error(); detail != lastDetail {
				frame = detailResponse{Detail: detail}
				lastDetail = detail
			}
		} else {
			current := ledList(leds)
			if !sent || lastDetail != "" || !slices.Equal(current, lastLeds) {
				frame = ledsResponse{Leds: current}
			}
			lastLeds, lastDetail = current, ""
		}

		if frame != nil {
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				return err
			}
			sent = true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// originHosts turns allowed origins into websocket origin host patterns.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
