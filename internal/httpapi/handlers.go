package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rbright/gpiobridge/internal/daemon"
	"github.com/rbright/gpiobridge/internal/linecodec"
)

const maxBodyBytes = 1 << 16

type msgResponse struct {
	Msg string `json:"msg"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type ledsResponse struct {
	Leds []int `json:"leds"`
}

type statsResponse struct {
	Topology string         `json:"topology,omitempty"`
	Clients  []daemon.Stats `json:"clients"`
}

type buttonRequest struct {
	Index  *int   `json:"index"`
	Action string `json:"action"`
}

type stepRequest struct {
	Times      *int `json:"times"`
	IntervalMS *int `json:"interval_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.LEDs(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, detailResponse{Detail: "daemon not ready: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, msgResponse{Msg: "ok"})
}

func (s *Server) handleLEDs(w http.ResponseWriter, r *http.Request) {
	leds, err := s.backend.LEDs(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledsResponse{Leds: ledList(leds)})
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	var req buttonRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: err.Error()})
		return
	}

	switch {
	case req.Index == nil:
		writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: "index is required"})
		return
	case *req.Index < 0:
		writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: fmt.Sprintf("index must be >= 0, got %d", *req.Index)})
		return
	}

	var (
		msg string
		err error
	)
	switch req.Action {
	case "press":
		msg, err = s.backend.Press(r.Context(), *req.Index)
	case "release":
		msg, err = s.backend.Release(r.Context(), *req.Index)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: fmt.Sprintf("action must be \"press\" or \"release\", got %q", req.Action)})
		return
	}
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgResponse{Msg: msg})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: err.Error()})
		return
	}

	times, interval := 1, 0
	if req.Times != nil {
		times = *req.Times
	}
	if req.IntervalMS != nil {
		interval = *req.IntervalMS
	}
	if times < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: fmt.Sprintf("times must be >= 1, got %d", times)})
		return
	}
	if interval < 0 {
		writeJSON(w, http.StatusUnprocessableEntity, detailResponse{Detail: fmt.Sprintf("interval_ms must be >= 0, got %d", interval)})
		return
	}

	msg, err := s.backend.Step(r.Context(), times, interval)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgResponse{Msg: msg})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Topology: s.topology, Clients: []daemon.Stats{}}
	if s.stats != nil {
		resp.Clients = append(resp.Clients, s.stats()...)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody decodes one JSON object. allowEmpty treats an absent body as
// an empty object.
func decodeBody(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("malformed JSON body: trailing data")
	}
	return nil
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	if errors.Is(err, daemon.ErrInvalidCommand) {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, detailResponse{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func ledList(leds linecodec.LEDState) []int {
	out := make([]int, len(leds))
	copy(out, leds)
	return out
}
