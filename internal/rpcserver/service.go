// Package rpcserver serves the gpio_demo.GpioDemo gRPC API on top of a
// daemon backend.
package rpcserver

import (
	"context"
	"errors"

	"github.com/rbright/gpiobridge/internal/daemon"
	"github.com/rbright/gpiobridge/internal/gpiopb"
	"github.com/rbright/gpiobridge/internal/linecodec"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend is the daemon surface the gRPC service needs. *daemon.Client
// satisfies it.
type Backend interface {
	Press(ctx context.Context, index int) (string, error)
	Release(ctx context.Context, index int) (string, error)
	LEDs(ctx context.Context) (linecodec.LEDState, error)
	Step(ctx context.Context, times, intervalMS int) (string, error)
}

// service adapts Backend to gpiopb.GpioDemoServer.
type service struct {
	backend Backend
}

func (s *service) PressButton(ctx context.Context, in gpiopb.ButtonReq) (gpiopb.SimpleReply, error) {
	if in.Index < 0 {
		return gpiopb.SimpleReply{}, status.Errorf(codes.InvalidArgument, "index must be >= 0, got %d", in.Index)
	}
	msg, err := s.backend.Press(ctx, int(in.Index))
	if err != nil {
		return gpiopb.SimpleReply{}, statusFromError(err)
	}
	return gpiopb.SimpleReply{Msg: msg}, nil
}

func (s *service) ReleaseButton(ctx context.Context, in gpiopb.ButtonReq) (gpiopb.SimpleReply, error) {
	if in.Index < 0 {
		return gpiopb.SimpleReply{}, status.Errorf(codes.InvalidArgument, "index must be >= 0, got %d", in.Index)
	}
	msg, err := s.backend.Release(ctx, int(in.Index))
	if err != nil {
		return gpiopb.SimpleReply{}, statusFromError(err)
	}
	return gpiopb.SimpleReply{Msg: msg}, nil
}

func (s *service) GetLedState(ctx context.Context, _ gpiopb.Empty) (gpiopb.LedState, error) {
	leds, err := s.backend.LEDs(ctx)
	if err != nil {
		return gpiopb.LedState{}, statusFromError(err)
	}
	out := make([]int32, len(leds))
	for i, v := range leds {
		out[i] = int32(v)
	}
	return gpiopb.LedState{Leds: out}, nil
}

// Step treats an unset (zero) times as a single tick.
func (s *service) Step(ctx context.Context, in gpiopb.StepReq) (gpiopb.SimpleReply, error) {
	times := in.Times
	if times == 0 {
		times = 1
	}
	if times < 0 {
		return gpiopb.SimpleReply{}, status.Errorf(codes.InvalidArgument, "times must be >= 1, got %d", in.Times)
	}
	if in.IntervalMS < 0 {
		return gpiopb.SimpleReply{}, status.Errorf(codes.InvalidArgument, "interval_ms must be >= 0, got %d", in.IntervalMS)
	}

	msg, err := s.backend.Step(ctx, int(times), int(in.IntervalMS))
	if err != nil {
		return gpiopb.SimpleReply{}, statusFromError(err)
	}
	return gpiopb.SimpleReply{Msg: msg}, nil
}

// statusFromError maps daemon failures onto gRPC codes, keeping the
// failure text as the status message.
func statusFromError(err error) error {
	switch {
	case errors.Is(err, daemon.ErrInvalidCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case daemon.IsUnavailable(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
