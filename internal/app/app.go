// Package app dispatches gpiobridge commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/gpiobridge/internal/bridge"
	"github.com/rbright/gpiobridge/internal/cli"
	"github.com/rbright/gpiobridge/internal/config"
	"github.com/rbright/gpiobridge/internal/doctor"
	"github.com/rbright/gpiobridge/internal/gpiopb"
	"github.com/rbright/gpiobridge/internal/logging"
	"github.com/rbright/gpiobridge/internal/version"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	dialTimeout = 3 * time.Second
	callTimeout = 5 * time.Second
	demoHold    = 20 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("gpiobridge"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("gpiobridge"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logger := r.Logger
	logPath := ""
	if logger == nil {
		opts := logging.Options{Level: cfgLoaded.Config.Log.Level}
		if cfgLoaded.Config.Log.Stderr && parsed.Command == cli.CommandServe {
			opts.Stderr = r.Stderr
		}
		logRuntime, err := logging.New(opts)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
			return 1
		}
		defer func() { _ = logRuntime.Close() }()
		logger, logPath = logRuntime.Logger, logRuntime.Path
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Field != "" {
			msg = w.Field + ": " + w.Message
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "field", w.Field, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logPath,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	}

	if parsed.Command.IsClientCommand() {
		return r.commandClient(ctx, parsed, cfgLoaded.Config, logger)
	}

	fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
	return 2
}

func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	b, err := bridge.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if err := b.Run(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("serve failed", "error", err.Error())
		return 1
	}
	return 0
}

func (r Runner) commandClient(ctx context.Context, parsed cli.Parsed, cfg config.Config, logger *slog.Logger) int {
	target := parsed.Addr
	if target == "" {
		if !cfg.RPC.Enable {
			fmt.Fprintln(r.Stderr, "error: rpc front-end is disabled in config; pass --addr")
			return 1
		}
		var err error
		target, err = dialTarget(cfg.RPC.Listen)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
	}

	conn, err := gpiopb.Dial(ctx, target, dialTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("dial bridge failed", "target", target, "error", err.Error())
		return 1
	}
	defer func() { _ = conn.Close() }()

	if err := r.runClient(ctx, parsed, conn); err != nil {
		fmt.Fprintf(r.Stderr, "error: %s\n", describeRPCError(err))
		logger.Error("client command failed", "command", parsed.Command, "target", target, "error", err.Error())
		return 1
	}
	return 0
}

func (r Runner) runClient(ctx context.Context, parsed cli.Parsed, conn *grpc.ClientConn) error {
	client := gpiopb.NewClient(conn)
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	switch parsed.Command {
	case cli.CommandHealth:
		resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: gpiopb.ServiceName})
		if err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, resp.GetStatus().String())
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return errors.New("daemon is not reachable from the bridge")
		}
		return nil
	case cli.CommandLEDs:
		state, err := client.GetLedState(callCtx)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, renderLEDs(state.Leds))
		return nil
	case cli.CommandPress:
		reply, err := client.PressButton(callCtx, gpiopb.ButtonReq{Index: int32(parsed.Index)})
		if err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, reply.Msg)
		return nil
	case cli.CommandRelease:
		reply, err := client.ReleaseButton(callCtx, gpiopb.ButtonReq{Index: int32(parsed.Index)})
		if err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, reply.Msg)
		return nil
	case cli.CommandStep:
		reply, err := client.Step(callCtx, gpiopb.StepReq{Times: int32(parsed.Times), IntervalMS: int32(parsed.IntervalMS)})
		if err != nil {
			return err
		}
		fmt.Fprintln(r.Stdout, reply.Msg)
		return nil
	case cli.CommandDemo:
		return r.runDemo(callCtx, client)
	default:
		return fmt.Errorf("unsupported client command %q", parsed.Command)
	}
}

// runDemo clicks button 0 four times then button 1 once, printing the LEDs
// after each click.
func (r Runner) runDemo(ctx context.Context, client *gpiopb.Client) error {
	for _, index := range []int32{0, 0, 0, 0, 1} {
		if _, err := client.PressButton(ctx, gpiopb.ButtonReq{Index: index}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(demoHold):
		}
		if _, err := client.ReleaseButton(ctx, gpiopb.ButtonReq{Index: index}); err != nil {
			return err
		}
		state, err := client.GetLedState(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "button %d: %s\n", index, renderLEDs(state.Leds))
	}
	return nil
}

// dialTarget maps a listen address to a dialable loopback target.
func dialTarget(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("rpc.listen %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}

func describeRPCError(err error) string {
	if st, ok := status.FromError(err); ok {
		return fmt.Sprintf("%s: %s", st.Code(), st.Message())
	}
	return err.Error()
}
