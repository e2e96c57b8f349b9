// Package cli parses gpiobridge arguments.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/pflag"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandHealth  Command = "health"
	CommandLEDs    Command = "leds"
	CommandPress   Command = "press"
	CommandRelease Command = "release"
	CommandStep    Command = "step"
	CommandDemo    Command = "demo"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:   {},
	CommandHealth:  {},
	CommandLEDs:    {},
	CommandPress:   {},
	CommandRelease: {},
	CommandStep:    {},
	CommandDemo:    {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

// Parsed is the validated invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	// Addr is the gRPC target for client commands. Empty derives it from
	// rpc.listen.
	Addr     string
	ShowHelp bool

	// Index is the button for press and release.
	Index int
	// Times and IntervalMS are the step arguments.
	Times      int
	IntervalMS int
}

// IsClientCommand reports whether cmd talks to a running bridge over gRPC.
func (c Command) IsClientCommand() bool {
	switch c {
	case CommandHealth, CommandLEDs, CommandPress, CommandRelease, CommandStep, CommandDemo:
		return true
	default:
		return false
	}
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true, Times: 1}

	fs := pflag.NewFlagSet("gpiobridge", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)

	fs.StringVar(&parsed.ConfigPath, "config", "", "config file path")
	fs.StringVar(&parsed.Addr, "addr", "", "gRPC target for client commands")
	help := fs.BoolP("help", "h", false, "show help")
	showVersion := fs.Bool("version", false, "show version")
	fs.IntVar(&parsed.Times, "times", 1, "step count")
	fs.IntVar(&parsed.IntervalMS, "interval-ms", 0, "milliseconds between steps")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return parsed, nil
		}
		return Parsed{}, err
	}
	if fs.Changed("config") && parsed.ConfigPath == "" {
		return Parsed{}, errors.New("--config requires a path")
	}

	if *help {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		return parsed, nil
	}
	if *showVersion {
		parsed.Command = CommandVersion
		parsed.ShowHelp = false
		return parsed, nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return parsed, nil
	}

	cmd := Command(rest[0])
	if _, ok := validCommands[cmd]; !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", rest[0])
	}
	parsed.Command = cmd
	parsed.ShowHelp = cmd == CommandHelp
	rest = rest[1:]

	if (fs.Changed("times") || fs.Changed("interval-ms")) && cmd != CommandStep {
		return Parsed{}, fmt.Errorf("--times and --interval-ms only apply to %q", CommandStep)
	}

	switch cmd {
	case CommandPress, CommandRelease:
		if len(rest) != 1 {
			return Parsed{}, fmt.Errorf("%s requires exactly one button index", cmd)
		}
		idx, err := strconv.Atoi(rest[0])
		if err != nil || idx < 0 {
			return Parsed{}, fmt.Errorf("invalid button index %q: must be a non-negative integer", rest[0])
		}
		parsed.Index = idx
		return parsed, nil
	case CommandStep:
		if parsed.Times < 1 {
			return Parsed{}, fmt.Errorf("--times must be >= 1, got %d", parsed.Times)
		}
		if parsed.IntervalMS < 0 {
			return Parsed{}, fmt.Errorf("--interval-ms must be >= 0, got %d", parsed.IntervalMS)
		}
	}

	if len(rest) != 0 {
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", cmd)
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--addr HOST:PORT] <command> [args]

Commands:
  serve             Run the gRPC and HTTP front-ends against the daemon
  health            Check that a running bridge can reach the daemon
  leds              Print the current LED states
  press INDEX       Press a button
  release INDEX     Release a button
  step              Advance the simulation (--times N, --interval-ms M)
  demo              Press button 0 four times then button 1, printing LEDs
  doctor            Run configuration and daemon checks
  version           Print version information
  help              Show this help

Flags:
  --config PATH       Config file path (default: $XDG_CONFIG_HOME/gpiobridge/config.jsonc)
  --addr HOST:PORT    gRPC target for client commands (default: derived from rpc.listen)
  --times N           Step count (default 1)
  --interval-ms M     Milliseconds between steps (default 0)
  -h, --help          Show help
  --version           Show version
`, binaryName)
}
