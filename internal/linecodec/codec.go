// Package linecodec encodes daemon commands and decodes daemon reply lines.
//
// The daemon protocol is one ASCII line per message in each direction, each
// terminated by a single '\n'. Nothing in this package performs I/O.
package linecodec

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies one of the daemon command verbs.
type Kind string

const (
	KindPress   Kind = "PRESS"
	KindRelease Kind = "RELEASE"
	KindGetLED  Kind = "GETLED"
	KindStep    Kind = "STEP"
)

// Command is one request to the daemon. Construct it with Press, Release,
// GetLED, or Step.
type Command struct {
	Kind       Kind
	Index      int
	Times      int
	IntervalMS int
}

func Press(index int) Command   { return Command{Kind: KindPress, Index: index} }
func Release(index int) Command { return Command{Kind: KindRelease, Index: index} }
func GetLED() Command           { return Command{Kind: KindGetLED} }

func Step(times, intervalMS int) Command {
	return Command{Kind: KindStep, Times: times, IntervalMS: intervalMS}
}

// Validate reports argument values outside the command's domain.
func (c Command) Validate() error {
	switch c.Kind {
	case KindPress, KindRelease:
		if c.Index < 0 {
			return fmt.Errorf("button index must be >= 0, got %d", c.Index)
		}
	case KindGetLED:
	case KindStep:
		if c.Times < 1 {
			return fmt.Errorf("step times must be >= 1, got %d", c.Times)
		}
		if c.IntervalMS < 0 {
			return fmt.Errorf("step interval_ms must be >= 0, got %d", c.IntervalMS)
		}
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// String returns the command line without its terminator.
func (c Command) String() string {
	switch c.Kind {
	case KindPress, KindRelease:
		return string(c.Kind) + " " + strconv.Itoa(c.Index)
	case KindStep:
		return string(c.Kind) + " " + strconv.Itoa(c.Times) + " " + strconv.Itoa(c.IntervalMS)
	default:
		return string(c.Kind)
	}
}

// Encode renders the canonical wire line for cmd, newline included.
func Encode(cmd Command) string {
	return Terminate(cmd.String())
}

// Terminate appends a trailing newline unless text already ends with one.
func Terminate(text string) string {
	if strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// DecodeAck returns a press/release/step acknowledgement as free text.
func DecodeAck(raw string) string {
	return strings.TrimSpace(raw)
}
