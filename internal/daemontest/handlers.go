package daemontest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Canned answers GETLED with ledReply and every other command with "OK".
func Canned(ledReply string) HandlerFunc {
	return func(line string) string {
		if strings.HasPrefix(line, "GETLED") {
			return ledReply
		}
		return "OK"
	}
}

// Counter behaves like the reference GPIO simulation: a press of button 0
// increments an 8-bit counter, a press of button 1 resets it, and GETLED
// reports the low four counter bits as "LED b0 b1 b2 b3". Unknown commands
// get "ERR".
func Counter() Handler {
	return &counter{pressed: map[int]bool{}}
}

type counter struct {
	mu      sync.Mutex
	count   int
	pressed map[int]bool
}

func (c *counter) Handle(line string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR"
	}

	switch fields[0] {
	case "PRESS", "RELEASE":
		if len(fields) != 2 {
			return "ERR"
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			return "ERR"
		}
		down := fields[0] == "PRESS"
		if down && !c.pressed[idx] {
			c.risingEdge(idx)
		}
		c.pressed[idx] = down
		return "OK"
	case "GETLED":
		return fmt.Sprintf("LED %d %d %d %d", c.count&1, (c.count>>1)&1, (c.count>>2)&1, (c.count>>3)&1)
	case "STEP":
		return "OK"
	default:
		return "ERR"
	}
}

func (c *counter) risingEdge(idx int) {
	if idx == 0 {
		if c.count < 255 {
			c.count++
		}
		return
	}
	c.count = 0
}
