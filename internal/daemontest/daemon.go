// Package daemontest runs an in-process line-protocol daemon for tests.
//
// The fake daemon listens on a unix socket under t.TempDir(), reads one
// newline-terminated command at a time, and answers with whatever the
// Handler returns. It also records protocol discipline violations: a second
// command arriving before the first was answered, or two exchanges in
// flight at once.
package daemontest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Hangup makes the daemon close the connection instead of replying.
const Hangup = "\x00hangup"

// Handler answers one command line (without its trailing newline).
type Handler interface {
	Handle(line string) string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(line string) string

func (f HandlerFunc) Handle(line string) string {
	return f(line)
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithDropAfter closes the first accepted connection after n replies.
func WithDropAfter(n int) Option {
	return func(d *Daemon) { d.dropAfter = n }
}

// WithDelay pauses before every reply.
func WithDelay(delay time.Duration) Option {
	return func(d *Daemon) { d.delay = delay }
}

// Daemon is a running fake daemon.
type Daemon struct {
	Path string

	handler   Handler
	dropAfter int
	delay     time.Duration

	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}

	mu         sync.Mutex
	lines      []string
	conns      int
	violations []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// Start launches a daemon and stops it during test cleanup.
func Start(t testing.TB, handler Handler, opts ...Option) *Daemon {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gpio_sim.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen fake daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		Path:     path,
		handler:  handler,
		listener: listener,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	go func() {
		defer close(d.done)
		_ = d.serve(ctx)
	}()
	t.Cleanup(d.Close)
	return d
}

// Address returns the daemon endpoint in client address form.
func (d *Daemon) Address() string {
	return "unix://" + d.Path
}

// Close stops accepting, closes open connections and waits for handlers.
func (d *Daemon) Close() {
	d.cancel()
	<-d.done
}

// Lines returns every command received so far, in arrival order.
func (d *Daemon) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

// Connections returns how many connections were accepted.
func (d *Daemon) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns
}

// Violations lists protocol discipline violations observed so far.
func (d *Daemon) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// MaxInFlight is the largest number of simultaneously unanswered commands.
func (d *Daemon) MaxInFlight() int {
	return int(d.maxInFlight.Load())
}

func (d *Daemon) serve(ctx context.Context) error {
	var wg sync.WaitGroup
	var connsMu sync.Mutex
	open := make(map[net.Conn]struct{})

	go func() {
		<-ctx.Done()
		_ = d.listener.Close()
		connsMu.Lock()
		for c := range open {
			_ = c.Close()
		}
		connsMu.Unlock()
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept fake daemon connection: %w", err)
		}

		d.mu.Lock()
		d.conns++
		first := d.conns == 1
		d.mu.Unlock()

		connsMu.Lock()
		open[conn] = struct{}{}
		connsMu.Unlock()

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer func() {
				connsMu.Lock()
				delete(open, c)
				connsMu.Unlock()
				_ = c.Close()
			}()
			d.serveConn(c, first)
		}(conn)
	}
}

func (d *Daemon) serveConn(c net.Conn, first bool) {
	reader := bufio.NewReader(c)
	replies := 0

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")

		if n := d.inFlight.Add(1); n > 1 {
			d.violation(fmt.Sprintf("%d exchanges in flight at %q", n, line))
		}
		d.trackMax()
		if reader.Buffered() > 0 {
			d.violation(fmt.Sprintf("command pipelined behind %q", line))
		}
		d.record(line)

		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		reply := d.handler.Handle(line)
		d.inFlight.Add(-1)

		if reply == Hangup {
			return
		}
		if !strings.HasSuffix(reply, "\n") {
			reply += "\n"
		}
		if _, err := c.Write([]byte(reply)); err != nil {
			return
		}

		replies++
		if first && d.dropAfter > 0 && replies >= d.dropAfter {
			return
		}
	}
}

func (d *Daemon) record(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, line)
}

func (d *Daemon) violation(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.violations = append(d.violations, msg)
}

func (d *Daemon) trackMax() {
	n := d.inFlight.Load()
	for {
		current := d.maxInFlight.Load()
		if n <= current || d.maxInFlight.CompareAndSwap(current, n) {
			return
		}
	}
}
