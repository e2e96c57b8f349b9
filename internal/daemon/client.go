// Package daemon owns the connection to the GPIO simulation daemon.
//
// A Client holds at most one socket and serializes every command/reply
// exchange on it. The daemon protocol carries no request identifiers, so a
// reply belongs to whichever command was written last; the access lock is
// what keeps that true when many goroutines share one Client.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/gpiobridge/internal/fsm"
	"github.com/rbright/gpiobridge/internal/linecodec"
)

const (
	DefaultTimeout         = time.Second
	DefaultConnectAttempts = 3
	DefaultBackoff         = 100 * time.Millisecond
)

// DialFunc opens one connection attempt.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config is the injected connection policy for one Client.
type Config struct {
	// Address is "unix:///path", "tcp://host:port" or a bare socket path.
	Address string
	// Timeout bounds each dial attempt and each write+read exchange.
	Timeout time.Duration
	// ConnectAttempts is the number of dials made by one connect procedure.
	ConnectAttempts int
	// Backoff is multiplied by the attempt number between dials.
	Backoff time.Duration
	// QueueTimeout bounds the wait for the access lock. Zero waits forever.
	QueueTimeout time.Duration
	// Name labels the client in logs.
	Name string

	Dial   DialFunc
	Logger *slog.Logger
}

// Stats is a point-in-time view of client activity.
type Stats struct {
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	State      fsm.State `json:"state"`
	Exchanges  uint64    `json:"exchanges"`
	Reconnects uint64    `json:"reconnects"`
	Failures   uint64    `json:"failures"`
	LastError  string    `json:"last_error,omitempty"`
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	network string
	address string
	dial    DialFunc
	logger  *slog.Logger

	// sem is the access lock. Everything below it up to stateMu is only
	// touched while holding it.
	sem    chan struct{}
	conn   net.Conn
	reader *bufio.Reader
	closed bool
	// dialed is set after the first successful connect; later connects
	// count as reconnects.
	dialed bool

	stateMu sync.RWMutex
	state   fsm.State
	lastErr string

	exchanges  atomic.Uint64
	reconnects atomic.Uint64
	failures   atomic.Uint64
}

// New validates cfg and returns a disconnected client. No socket is opened
// until Connect or the first command.
func New(cfg Config) (*Client, error) {
	network, address, err := ParseAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = DefaultConnectAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.QueueTimeout < 0 {
		cfg.QueueTimeout = 0
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "daemon"
	}

	dial := cfg.Dial
	if dial == nil {
		var dialer net.Dialer
		dial = dialer.DialContext
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		cfg:     cfg,
		network: network,
		address: address,
		dial:    dial,
		logger:  logger.With("client", cfg.Name),
		sem:     make(chan struct{}, 1),
		state:   fsm.StateDisconnected,
	}, nil
}

// Press simulates pressing the button at index.
func (c *Client) Press(ctx context.Context, index int) (string, error) {
	return c.ack(ctx, linecodec.Press(index))
}

// Release simulates releasing the button at index.
func (c *Client) Release(ctx context.Context, index int) (string, error) {
	return c.ack(ctx, linecodec.Release(index))
}

// Step advances the simulation times ticks, intervalMS apart.
func (c *Client) Step(ctx context.Context, times, intervalMS int) (string, error) {
	return c.ack(ctx, linecodec.Step(times, intervalMS))
}

// LEDs queries the current LED state.
func (c *Client) LEDs(ctx context.Context) (linecodec.LEDState, error) {
	raw, err := c.Do(ctx, linecodec.GetLED())
	if err != nil {
		return nil, err
	}
	leds, ok := linecodec.DecodeLED(raw)
	if !ok {
		err := fmt.Errorf("%w to %s: %q", ErrDecode, linecodec.KindGetLED, raw)
		c.recordFailure(err)
		return nil, err
	}
	return leds, nil
}

// Do runs one exchange for cmd and returns the trimmed reply line.
func (c *Client) Do(ctx context.Context, cmd linecodec.Command) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return c.exchange(ctx, linecodec.Encode(cmd))
}

func (c *Client) ack(ctx context.Context, cmd linecodec.Command) (string, error) {
	raw, err := c.Do(ctx, cmd)
	if err != nil {
		return "", err
	}
	return linecodec.DecodeAck(raw), nil
}

// Connect opens the connection ahead of the first command. It is a no-op
// when a connection is already live.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}
	return c.connect(ctx)
}

// Close waits for any in-flight exchange, then closes the connection.
// Later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.sem <- struct{}{}
	defer c.release()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	c.transition(fsm.EventClose)
	return err
}

// Stats returns counters without waiting for the access lock.
func (c *Client) Stats() Stats {
	c.stateMu.RLock()
	state, lastErr := c.state, c.lastErr
	c.stateMu.RUnlock()

	return Stats{
		Name:       c.cfg.Name,
		Address:    c.cfg.Address,
		State:      state,
		Exchanges:  c.exchanges.Load(),
		Reconnects: c.reconnects.Load(),
		Failures:   c.failures.Load(),
		LastError:  lastErr,
	}
}

// exchange writes one encoded line and reads one reply line while holding
// the access lock. An I/O failure drops the connection and the whole
// exchange is retried exactly once on a fresh connection.
func (c *Client) exchange(ctx context.Context, line string) (string, error) {
	if err := c.acquire(ctx); err != nil {
		c.recordFailure(err)
		return "", err
	}
	defer c.release()

	if c.closed {
		return "", ErrClosed
	}

	// The caller may go away while we hold the lock; the exchange still
	// runs to completion or timeout so the reply is not left in the socket.
	ioCtx := context.WithoutCancel(ctx)

	reply, err := c.roundTrip(ioCtx, line)
	if err != nil && errors.Is(err, ErrTransport) {
		c.logger.Warn("daemon exchange failed; reconnecting", "error", err.Error())
		reply, err = c.roundTrip(ioCtx, line)
	}
	if err != nil {
		c.recordFailure(err)
		return "", err
	}

	c.exchanges.Add(1)
	reply = strings.TrimSpace(reply)
	if reply == "" {
		c.recordFailure(ErrEmptyReply)
		return "", ErrEmptyReply
	}
	return reply, nil
}

// roundTrip performs steps connect/write/read once.
func (c *Client) roundTrip(ctx context.Context, line string) (string, error) {
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return "", err
		}
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		c.drop()
		return "", fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}
	if _, err := io.WriteString(c.conn, line); err != nil {
		c.drop()
		return "", fmt.Errorf("%w: write %q: %w", ErrTransport, strings.TrimSpace(line), err)
	}

	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.drop()
		if errors.Is(err, io.EOF) && reply != "" {
			// Peer closed right after an unterminated reply; keep it.
			return reply, nil
		}
		return "", fmt.Errorf("%w: read reply: %w", ErrTransport, err)
	}
	return reply, nil
}

// connect dials up to ConnectAttempts times with linear backoff between
// attempts and installs the new connection.
func (c *Client) connect(ctx context.Context) error {
	c.transition(fsm.EventDial)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.ConnectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		conn, err := c.dial(dialCtx, c.network, c.address)
		cancel()
		if err == nil {
			c.conn = conn
			c.reader = bufio.NewReader(conn)
			if c.dialed {
				c.reconnects.Add(1)
			}
			c.dialed = true
			c.transition(fsm.EventDialed)
			c.logger.Info("daemon connected", "address", c.cfg.Address, "attempt", attempt)
			return nil
		}

		lastErr = err
		c.logger.Debug("daemon dial failed", "address", c.cfg.Address, "attempt", attempt, "error", err.Error())

		if attempt < c.cfg.ConnectAttempts {
			select {
			case <-ctx.Done():
				c.transition(fsm.EventDialFailed)
				return fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
			case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	c.transition(fsm.EventDialFailed)
	return fmt.Errorf("%w: cannot connect to %s after %d attempts: %w",
		ErrConnect, c.cfg.Address, c.cfg.ConnectAttempts, lastErr)
}

// drop closes and forgets the current connection.
func (c *Client) drop() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.transition(fsm.EventDrop)
}

// acquire takes the access lock, honouring ctx and QueueTimeout while
// waiting.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if c.cfg.QueueTimeout > 0 {
		timer := time.NewTimer(c.cfg.QueueTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: waited %s for the connection", ErrBusy, c.cfg.QueueTimeout)
	}
}

func (c *Client) release() {
	<-c.sem
}

func (c *Client) transition(event fsm.Event) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Warn("daemon state transition rejected", "error", err.Error())
		return
	}
	if next != c.state {
		c.logger.Debug("daemon state", "from", c.state, "to", next, "event", event)
	}
	c.state = next
}

func (c *Client) recordFailure(err error) {
	c.failures.Add(1)
	c.stateMu.Lock()
	c.lastErr = err.Error()
	c.stateMu.Unlock()
}
