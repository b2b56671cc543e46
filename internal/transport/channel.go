package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/logging"
)

// ConnectionState tracks endpoint-level connection flags
type ConnectionState interface {
	MarkTransportConnected()
	MarkTransportDisconnected()
	MarkConnectionFailed()
}

// Option configures a Channel
type Option func(*Channel)

// WithRecorder records every line sent and received
func WithRecorder(r Recorder) Option {
	return func(c *Channel) { c.recorder = r }
}

// WithConnectionState mirrors connect/disconnect/failure into s
func WithConnectionState(s ConnectionState) Option {
	return func(c *Channel) { c.state = s }
}

// WithDialer replaces the TCP dialer
func WithDialer(dial func(ctx context.Context, network, address string) (net.Conn, error)) Option {
	return func(c *Channel) { c.dial = dial }
}

// WithRetry retries failed dials using the back-off returned by policy.
// ConnectionFailed is raised only after the last attempt fails.
func WithRetry(policy func() backoff.BackOff) Option {
	return func(c *Channel) { c.retry = policy }
}

// ConnectBackOff retries a dial up to attempts times with exponential
// delays, giving up after timeout.
func ConnectBackOff(attempts int, timeout time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
			backoff.WithMultiplier(2),
			backoff.WithRandomizationFactor(0.1),
			backoff.WithMaxElapsedTime(timeout),
		)
		if attempts <= 1 {
			return backoff.WithMaxRetries(b, 0)
		}
		return backoff.WithMaxRetries(b, uint64(attempts-1))
	}
}

// generation is one connected socket. Failure and disconnect notifications
// are raised at most once per generation.
type generation struct {
	id     int64
	conn   net.Conn
	writer *bufio.Writer
	done   chan struct{}

	failureRaised    atomic.Bool
	disconnectRaised atomic.Bool
	closeOnce        sync.Once
}

func (g *generation) close() {
	g.closeOnce.Do(func() {
		_ = g.conn.Close()
		close(g.done)
	})
}

// Channel is the dialing end of a line transport
type Channel struct {
	name     string
	log      logr.Logger
	diag     *logging.Throttled
	observer Observer
	recorder Recorder
	state    ConnectionState
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
	retry    func() backoff.BackOff

	// sendMu serializes writers and guards gen
	sendMu sync.Mutex
	gen    *generation

	connected       atomic.Bool
	connectionSeq   atomic.Int64
	activeID        atomic.Int64
	expectedCloseID atomic.Int64
}

// NewChannel creates a disconnected channel. name labels log entries.
func NewChannel(name string, log logr.Logger, observer Observer, opts ...Option) *Channel {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	dialer := &net.Dialer{}
	c := &Channel{
		name:     name,
		log:      log.WithValues("transport", name),
		observer: observer,
		dial:     dialer.DialContext,
	}
	c.diag = logging.NewThrottled(c.log)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials address and starts the reader. It is a no-op when already
// connected. A failed dial raises ConnectionFailed and returns the error.
func (c *Channel) Connect(ctx context.Context, address string) error {
	c.sendMu.Lock()
	if c.gen != nil && c.connected.Load() {
		c.sendMu.Unlock()
		return nil
	}
	c.sendMu.Unlock()

	conn, err := c.dialWithRetry(ctx, address)
	if err != nil {
		c.connected.Store(false)
		if c.state != nil {
			c.state.MarkConnectionFailed()
		}
		c.raiseConnectionFailed(nil, err.Error())
		c.diag.Error(err, "Connect failed", "address", address)
		return errors.TransportFailure(address, err)
	}

	g := &generation{
		id:     c.connectionSeq.Add(1),
		conn:   conn,
		writer: bufio.NewWriter(conn),
		done:   make(chan struct{}),
	}

	c.sendMu.Lock()
	if c.gen != nil {
		// Lost a race with another Connect; keep the established generation.
		c.sendMu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.gen = g
	c.activeID.Store(g.id)
	c.expectedCloseID.Store(0)
	c.connected.Store(true)
	c.sendMu.Unlock()

	if c.state != nil {
		c.state.MarkTransportConnected()
	}
	c.log.Info("Connected", "address", address, "connection", g.id)

	go c.readLoop(g)
	return nil
}

func (c *Channel) dialWithRetry(ctx context.Context, address string) (net.Conn, error) {
	if c.retry == nil {
		return c.dial(ctx, "tcp", address)
	}

	var conn net.Conn
	dial := func() error {
		var err error
		conn, err = c.dial(ctx, "tcp", address)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.diag.Info("Connect attempt failed, retrying", "address", address, "wait", wait.String(), "error", err.Error())
	}

	if err := backoff.RetryNotify(dial, backoff.WithContext(c.retry(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// IsConnected reports whether a generation is active
func (c *Channel) IsConnected() bool {
	return c.connected.Load()
}

// ConnectionID returns the active generation id, or 0
func (c *Channel) ConnectionID() int64 {
	return c.activeID.Load()
}

// Done returns a channel closed when the active generation ends. When the
// channel is not connected the returned channel is already closed.
func (c *Channel) Done() <-chan struct{} {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.gen == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.gen.done
}

// SendLine writes one line. Writers are serialized. A write failure tears
// the generation down and raises the same notifications as a read failure.
func (c *Channel) SendLine(line string) bool {
	if line == "" {
		return false
	}

	c.sendMu.Lock()
	g := c.gen
	if g == nil || !c.connected.Load() {
		c.sendMu.Unlock()
		return false
	}

	_, err := g.writer.WriteString(line + "\n")
	if err == nil {
		err = g.writer.Flush()
	}
	c.sendMu.Unlock()

	if err != nil {
		c.diag.Error(err, "Send failed", "connection", g.id)
		c.fail(g, err.Error())
		return false
	}

	if c.recorder != nil {
		c.recorder.Record(DirectionOut, g.id, line)
	}
	c.log.V(1).Info("Sent", "line", line)
	return true
}

// Close ends the active generation. With suppressFailure the close is
// marked as expected and the reader will not report a failure for it.
func (c *Channel) Close(suppressFailure bool) {
	if suppressFailure {
		if id := c.activeID.Load(); id != 0 {
			c.expectedCloseID.Store(id)
		}
	} else {
		c.expectedCloseID.Store(0)
	}

	c.sendMu.Lock()
	g := c.gen
	c.gen = nil
	c.connected.Store(false)
	c.activeID.Store(0)
	c.sendMu.Unlock()

	if g != nil {
		g.close()
	}
}

func (c *Channel) readLoop(g *generation) {
	lr := newLineReader(g.conn)
	for {
		line, err := lr.next()
		if err != nil {
			c.endGeneration(g, err)
			return
		}

		if c.recorder != nil {
			c.recorder.Record(DirectionIn, g.id, line)
		}
		c.log.V(1).Info("Received", "line", line)
		c.deliver(line)
	}
}

func (c *Channel) deliver(line string) {
	defer func() {
		if r := recover(); r != nil {
			c.diag.Error(fmt.Errorf("%v", r), "Line handler panicked")
		}
	}()
	c.observer.LineReceived(line)
}

// endGeneration classifies how the reader stopped. Disconnected is raised
// before ConnectionFailed so observers can still reach the other side.
func (c *Channel) endGeneration(g *generation, readErr error) {
	defer c.detach(g)

	if c.isExpectedClose(g.id) {
		c.clearExpectedClose(g.id)
		if c.state != nil {
			c.state.MarkTransportDisconnected()
		}
		c.log.Info("Closed", "connection", g.id)
		c.raiseDisconnected(g, true)
		return
	}

	message := errors.GracefulDisconnectMessage
	if !IsExpectedCloseError(readErr) {
		message = readErr.Error()
		c.diag.Error(readErr, "Read failed", "connection", g.id)
	}
	if c.state != nil {
		c.state.MarkConnectionFailed()
	}
	c.raiseDisconnected(g, false)
	c.raiseConnectionFailed(g, message)
}

func (c *Channel) fail(g *generation, message string) {
	if c.state != nil {
		c.state.MarkConnectionFailed()
	}
	c.raiseDisconnected(g, false)
	c.raiseConnectionFailed(g, message)
	c.detach(g)
}

// detach closes g and clears it if it is still the active generation.
func (c *Channel) detach(g *generation) {
	c.sendMu.Lock()
	if c.gen == g {
		c.gen = nil
		c.connected.Store(false)
		c.activeID.Store(0)
	}
	c.sendMu.Unlock()
	g.close()
}

func (c *Channel) isExpectedClose(id int64) bool {
	return id != 0 && c.expectedCloseID.Load() == id
}

func (c *Channel) clearExpectedClose(id int64) {
	if id != 0 {
		c.expectedCloseID.CompareAndSwap(id, 0)
	}
}

func (c *Channel) raiseConnectionFailed(g *generation, message string) {
	if g != nil && !g.failureRaised.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.diag.Error(fmt.Errorf("%v", r), "ConnectionFailed handler panicked")
		}
	}()
	c.observer.ConnectionFailed(message)
}

func (c *Channel) raiseDisconnected(g *generation, expected bool) {
	if !g.disconnectRaised.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.diag.Error(fmt.Errorf("%v", r), "Disconnected handler panicked")
		}
	}()
	c.observer.Disconnected(expected)
}
