package transport

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/logging"
)

const (
	// Fallback ports are drawn from [MinFallbackPort, MaxFallbackPort)
	MinFallbackPort = 20000
	MaxFallbackPort = 60000

	acceptRetryDelay = 200 * time.Millisecond
)

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithPortPublisher is called with the bound port once listening starts
func WithPortPublisher(publish func(port int)) ListenerOption {
	return func(l *Listener) { l.publish = publish }
}

// WithListenerRecorder records every line exchanged with the peer
func WithListenerRecorder(r Recorder) ListenerOption {
	return func(l *Listener) { l.recorder = r }
}

// WithPortPicker replaces the random fallback port generator
func WithPortPicker(pick func() int) ListenerOption {
	return func(l *Listener) { l.pickPort = pick }
}

type peer struct {
	id     int64
	conn   net.Conn
	writer *bufio.Writer
}

// Listener accepts line connections on a loopback port. At most one peer is
// active; a newly accepted peer replaces the previous one.
type Listener struct {
	host          string
	preferredPort int
	log           logr.Logger
	diag          *logging.Throttled
	onLine        func(line string)
	publish       func(port int)
	recorder      Recorder
	pickPort      func() int

	startMu sync.Mutex
	ln      net.Listener
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// sendMu guards peer and serializes writes to it
	sendMu  sync.Mutex
	peer    *peer
	peerSeq atomic.Int64

	port atomic.Int32
}

// NewListener creates a listener for host. onLine receives every line read
// from the active peer.
func NewListener(log logr.Logger, host string, preferredPort int, onLine func(line string), opts ...ListenerOption) *Listener {
	if onLine == nil {
		onLine = func(string) {}
	}
	l := &Listener{
		host:          host,
		preferredPort: preferredPort,
		log:           log.WithValues("listener", host),
		onLine:        onLine,
		pickPort: func() int {
			return MinFallbackPort + rand.IntN(MaxFallbackPort-MinFallbackPort)
		},
	}
	l.diag = logging.NewThrottled(l.log)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureListening binds the listener if it is not bound yet. The preferred
// port is tried first; on failure random fallback ports are tried until one
// binds or ctx is done.
func (l *Listener) EnsureListening(ctx context.Context) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	if l.ln != nil {
		return nil
	}

	ln, err := l.bind(ctx)
	if err != nil {
		return err
	}

	port := ln.Addr().(*net.TCPAddr).Port
	l.port.Store(int32(port))
	l.ln = ln

	acceptCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.wg.Add(1)
	go l.acceptLoop(acceptCtx, ln)

	l.log.Info("Listening", "port", port)
	if l.publish != nil {
		l.publish(port)
	}
	return nil
}

func (l *Listener) bind(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig
	port := l.preferredPort
	if port <= 0 {
		port = l.pickPort()
	}

	for {
		addr := net.JoinHostPort(l.host, strconv.Itoa(port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		if ctx.Err() != nil {
			return nil, errors.BindFailed(port, ctx.Err())
		}

		l.diag.Info("Port unavailable, retrying on another port", "port", port, "error", err.Error())
		port = l.pickPort()
	}
}

// Port returns the bound port, or 0 before EnsureListening succeeds
func (l *Listener) Port() int {
	return int(l.port.Load())
}

// HasPeer reports whether a peer is attached
func (l *Listener) HasPeer() bool {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	return l.peer != nil
}

// SendLine writes one line to the active peer. It returns false when no
// peer is attached or the write fails, in which case the peer is closed.
func (l *Listener) SendLine(line string) bool {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	p := l.peer
	if p == nil {
		return false
	}

	_, err := p.writer.WriteString(line + "\n")
	if err == nil {
		err = p.writer.Flush()
	}
	if err != nil {
		l.diag.Error(err, "Send to peer failed", "peer", p.id)
		l.peer = nil
		_ = p.conn.Close()
		return false
	}

	if l.recorder != nil {
		l.recorder.Record(DirectionOut, p.id, line)
	}
	return true
}

// DisconnectPeer closes the active peer, if any. The listener keeps
// accepting.
func (l *Listener) DisconnectPeer() {
	l.sendMu.Lock()
	p := l.peer
	l.peer = nil
	l.sendMu.Unlock()

	if p != nil {
		_ = p.conn.Close()
		l.log.Info("Peer disconnected", "peer", p.id)
	}
}

// Close stops accepting and disconnects the peer
func (l *Listener) Close() error {
	l.startMu.Lock()
	ln := l.ln
	cancel := l.cancel
	l.ln = nil
	l.cancel = nil
	l.startMu.Unlock()

	if ln == nil {
		return nil
	}

	cancel()
	err := ln.Close()
	l.DisconnectPeer()
	l.wg.Wait()
	l.port.Store(0)
	if err != nil && !IsExpectedCloseError(err) {
		return fmt.Errorf("closing listener: %w", err)
	}
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener) {
	defer l.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || IsExpectedCloseError(err) {
				return
			}
			l.diag.Error(err, "Accept failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		p := &peer{
			id:     l.peerSeq.Add(1),
			conn:   conn,
			writer: bufio.NewWriter(conn),
		}

		l.sendMu.Lock()
		previous := l.peer
		l.peer = p
		l.sendMu.Unlock()

		if previous != nil {
			_ = previous.conn.Close()
			l.log.Info("Peer replaced", "previous", previous.id, "peer", p.id)
		} else {
			l.log.Info("Peer connected", "peer", p.id, "remote", conn.RemoteAddr().String())
		}

		l.wg.Add(1)
		go l.readPeer(p)
	}
}

func (l *Listener) readPeer(p *peer) {
	defer l.wg.Done()
	defer l.releasePeer(p)

	lr := newLineReader(p.conn)
	for {
		line, err := lr.next()
		if err != nil {
			if !IsExpectedCloseError(err) {
				l.diag.Error(err, "Peer read failed", "peer", p.id)
			}
			return
		}
		if l.recorder != nil {
			l.recorder.Record(DirectionIn, p.id, line)
		}
		l.deliver(line)
	}
}

func (l *Listener) deliver(line string) {
	defer func() {
		if r := recover(); r != nil {
			l.diag.Error(fmt.Errorf("%v", r), "Peer line handler panicked")
		}
	}()
	l.onLine(line)
}

// releasePeer closes p and detaches it only if it is still the active peer.
func (l *Listener) releasePeer(p *peer) {
	l.sendMu.Lock()
	if l.peer == p {
		l.peer = nil
	}
	l.sendMu.Unlock()
	_ = p.conn.Close()
}
