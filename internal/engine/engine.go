// Package engine implements the engine side of the bridge: a client of the
// host bridge that turns the asynchronous protocol into blocking calls.
//
// Inbound lines are classified and applied to a state.Cache; notifications
// for the debugging frontend are emitted as DAP events. Blocking requests
// (threads, stack, scope, evaluate, expand, set variable) go through a
// Waiter, so only one of them may be outstanding at a time.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/logging"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/state"
	"github.com/ctagard/dbg-bridge/internal/transport"
)

// Options configures an Engine
type Options struct {
	// Address of the host bridge's engine listener
	Address string

	// ConnectTimeout bounds the wait for the host bridge before start
	ConnectTimeout time.Duration

	// PollInterval of blocked requests; DefaultPollInterval when zero
	PollInterval time.Duration

	// SourceRoot anchors relative source paths; the working directory
	// when empty
	SourceRoot string

	Frontend       Frontend
	ChannelOptions []transport.Option
}

// Status summarizes an engine for status tools
type Status struct {
	SessionID      string `json:"sessionId"`
	Address        string `json:"address"`
	Connected      bool   `json:"connected"`
	ConnectionID   int64  `json:"connectionId"`
	Failed         bool   `json:"failed"`
	Destroyed      bool   `json:"destroyed"`
	PendingRequest string `json:"pendingRequest,omitempty"`
	Threads        int    `json:"threads"`
	Variables      int    `json:"variables"`
	Breakpoints    int    `json:"breakpoints"`
}

// Engine is safe for concurrent use. Blocking requests are serialized by
// the waiter's single slot.
type Engine struct {
	log  logr.Logger
	diag *logging.Throttled
	opts Options
	id   string

	channel     *transport.Channel
	cache       *state.Cache
	waiter      *Waiter
	breakpoints *registry
	frontend    Frontend
	events      eventFactory

	// lineMu serializes inbound lines across connection generations
	lineMu     sync.Mutex
	classifier *protocol.Classifier

	seq              atomic.Int64
	connectionFailed atomic.Bool
	destroyed        atomic.Bool
}

// New creates a disconnected engine
func New(log logr.Logger, opts Options) *Engine {
	log = log.WithName("engine")
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = config.DefaultConnectTimeout
	}
	if opts.Address == "" {
		opts.Address = config.DefaultEngineConnect
	}
	if opts.SourceRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.SourceRoot = wd
		}
	}

	e := &Engine{
		log:         log,
		diag:        logging.NewThrottled(log),
		opts:        opts,
		id:          uuid.New().String(),
		cache:       state.NewCache(log),
		breakpoints: newRegistry(),
		frontend:    opts.Frontend,
		classifier:  protocol.NewClassifier(log),
	}
	if e.frontend == nil {
		e.frontend = discardFrontend{}
	}

	observer := transport.ObserverFuncs{
		OnLine:   e.HandleLine,
		OnFailed: e.onConnectionFailed,
	}
	e.channel = transport.NewChannel("host-bridge", log, observer, opts.ChannelOptions...)
	e.waiter = NewWaiter(e.channel.IsConnected, opts.PollInterval)
	return e
}

// SessionID identifies this engine instance
func (e *Engine) SessionID() string { return e.id }

// Cache exposes the state cache for snapshot tools
func (e *Engine) Cache() *state.Cache { return e.cache }

// IsConnected reports whether the host bridge connection is up
func (e *Engine) IsConnected() bool { return e.channel.IsConnected() }

// Status returns a snapshot of the engine
func (e *Engine) Status() Status {
	return Status{
		SessionID:      e.id,
		Address:        e.opts.Address,
		Connected:      e.channel.IsConnected(),
		ConnectionID:   e.channel.ConnectionID(),
		Failed:         e.connectionFailed.Load(),
		Destroyed:      e.destroyed.Load(),
		PendingRequest: e.waiter.Pending(),
		Threads:        len(e.cache.Threads()),
		Variables:      e.cache.VariableCount(),
		Breakpoints:    len(e.breakpoints.list()),
	}
}

// Start connects to the host bridge, waiting at most ConnectTimeout, then
// announces the registered breakpoints and sends start and get_threads.
func (e *Engine) Start(ctx context.Context) error {
	e.connectionFailed.Store(false)
	e.destroyed.Store(false)

	e.lineMu.Lock()
	e.classifier.Reset()
	e.lineMu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, e.opts.ConnectTimeout)
	defer cancel()

	if err := e.channel.Connect(connectCtx, e.opts.Address); err != nil {
		e.log.Info("Timed out waiting for the host bridge before sending start",
			"address", e.opts.Address, "timeout", e.opts.ConnectTimeout.String())
		return err
	}

	e.announceBreakpoints()
	if !e.send(protocol.CommandStart, nil) {
		return errors.NotConnected(protocol.CommandStart)
	}
	if !e.send(protocol.CommandGetThreads, nil) {
		return errors.NotConnected(protocol.CommandGetThreads)
	}
	return nil
}

// Close drops the connection without notifying the frontend
func (e *Engine) Close() {
	e.channel.Close(true)
	e.waiter.Release("", Result{Message: "engine closed"})
}

// send writes one request. A missing connection or a failed write runs
// the transport failure path once.
func (e *Engine) send(command string, payload map[string]any) bool {
	if !e.channel.IsConnected() {
		e.handleTransportFailure(fmt.Sprintf("Host bridge not connected; skipping command '%s'.", command))
		return false
	}

	line, err := protocol.EncodeRequest(e.seq.Add(1), command, payload)
	if err != nil {
		e.log.Error(err, "Failed to encode request", "command", command)
		return false
	}

	if !e.channel.SendLine(line) {
		e.handleTransportFailure(fmt.Sprintf("Failed to send line to the host bridge for '%s'.", command))
		return false
	}
	e.log.V(1).Info("Sent", "command", command)
	return true
}

// request sends command and blocks until its response arrives
func (e *Engine) request(ctx context.Context, command string, payload map[string]any) (Result, error) {
	wait, err := e.waiter.Begin(command)
	if err != nil {
		return Result{}, err
	}

	if !e.send(command, payload) {
		wait.Cancel()
		return Result{Command: command}, errors.NotConnected(command)
	}
	return wait.Await(ctx)
}

func (e *Engine) onConnectionFailed(message string) {
	if errors.IsGracefulDisconnect(message) {
		e.log.Info("Host bridge disconnected")
	}
	e.handleTransportFailure(message)
}

// handleTransportFailure runs once per Start: it unwinds a blocked
// request, forgets the variable tree and the registered breakpoints,
// reports the program as destroyed and resets the caches.
func (e *Engine) handleTransportFailure(message string) {
	if !e.connectionFailed.CompareAndSwap(false, true) {
		return
	}
	if message == "" {
		message = "Host bridge connection failure."
	}
	e.diag.Info(message)

	e.waiter.Release("", Result{Message: message})
	e.cache.ResetVariableTree()
	e.breakpoints.clear()
	e.destroy()
	e.resetCaches(false)
}

// destroy tells the frontend the program is gone, once per session
func (e *Engine) destroy() {
	if e.destroyed.CompareAndSwap(false, true) {
		e.frontend.Notify(e.events.terminated())
	}
}

func (e *Engine) resetCaches(disposeTransport bool) {
	e.cache.ResetAll()
	if disposeTransport {
		e.channel.Close(true)
	}
}

func (e *Engine) resolvePath(file string) string {
	return ResolveSourcePath(file, e.opts.SourceRoot)
}

func invalidLocation(file string, line int) error {
	return errors.InvalidParameter("line", fmt.Sprintf("%s:%d", file, line), "a file path and a line > 0")
}

func breakpointNotFound(key breakpoints.Key) error {
	return errors.NotFound("breakpoint", key.String())
}
