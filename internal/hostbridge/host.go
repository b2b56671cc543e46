// Package hostbridge assembles the headless host side of the bridge.
//
// A Host owns the host loop, the broker relaying between the remote agent
// and the engine, and the breakpoint synchronizer seeded from the
// configuration. There is no editor behind it: errors meant for the user
// are logged, and stopping the debugging session ends Run.
package hostbridge

import (
	"context"
	stderrors "errors"
	"os"
	"strconv"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/broker"
	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/hostloop"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/trace"
	"github.com/ctagard/dbg-bridge/internal/transport"
)

// Options configures a Host
type Options struct {
	Config *config.Config

	// Recorder traces both transports when set
	Recorder *trace.Recorder

	// OnListening is called with the engine port once it is bound, after
	// the port file was written
	OnListening func(port int)

	// ChannelOptions are appended to the remote channel's options
	ChannelOptions []transport.Option
}

// Status is a snapshot of the host
type Status struct {
	Broker      broker.Status      `json:"broker"`
	Breakpoints breakpoints.Status `json:"breakpoints"`
}

type Host struct {
	log      logr.Logger
	cfg      *config.Config
	loop     *hostloop.Loop
	broker   *broker.Broker
	syncer   *breakpoints.Synchronizer
	store    *breakpoints.MemoryStore
	endpoint *config.Endpoint
	onListen func(port int)

	mu       sync.Mutex
	stop     context.CancelFunc
	stopped  bool
	lastErr  string
	startErr error
}

func New(log logr.Logger, opts Options) *Host {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	h := &Host{
		log:      log.WithName("host"),
		cfg:      cfg,
		loop:     hostloop.New(log),
		endpoint: config.NewEndpoint(cfg.Remote.Host, cfg.Remote.Port),
		onListen: opts.OnListening,
	}

	initial := make([]breakpoints.Breakpoint, 0, len(cfg.Breakpoints))
	for _, bp := range cfg.Breakpoints {
		initial = append(initial, breakpoints.FromConfig(bp))
	}
	h.store = breakpoints.NewMemoryStore(initial...)

	attempts := cfg.Remote.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	channelOpts := []transport.Option{
		transport.WithRetry(transport.ConnectBackOff(attempts, cfg.Remote.ConnectTimeout.Std())),
	}
	listenerOpts := []transport.ListenerOption{
		transport.WithPortPublisher(h.publishPort),
	}
	if opts.Recorder != nil {
		channelOpts = append(channelOpts, transport.WithRecorder(opts.Recorder.For(trace.SourceRemote)))
		listenerOpts = append(listenerOpts, transport.WithListenerRecorder(opts.Recorder.For(trace.SourceEngine)))
	}
	channelOpts = append(channelOpts, opts.ChannelOptions...)

	h.broker = broker.New(log, h.loop, broker.Options{
		Endpoint:        h.endpoint,
		EngineHost:      config.DefaultHost,
		EnginePort:      cfg.Listener.PreferredPort,
		ChannelOptions:  channelOpts,
		ListenerOptions: listenerOpts,
	})
	h.syncer = breakpoints.NewSynchronizer(log, h.store, h, h, h.endpoint)
	h.broker.SetObserver(h.syncer)
	h.broker.SetSession(h)
	return h
}

// Run connects to the remote agent, opens the engine port and relays until
// ctx is done or the debugging session stops. A session that ends because
// the remote agent could not be reached returns an error.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.mu.Lock()
	h.stop = cancel
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.loop.Run(gctx)
	})
	g.Go(func() error {
		var started bool
		if err := h.loop.Do(gctx, func() {
			started = h.syncer.SetActive(gctx, true)
		}); err != nil {
			return err
		}
		if !started {
			return h.startFailure()
		}
		h.log.Info("Host bridge running",
			"remote", h.endpoint.HostPort(),
			"enginePort", h.broker.Engine().Port(),
			"breakpoints", h.store.Count())

		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	h.shutdown()

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, hostloop.ErrStopped) {
		err = nil
	}
	if err == nil {
		err = h.sessionError()
	}
	return err
}

// Status reports the broker and synchronizer state. The synchronizer part
// is read on the loop; it is zero once the loop has exited.
func (h *Host) Status(ctx context.Context) Status {
	status := Status{Broker: h.broker.Status()}
	_ = h.loop.Do(ctx, func() {
		status.Breakpoints = h.syncer.Status()
	})
	return status
}

// SetBreakpoint adds or replaces a breakpoint in the host store and sends it
// when the transport is ready
func (h *Host) SetBreakpoint(ctx context.Context, bp breakpoints.Breakpoint) error {
	return h.loop.Do(ctx, func() { h.syncer.Set(bp) })
}

// RemoveBreakpoint drops a breakpoint from the host store
func (h *Host) RemoveBreakpoint(ctx context.Context, key breakpoints.Key) error {
	return h.loop.Do(ctx, func() { h.syncer.Remove(key) })
}

// Breakpoints lists the host store
func (h *Host) Breakpoints() []breakpoints.Breakpoint {
	keys := h.store.Keys()
	out := make([]breakpoints.Breakpoint, 0, len(keys))
	for _, key := range keys {
		if bp, ok := h.store.Lookup(key); ok {
			out = append(out, bp)
		}
	}
	return out
}

// EnginePort is the bound engine port, 0 before listening
func (h *Host) EnginePort() int {
	return h.broker.Engine().Port()
}

// Start implements breakpoints.Remote. The error is kept so Run can report
// why activation failed.
func (h *Host) Start(ctx context.Context) error {
	err := h.broker.Start(ctx)
	h.mu.Lock()
	h.startErr = err
	h.mu.Unlock()
	return err
}

func (h *Host) ShutdownTransport() {
	h.broker.ShutdownTransport()
}

func (h *Host) SendToRemote(command string, payload protocol.Fields) bool {
	return h.broker.SendToRemote(command, payload)
}

// ShowError implements breakpoints.HostSession
func (h *Host) ShowError(message string) {
	h.log.Error(nil, message, "remote", h.endpoint.HostPort())
	h.mu.Lock()
	h.lastErr = message
	h.mu.Unlock()
}

// StopDebugging implements breakpoints.HostSession and broker.SessionStopper
func (h *Host) StopDebugging() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop == nil || h.stopped {
		return nil
	}
	h.stopped = true
	h.log.Info("Debugging session stopped")
	h.stop()
	return nil
}

func (h *Host) startFailure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return errors.FromError(h.startErr)
	}
	return errors.TransportFailure(h.endpoint.HostPort(), stderrors.New("remote transport did not start"))
}

func (h *Host) sessionError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastErr == "" {
		return nil
	}
	return errors.TransportFailure(h.endpoint.HostPort(), stderrors.New(h.lastErr))
}

func (h *Host) shutdown() {
	h.syncer.Deactivate()
	if err := h.broker.Close(); err != nil {
		h.log.V(1).Info("Engine listener close failed", "error", err.Error())
	}
	if path := h.cfg.Listener.PortFile; path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			h.log.V(1).Info("Port file not removed", "path", path, "error", err.Error())
		}
	}
}

func (h *Host) publishPort(port int) {
	if path := h.cfg.Listener.PortFile; path != "" {
		if err := os.WriteFile(path, []byte(strconv.Itoa(port)+"\n"), 0o644); err != nil {
			h.log.Error(err, "Writing the port file failed", "path", path)
		} else {
			h.log.V(1).Info("Engine port published", "path", path, "port", port)
		}
	}
	if h.onListen != nil {
		h.onListen(port)
	}
}
