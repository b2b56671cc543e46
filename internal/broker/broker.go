// Package broker relays traffic between the remote agent and the debug
// engine on the host side.
//
// Commands from the engine are numbered and sent to the remote agent;
// lines from the remote agent are passed to the engine untouched after a
// duplicate requestSeq check. Connection failures are reported once per
// connect attempt.
package broker

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/hostloop"
	"github.com/ctagard/dbg-bridge/internal/logging"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/transport"
)

// Observer receives broker notifications on the host loop
type Observer interface {
	TransportConnected()
	EngineCommandParsed(command string, payload protocol.Fields)
	RemoteConnectionFailed(message string)
}

// SessionStopper stops the host debugging session
type SessionStopper interface {
	StopDebugging() error
}

// Options configures a Broker
type Options struct {
	// Endpoint is the remote agent address and connection state
	Endpoint *config.Endpoint

	// EngineHost and EnginePort are where the engine connects
	EngineHost string
	EnginePort int

	ChannelOptions  []transport.Option
	ListenerOptions []transport.ListenerOption
}

// Status describes the broker's connections
type Status struct {
	SessionID          string `json:"sessionId"`
	Remote             string `json:"remote"`
	TransportConnected bool   `json:"transportConnected"`
	EnginePort         int    `json:"enginePort"`
	EngineAttached     bool   `json:"engineAttached"`
}

type Broker struct {
	id       string
	log      logr.Logger
	diag     *logging.Throttled
	loop     *hostloop.Loop
	endpoint *config.Endpoint
	remote   *transport.Channel
	engine   *EngineBridge

	observer Observer
	session  SessionStopper

	seq                atomic.Int64
	transportConnected atomic.Bool
	failureNotified    atomic.Bool
	inbound            *protocol.SequenceTracker
}

func New(log logr.Logger, loop *hostloop.Loop, opts Options) *Broker {
	endpoint := opts.Endpoint
	if endpoint == nil {
		endpoint = config.NewEndpoint(config.DefaultHost, config.DefaultPort)
	}
	engineHost := opts.EngineHost
	if engineHost == "" {
		engineHost = config.DefaultHost
	}

	id := uuid.New().String()
	b := &Broker{
		id:       id,
		log:      log.WithName("broker").WithValues("session", id),
		loop:     loop,
		endpoint: endpoint,
		inbound:  protocol.NewSequenceTracker(),
	}
	b.diag = logging.NewThrottled(b.log)

	channelOpts := append([]transport.Option{transport.WithConnectionState(endpoint)}, opts.ChannelOptions...)
	b.remote = transport.NewChannel("remote", b.log, transport.ObserverFuncs{
		OnLine:         b.onRemoteLine,
		OnFailed:       b.onRemoteConnectionFailed,
		OnDisconnected: b.onRemoteDisconnected,
	}, channelOpts...)

	b.engine = NewEngineBridge(b.log, engineHost, opts.EnginePort, EngineHandler{
		Forward: func(command string, payload protocol.Fields) {
			b.loop.Post(func() { b.SendToRemote(command, payload) })
		},
		Parsed: func(command string, payload protocol.Fields) {
			b.loop.Post(func() {
				if b.observer != nil {
					b.observer.EngineCommandParsed(command, payload)
				}
			})
		},
	}, opts.ListenerOptions...)

	return b
}

// SetObserver registers the observer. It must be called before Start.
func (b *Broker) SetObserver(o Observer) {
	b.observer = o
}

// SetSession registers the session stopped on remote disconnect
func (b *Broker) SetSession(s SessionStopper) {
	b.session = s
}

func (b *Broker) SessionID() string {
	return b.id
}

// Engine returns the engine-facing endpoint
func (b *Broker) Engine() *EngineBridge {
	return b.engine
}

func (b *Broker) Status() Status {
	return Status{
		SessionID:          b.id,
		Remote:             b.endpoint.HostPort(),
		TransportConnected: b.transportConnected.Load(),
		EnginePort:         b.engine.Port(),
		EngineAttached:     b.engine.Attached(),
	}
}

// Start connects to the remote agent and opens the engine port. It is a
// no-op when already connected. The observer's TransportConnected runs on
// the loop after Start returns.
func (b *Broker) Start(ctx context.Context) error {
	if b.transportConnected.Load() {
		return nil
	}

	if err := b.remote.Connect(ctx, b.endpoint.HostPort()); err != nil {
		return err
	}
	b.transportConnected.Store(true)

	if err := b.engine.EnsureListening(ctx); err != nil {
		b.log.Error(err, "Engine port unavailable")
		b.ResetTransportState(true, true, false)
		return err
	}

	b.log.Info("Remote transport connected", "remote", b.endpoint.HostPort(), "enginePort", b.engine.Port())
	b.loop.Post(func() {
		if b.observer != nil {
			b.observer.TransportConnected()
		}
	})
	return nil
}

// ShutdownTransport closes the remote connection and detaches the engine
func (b *Broker) ShutdownTransport() {
	b.ResetTransportState(true, true, false)
}

// Close shuts the transport down and stops listening for the engine
func (b *Broker) Close() error {
	b.ShutdownTransport()
	return b.engine.Close()
}

// SendToRemote numbers and sends a command. Internal notifications never
// reach the wire, nor does anything sent while disconnected. Sending stop
// tears the transport down.
func (b *Broker) SendToRemote(command string, payload protocol.Fields) bool {
	if command == "" || protocol.IsInternal(command) {
		return false
	}

	if !b.transportConnected.Load() {
		b.diag.Info("Transport not connected; dropping command", "command", command)
		return false
	}

	line, err := protocol.EncodeRequest(b.seq.Add(1), command, payload)
	if err != nil {
		b.log.Error(err, "Could not encode command", "command", command)
		return false
	}

	sent := b.remote.SendLine(line)

	if strings.EqualFold(command, protocol.CommandStop) {
		b.ResetTransportState(true, true, false)
	}
	return sent
}

// SendEngineEvent sends an event envelope to the engine
func (b *Broker) SendEngineEvent(name string, payload protocol.Fields) bool {
	if name == "" {
		return false
	}

	line, err := protocol.EncodeEvent(name, payload)
	if err != nil {
		b.diag.Error(err, "Could not encode engine event", "event", name)
		return false
	}

	if !b.engine.TrySendLine(line) {
		b.diag.Info("No engine connection; dropping event", "event", name)
		return false
	}
	return true
}

// ResetTransportState returns the broker to its disconnected state. It is
// idempotent.
func (b *Broker) ResetTransportState(closeRemote, markDisconnected, preserveFailureFlag bool) {
	b.seq.Store(0)
	b.transportConnected.Store(false)
	b.inbound.Reset()

	if !preserveFailureFlag {
		b.failureNotified.Store(false)
	}

	if closeRemote {
		b.remote.Close(true)
	}

	b.engine.DisconnectEngine()

	if markDisconnected {
		b.endpoint.MarkTransportDisconnected()
	}
}

// onRemoteLine runs on the remote reader goroutine.
func (b *Broker) onRemoteLine(line string) {
	if strings.TrimSpace(line) == "" || !protocol.LooksLikeJSON(line) {
		return
	}

	if seq, ok := protocol.ScanRequestSeq(line); ok && b.inbound.Observe(seq) {
		protocol.ReportDuplicate(b.diag, seq, line)
	}

	if !b.engine.TrySendLine(line) {
		b.diag.Info("Engine not connected; dropping remote line")
	}
}

func (b *Broker) onRemoteConnectionFailed(message string) {
	shouldNotify := b.failureNotified.CompareAndSwap(false, true)

	b.loop.Post(func() {
		b.ResetTransportState(true, false, true)

		if shouldNotify && b.observer != nil {
			b.observer.RemoteConnectionFailed(message)
		}
	})
}

func (b *Broker) onRemoteDisconnected(expected bool) {
	if expected {
		return
	}

	b.SendEngineEvent(protocol.EventTransportDisconnected, nil)

	b.loop.Post(func() {
		b.ResetTransportState(false, true, false)

		if b.session == nil {
			return
		}
		if err := b.session.StopDebugging(); err != nil {
			b.diag.Error(err, "Failed to stop debugging after transport disconnect")
		}
	})
}
