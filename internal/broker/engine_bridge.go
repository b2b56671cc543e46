package broker

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/ctagard/dbg-bridge/internal/logging"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/transport"
)

// EngineHandler receives commands parsed from engine lines. parsed is
// called for every line, even when no command could be extracted.
type EngineHandler struct {
	Forward func(command string, payload protocol.Fields)
	Parsed  func(command string, payload protocol.Fields)
}

// EngineBridge is the loopback endpoint the debug engine connects to
type EngineBridge struct {
	log      logr.Logger
	diag     *logging.Throttled
	listener *transport.Listener
	handler  EngineHandler
}

func NewEngineBridge(log logr.Logger, host string, preferredPort int, handler EngineHandler, opts ...transport.ListenerOption) *EngineBridge {
	b := &EngineBridge{
		log:     log.WithName("engine-link"),
		handler: handler,
	}
	b.diag = logging.NewThrottled(b.log)
	b.listener = transport.NewListener(b.log, host, preferredPort, b.OnEngineLine, opts...)
	return b
}

// EnsureListening binds the engine port if needed
func (b *EngineBridge) EnsureListening(ctx context.Context) error {
	return b.listener.EnsureListening(ctx)
}

// Port is the bound engine port, 0 when not listening
func (b *EngineBridge) Port() int {
	return b.listener.Port()
}

// Attached reports whether an engine is connected
func (b *EngineBridge) Attached() bool {
	return b.listener.HasPeer()
}

// TrySendLine writes line to the engine, if one is attached
func (b *EngineBridge) TrySendLine(line string) bool {
	return b.listener.SendLine(line)
}

// DisconnectEngine drops the current engine connection
func (b *EngineBridge) DisconnectEngine() {
	b.listener.DisconnectPeer()
}

func (b *EngineBridge) Close() error {
	return b.listener.Close()
}

// OnEngineLine decodes a line from the engine. The command name is removed
// from the payload before forwarding.
func (b *EngineBridge) OnEngineLine(line string) {
	var command string
	var payload protocol.Fields

	defer func() {
		if b.handler.Parsed != nil {
			b.handler.Parsed(command, payload)
		}
	}()

	fields, err := protocol.DecodeFields([]byte(line))
	if err != nil {
		b.diag.Error(err, "Engine line is not a JSON object")
		return
	}
	payload = fields

	name, ok := fields.String("command")
	if !ok || name == "" {
		return
	}
	command = name
	delete(fields, "command")

	if b.handler.Forward != nil {
		b.handler.Forward(command, fields)
	}
}
