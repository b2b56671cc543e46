// Package mcp exposes the engine bridge through Model Context Protocol tools.
//
// Inspection (always available):
//   - bridge_status: connection and cache summary
//   - bridge_threads: refresh and list threads
//   - bridge_stack: frames of a thread
//   - bridge_scope: root variables of a frame
//   - bridge_evaluate: look up a dotted expression
//   - bridge_expand: children of a variable, fetched page by page
//   - bridge_events: recent frontend notifications
//   - bridge_breakpoints: the engine's breakpoint registry
//
// Control (full mode only):
//   - bridge_continue, bridge_step, bridge_pause, bridge_terminate
//   - bridge_set_variable
//   - bridge_set_breakpoint, bridge_remove_breakpoint, bridge_enable_breakpoint
//
// Every blocking tool goes through the engine's single wait slot, so a
// second concurrent call fails fast with WAIT_IN_PROGRESS.
package mcp

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/engine"
	"github.com/ctagard/dbg-bridge/internal/state"
	"github.com/ctagard/dbg-bridge/internal/version"
)

// Bridge is the engine surface the tools drive. *engine.Engine implements it.
type Bridge interface {
	Status() engine.Status
	Cache() *state.Cache

	Threads(ctx context.Context) ([]state.Thread, error)
	Stack(ctx context.Context, threadID int) ([]state.Frame, error)
	Scope(ctx context.Context, threadID, frameID int) ([]state.Variable, error)
	Evaluate(ctx context.Context, threadID, frameID int, expression string) (state.Variable, error)
	Expand(ctx context.Context, threadID, frameID int, addr int64) ([]state.Variable, error)
	SetVariable(ctx context.Context, threadID, frameID int, addr int64, value string) (state.Variable, error)

	Continue() ([]int, error)
	Step(threadID int, kind, unit string) error
	Pause() error
	Terminate() error

	SetBreakpoint(file string, line int, condition string, kind breakpoints.ConditionKind) (engine.Breakpoint, error)
	RemoveBreakpoint(file string, line int) (engine.Breakpoint, error)
	EnableBreakpoint(file string, line int, enabled bool) (engine.Breakpoint, error)
	Breakpoints() []engine.Breakpoint
}

// EventSource returns recorded frontend notifications, oldest first
type EventSource interface {
	Recent(limit int) []dap.Message
}

var _ Bridge = (*engine.Engine)(nil)

// Server wraps the MCP server with the bridge tools
type Server struct {
	log       logr.Logger
	mcpServer *server.MCPServer
	bridge    Bridge
	events    EventSource
	config    *config.Config
	tools     []string
}

// NewServer creates the MCP server and registers the tools allowed by the
// configured mode
func NewServer(log logr.Logger, cfg *config.Config, bridge Bridge, events EventSource) *Server {
	mcpServer := server.NewMCPServer(
		"dbg-bridge",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		log:       log.WithName("mcp"),
		mcpServer: mcpServer,
		bridge:    bridge,
		events:    events,
		config:    cfg,
	}
	s.registerTools()
	return s
}

// ServeStdio serves the tools on stdin/stdout until the client goes away
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ToolNames lists the registered tools in registration order
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.mcpServer.AddTool(tool, handler)
}
