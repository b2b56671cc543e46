package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/engine"
	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/state"
)

// fakeBridge answers from fixed data and records control calls
type fakeBridge struct {
	cache   *state.Cache
	status  engine.Status
	threads []state.Thread
	frames  []state.Frame
	vars    []state.Variable
	err     error

	steps    []string
	expanded []int64
	bps      []engine.Breakpoint
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{cache: state.NewCache(logr.Discard())}
}

func (f *fakeBridge) Status() engine.Status { return f.status }
func (f *fakeBridge) Cache() *state.Cache   { return f.cache }

func (f *fakeBridge) Threads(context.Context) ([]state.Thread, error) { return f.threads, f.err }

func (f *fakeBridge) Stack(context.Context, int) ([]state.Frame, error) { return f.frames, f.err }

func (f *fakeBridge) Scope(context.Context, int, int) ([]state.Variable, error) { return f.vars, f.err }

func (f *fakeBridge) Evaluate(_ context.Context, _, _ int, expression string) (state.Variable, error) {
	if f.err != nil {
		return state.Variable{}, f.err
	}
	return state.Variable{Name: expression, Value: "42", Type: "int", Addr: 7, TypeID: 1}, nil
}

func (f *fakeBridge) Expand(_ context.Context, _, _ int, addr int64) ([]state.Variable, error) {
	f.expanded = append(f.expanded, addr)
	return f.vars, f.err
}

func (f *fakeBridge) SetVariable(_ context.Context, _, _ int, addr int64, value string) (state.Variable, error) {
	return state.Variable{Name: "n", Value: value, Type: "int", Addr: addr, TypeID: 1}, f.err
}

func (f *fakeBridge) Continue() ([]int, error) { return []int{1, 2}, f.err }

func (f *fakeBridge) Step(threadID int, kind, unit string) error {
	f.steps = append(f.steps, kind+"/"+unit)
	return f.err
}

func (f *fakeBridge) Pause() error     { return f.err }
func (f *fakeBridge) Terminate() error { return f.err }

func (f *fakeBridge) SetBreakpoint(file string, line int, condition string, kind breakpoints.ConditionKind) (engine.Breakpoint, error) {
	bp := engine.Breakpoint{ID: len(f.bps) + 1, File: file, Line: line, Enabled: true, Bindable: true, Condition: condition, ConditionKind: kind}
	f.bps = append(f.bps, bp)
	return bp, f.err
}

func (f *fakeBridge) RemoveBreakpoint(file string, line int) (engine.Breakpoint, error) {
	return engine.Breakpoint{}, errors.NotFound("breakpoint", file)
}

func (f *fakeBridge) EnableBreakpoint(file string, line int, enabled bool) (engine.Breakpoint, error) {
	return engine.Breakpoint{ID: 1, File: file, Line: line, Enabled: enabled, Bindable: true}, f.err
}

func (f *fakeBridge) Breakpoints() []engine.Breakpoint { return f.bps }

func newTestServer(t *testing.T, mode config.CapabilityMode, bridge *fakeBridge, events EventSource) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	return NewServer(logr.Discard(), cfg, bridge, events)
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

// TestServer_ModeGating verifies control tools only exist in full mode.
func TestServer_ModeGating(t *testing.T) {
	readonly := newTestServer(t, config.ModeReadOnly, newFakeBridge(), nil)
	full := newTestServer(t, config.ModeFull, newFakeBridge(), nil)

	assert.Contains(t, readonly.ToolNames(), "bridge_breakpoints")
	assert.NotContains(t, readonly.ToolNames(), "bridge_continue")
	assert.NotContains(t, readonly.ToolNames(), "bridge_set_breakpoint")

	assert.Len(t, readonly.ToolNames(), 8)
	assert.Len(t, full.ToolNames(), 16)
	assert.Contains(t, full.ToolNames(), "bridge_enable_breakpoint")
}

// TestHandlers_Inspection verifies the inspection tools render DAP shapes.
func TestHandlers_Inspection(t *testing.T) {
	bridge := newFakeBridge()
	bridge.status = engine.Status{SessionID: "s1", Connected: true, Threads: 1}
	bridge.threads = []state.Thread{{ID: 1, Name: "main", Stopped: true, StopReason: "breakpoint", File: "/src/a.cpp", Line: 3}}
	bridge.frames = []state.Frame{{ID: 10, Name: "main", File: "/src/a.cpp", Line: 3}}
	bridge.vars = []state.Variable{
		{Name: "n", Value: "1", Type: "int", Addr: 100, TypeID: 1},
		{Name: "list", Value: "[2]", Type: "List", Addr: 200, TypeID: 2, Size: 2},
	}
	s := newTestServer(t, config.ModeReadOnly, bridge, nil)
	ctx := context.Background()

	res, err := s.handleStatus(ctx, call(nil))
	require.NoError(t, err)
	status := decodeResult(t, res)
	assert.Equal(t, "connected", status["status"])
	assert.Equal(t, "readonly", status["mode"])

	res, err = s.handleThreads(ctx, call(nil))
	require.NoError(t, err)
	threads := decodeResult(t, res)["threads"].([]any)
	require.Len(t, threads, 1)
	assert.Equal(t, "breakpoint", threads[0].(map[string]any)["stopReason"])

	res, err = s.handleStack(ctx, call(map[string]any{"threadId": 1.0}))
	require.NoError(t, err)
	frames := decodeResult(t, res)["stackFrames"].([]any)
	require.Len(t, frames, 1)
	source := frames[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "a.cpp", source["name"])

	res, err = s.handleScope(ctx, call(map[string]any{"threadId": 1.0, "frameId": 10.0}))
	require.NoError(t, err)
	vars := decodeResult(t, res)["variables"].([]any)
	require.Len(t, vars, 2)
	assert.EqualValues(t, 200, vars[1].(map[string]any)["variablesReference"])

	res, err = s.handleEvaluate(ctx, call(map[string]any{"threadId": 1.0, "frameId": 10.0, "expression": "a.b"}))
	require.NoError(t, err)
	result := decodeResult(t, res)["result"].(map[string]any)
	assert.Equal(t, "42", result["value"])

	// addresses beyond float precision arrive as strings
	res, err = s.handleExpand(ctx, call(map[string]any{"threadId": 1.0, "frameId": 10.0, "addr": "9007199254740993"}))
	require.NoError(t, err)
	decodeResult(t, res)
	assert.Equal(t, []int64{9007199254740993}, bridge.expanded)
}

// TestHandlers_ParameterErrors verifies missing and invalid arguments.
func TestHandlers_ParameterErrors(t *testing.T) {
	s := newTestServer(t, config.ModeFull, newFakeBridge(), nil)
	ctx := context.Background()

	res, err := s.handleStack(ctx, call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), string(errors.CodeMissingParameter))

	res, err = s.handleExpand(ctx, call(map[string]any{"threadId": 1.0, "frameId": 2.0, "addr": 0.0}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), string(errors.CodeInvalidParameter))

	res, err = s.handleSetBreakpoint(ctx, call(map[string]any{"file": "a.cpp", "line": 3.0, "conditionType": "sometimes"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), string(errors.CodeInvalidParameter))

	res, err = s.handleEnableBreakpoint(ctx, call(map[string]any{"file": "a.cpp", "line": 3.0}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "enabled")
}

// TestHandlers_BridgeErrors verifies engine errors become tool errors.
func TestHandlers_BridgeErrors(t *testing.T) {
	bridge := newFakeBridge()
	bridge.err = errors.WaitInProgress("get_stack", "get_threads")
	s := newTestServer(t, config.ModeFull, bridge, nil)

	res, err := s.handleThreads(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), string(errors.CodeWaitInProgress))

	res, err = s.handleRemoveBreakpoint(context.Background(), call(map[string]any{"file": "a.cpp", "line": 3.0}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), string(errors.CodeNotFound))
}

// TestHandlers_Control verifies the control tools.
func TestHandlers_Control(t *testing.T) {
	bridge := newFakeBridge()
	s := newTestServer(t, config.ModeFull, bridge, nil)
	ctx := context.Background()

	res, err := s.handleStep(ctx, call(map[string]any{"threadId": 3.0, "stepKind": "INTO"}))
	require.NoError(t, err)
	step := decodeResult(t, res)
	assert.Equal(t, "into", step["stepKind"])
	assert.Equal(t, []string{"into/line"}, bridge.steps)

	res, err = s.handleContinue(ctx, call(nil))
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, decodeResult(t, res)["resumed"])

	res, err = s.handleSetBreakpoint(ctx, call(map[string]any{"file": "a.cpp", "line": 3.0, "condition": "x > 1"}))
	require.NoError(t, err)
	bp := decodeResult(t, res)["breakpoint"].(map[string]any)
	assert.Equal(t, "x > 1", bp["condition"])

	res, err = s.handleEnableBreakpoint(ctx, call(map[string]any{"file": "a.cpp", "line": 3.0, "enabled": false}))
	require.NoError(t, err)
	assert.Equal(t, false, decodeResult(t, res)["breakpoint"].(map[string]any)["enabled"])

	res, err = s.handleBreakpoints(ctx, call(nil))
	require.NoError(t, err)
	assert.Len(t, decodeResult(t, res)["breakpoints"], 1)

	res, err = s.handleSetVariable(ctx, call(map[string]any{"threadId": 1.0, "frameId": 2.0, "addr": 55.0, "value": "9"}))
	require.NoError(t, err)
	assert.Equal(t, "9", decodeResult(t, res)["value"])
}

type staticEvents []dap.Message

func (s staticEvents) Recent(limit int) []dap.Message {
	if limit > 0 && len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}

// TestHandlers_Events verifies recorded notifications are flattened.
func TestHandlers_Events(t *testing.T) {
	events := staticEvents{
		&dap.ThreadEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: 1, Type: "event"}, Event: "thread"}, Body: dap.ThreadEventBody{Reason: "started", ThreadId: 1}},
		&dap.StoppedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: 2, Type: "event"}, Event: "stopped"}, Body: dap.StoppedEventBody{Reason: "step", ThreadId: 1}},
		&dap.TerminatedEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: 3, Type: "event"}, Event: "terminated"}},
	}
	s := newTestServer(t, config.ModeReadOnly, newFakeBridge(), events)

	res, err := s.handleEvents(context.Background(), call(map[string]any{"limit": 2.0}))
	require.NoError(t, err)
	list := decodeResult(t, res)["events"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "stopped", list[0].(map[string]any)["event"])
	assert.Equal(t, "terminated", list[1].(map[string]any)["event"])

	empty := newTestServer(t, config.ModeReadOnly, newFakeBridge(), nil)
	res, err = empty.handleEvents(context.Background(), call(nil))
	require.NoError(t, err)
	assert.Empty(t, decodeResult(t, res)["events"])
}
