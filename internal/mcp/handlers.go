package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/engine"
	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/state"
	"github.com/ctagard/dbg-bridge/pkg/types"
)

const defaultEventLimit = 50

// Inspection Handlers

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.bridge.Status()

	status := types.SessionStatusDisconnected
	switch {
	case st.Destroyed:
		status = types.SessionStatusTerminated
	case st.Connected:
		status = types.SessionStatusConnected
	}

	return jsonResult(types.StatusInfo{
		SessionID:      st.SessionID,
		Address:        st.Address,
		Status:         status,
		Mode:           string(s.config.Mode),
		ConnectionID:   st.ConnectionID,
		PendingRequest: st.PendingRequest,
		Threads:        st.Threads,
		Variables:      st.Variables,
		Breakpoints:    st.Breakpoints,
	})
}

func (s *Server) handleThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threads, err := s.bridge.Threads(ctx)
	if err != nil {
		return toolError(err), nil
	}

	result := make([]types.ThreadInfo, len(threads))
	for i, t := range threads {
		result[i] = types.ThreadInfo{
			ID:         t.ID,
			Name:       t.Name,
			Stopped:    t.Stopped,
			StopReason: t.StopReason,
			File:       t.File,
			Line:       t.Line,
		}
	}

	return jsonResult(map[string]interface{}{
		"threads": result,
	})
}

func (s *Server) handleStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := intArg(request, "threadId")
	if err != nil {
		return toolError(err), nil
	}

	frames, err := s.bridge.Stack(ctx, threadID)
	if err != nil {
		return toolError(err), nil
	}

	result := make([]dap.StackFrame, len(frames))
	for i, f := range frames {
		result[i] = engine.ToDAPStackFrame(f)
	}

	return jsonResult(map[string]interface{}{
		"stackFrames": result,
		"totalFrames": len(result),
	})
}

func (s *Server) handleScope(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, frameID, err := frameArgs(request)
	if err != nil {
		return toolError(err), nil
	}

	vars, err := s.bridge.Scope(ctx, threadID, frameID)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"variables": toDAPVariables(vars),
	})
}

func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, frameID, err := frameArgs(request)
	if err != nil {
		return toolError(err), nil
	}

	expression, err := request.RequireString("expression")
	if err != nil {
		return toolError(errors.MissingParameter("expression",
			"Provide a variable name or a dotted path such as 'obj.field'.")), nil
	}

	v, err := s.bridge.Evaluate(ctx, threadID, frameID, expression)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"expression": expression,
		"result":     engine.ToDAPVariable(v),
	})
}

func (s *Server) handleExpand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, frameID, err := frameArgs(request)
	if err != nil {
		return toolError(err), nil
	}
	addr, err := addrArg(request)
	if err != nil {
		return toolError(err), nil
	}

	children, err := s.bridge.Expand(ctx, threadID, frameID, addr)
	if err != nil {
		return toolError(err), nil
	}

	result := map[string]interface{}{
		"variables": toDAPVariables(children),
	}
	// tell the caller when another call would load more
	if v, ok := s.bridge.Cache().Variable(addr); ok && v.NeedsLoad() && v.Size > len(v.Elements) {
		result["totalChildren"] = v.Size
		result["complete"] = false
	} else {
		result["complete"] = true
	}
	return jsonResult(result)
}

func (s *Server) handleEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := defaultEventLimit
	if l, err := request.RequireFloat("limit"); err == nil && l > 0 {
		limit = int(l)
	}

	var events []types.EventInfo
	if s.events != nil {
		for _, msg := range s.events.Recent(limit) {
			if info, ok := eventInfo(msg); ok {
				events = append(events, info)
			}
		}
	}
	if events == nil {
		events = []types.EventInfo{}
	}

	return jsonResult(map[string]interface{}{
		"events": events,
	})
}

func (s *Server) handleBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"breakpoints": s.bridge.Breakpoints(),
	})
}

// Control Handlers

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resumed, err := s.bridge.Continue()
	if err != nil {
		return toolError(err), nil
	}
	if resumed == nil {
		resumed = []int{}
	}
	return jsonResult(types.ContinueResult{Resumed: resumed})
}

func (s *Server) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := intArg(request, "threadId")
	if err != nil {
		return toolError(err), nil
	}

	kind := strings.ToLower(request.GetString("stepKind", engine.StepOver))
	unit := strings.ToLower(request.GetString("stepUnit", engine.StepUnitLine))
	if err := s.bridge.Step(threadID, kind, unit); err != nil {
		return toolError(err), nil
	}

	return jsonResult(types.StepResult{ThreadID: threadID, StepKind: kind, StepUnit: unit})
}

func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.bridge.Pause(); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("Pause requested"), nil
}

func (s *Server) handleSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, frameID, err := frameArgs(request)
	if err != nil {
		return toolError(err), nil
	}
	addr, err := addrArg(request)
	if err != nil {
		return toolError(err), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return toolError(errors.MissingParameter("value", "Provide the new value as source text, e.g. '42' or '\"text\"'.")), nil
	}

	v, err := s.bridge.SetVariable(ctx, threadID, frameID, addr, value)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(engine.ToDAPVariable(v))
}

func (s *Server) handleTerminate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.bridge.Terminate(); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("Program terminated"), nil
}

func (s *Server) handleSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, line, err := locationArgs(request)
	if err != nil {
		return toolError(err), nil
	}

	condition := request.GetString("condition", "")
	kind := breakpoints.ConditionKind(request.GetString("conditionType", ""))
	switch kind {
	case breakpoints.ConditionNone, breakpoints.ConditionWhenTrue, breakpoints.ConditionWhenChanged:
	default:
		return toolError(errors.InvalidParameter("conditionType", string(kind), "'whenTrue' or 'whenChanged'")), nil
	}

	bp, err := s.bridge.SetBreakpoint(file, line, condition, kind)
	if err != nil {
		return toolError(err), nil
	}
	return breakpointResult(bp)
}

func (s *Server) handleRemoveBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, line, err := locationArgs(request)
	if err != nil {
		return toolError(err), nil
	}

	bp, err := s.bridge.RemoveBreakpoint(file, line)
	if err != nil {
		return toolError(err), nil
	}
	return breakpointResult(bp)
}

func (s *Server) handleEnableBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, line, err := locationArgs(request)
	if err != nil {
		return toolError(err), nil
	}
	enabled, ok := protocol.Fields(request.GetArguments()).Bool("enabled")
	if !ok {
		return toolError(errors.MissingParameter("enabled", "Pass true to enable or false to disable.")), nil
	}

	bp, err := s.bridge.EnableBreakpoint(file, line, enabled)
	if err != nil {
		return toolError(err), nil
	}
	return breakpointResult(bp)
}

// Helpers

// toolError renders err with its code so callers can tell a busy wait slot
// from a failed operation
func toolError(err error) *mcp.CallToolResult {
	be := errors.FromError(err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", be.Code, be.Error()))
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func breakpointResult(bp engine.Breakpoint) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"breakpoint": bp,
		"dap":        engine.ToDAPBreakpoint(bp),
	})
}

// intArg reads a required integer argument. Numbers may arrive as JSON
// numbers or numeric strings.
func intArg(request mcp.CallToolRequest, name string) (int, error) {
	args := protocol.Fields(request.GetArguments())
	if !args.Has(name) {
		return 0, errors.MissingParameter(name, fmt.Sprintf("Provide %s as an integer.", name))
	}
	n, ok := args.Int(name)
	if !ok {
		return 0, errors.InvalidParameter(name, args[name], "an integer")
	}
	return n, nil
}

func frameArgs(request mcp.CallToolRequest) (threadID, frameID int, err error) {
	if threadID, err = intArg(request, "threadId"); err != nil {
		return 0, 0, err
	}
	if frameID, err = intArg(request, "frameId"); err != nil {
		return 0, 0, err
	}
	return threadID, frameID, nil
}

// addrArg reads a variable address. Addresses are 64-bit, so numeric
// strings are accepted for values beyond float precision.
func addrArg(request mcp.CallToolRequest) (int64, error) {
	args := protocol.Fields(request.GetArguments())
	if !args.Has("addr") {
		return 0, errors.MissingParameter("addr", "Use the variablesReference of an expandable variable or the memoryReference of any variable.")
	}
	addr, ok := args.Int64("addr")
	if !ok || addr == 0 {
		return 0, errors.InvalidParameter("addr", args["addr"], "a non-zero variable address")
	}
	return addr, nil
}

func locationArgs(request mcp.CallToolRequest) (string, int, error) {
	file, err := request.RequireString("file")
	if err != nil || strings.TrimSpace(file) == "" {
		return "", 0, errors.MissingParameter("file", "Provide the source file path.")
	}
	line, err := intArg(request, "line")
	if err != nil {
		return "", 0, err
	}
	if line <= 0 {
		return "", 0, errors.InvalidParameter("line", line, "a 1-based line number")
	}
	return file, line, nil
}

func toDAPVariables(vars []state.Variable) []dap.Variable {
	out := make([]dap.Variable, len(vars))
	for i, v := range vars {
		out[i] = engine.ToDAPVariable(v)
	}
	return out
}

// eventInfo flattens a recorded DAP event
func eventInfo(msg dap.Message) (types.EventInfo, bool) {
	switch m := msg.(type) {
	case *dap.StoppedEvent:
		return types.EventInfo{Seq: m.Seq, Event: m.Event.Event, Body: m.Body}, true
	case *dap.ContinuedEvent:
		return types.EventInfo{Seq: m.Seq, Event: m.Event.Event, Body: m.Body}, true
	case *dap.ThreadEvent:
		return types.EventInfo{Seq: m.Seq, Event: m.Event.Event, Body: m.Body}, true
	case *dap.OutputEvent:
		return types.EventInfo{Seq: m.Seq, Event: m.Event.Event, Body: m.Body}, true
	case *dap.BreakpointEvent:
		return types.EventInfo{Seq: m.Seq, Event: m.Event.Event, Body: m.Body}, true
	case *dap.TerminatedEvent:
		return types.EventInfo{Seq: m.Seq, Event: m.Event.Event}, true
	}
	return types.EventInfo{}, false
}
