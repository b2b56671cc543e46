package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/state"
)

// Step kinds and units
const (
	StepOver = "over"
	StepInto = "into"
	StepOut  = "out"

	StepUnitLine        = "line"
	StepUnitStatement   = "statement"
	StepUnitInstruction = "instruction"
)

// Threads refreshes and returns the thread list
func (e *Engine) Threads(ctx context.Context) ([]state.Thread, error) {
	if _, err := e.request(ctx, protocol.CommandGetThreads, nil); err != nil {
		return nil, err
	}
	return e.cache.Threads(), nil
}

// Stack fetches the frames of a thread
func (e *Engine) Stack(ctx context.Context, threadID int) ([]state.Frame, error) {
	_, err := e.request(ctx, protocol.CommandGetStack, map[string]any{"threadId": threadID})
	if err != nil {
		return nil, err
	}
	t, ok := e.cache.Thread(threadID)
	if !ok {
		return nil, errors.NotFound("thread", strconv.Itoa(threadID))
	}
	return t.Frames, nil
}

// Scope fetches the root variables of a frame
func (e *Engine) Scope(ctx context.Context, threadID, frameID int) ([]state.Variable, error) {
	_, err := e.request(ctx, protocol.CommandGetScope, map[string]any{
		"threadId": threadID,
		"frameId":  frameID,
	})
	if err != nil {
		return nil, err
	}
	addrs, ok := e.cache.FrameVariables(threadID, frameID)
	if !ok {
		return nil, errors.NotFound("frame", strconv.Itoa(frameID))
	}
	return e.cache.Variables(addrs), nil
}

// Evaluate resolves a dotted expression such as "a.b.c" in a frame.
// Every prefix not found among the frame's roots is evaluated remotely,
// and unexpanded nodes along the path are expanded on the way.
func (e *Engine) Evaluate(ctx context.Context, threadID, frameID int, expression string) (state.Variable, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return state.Variable{}, errors.MissingParameter("expression", "Provide a variable name or a dotted path such as 'obj.field'.")
	}
	parts := strings.Split(expression, ".")
	for _, p := range parts {
		if p == "" {
			return state.Variable{}, errors.InvalidParameter("expression", expression, "names separated by single dots")
		}
	}

	for i := 1; i <= len(parts); i++ {
		if _, ok, err := e.findPath(ctx, threadID, frameID, parts[:i]); err != nil {
			return state.Variable{}, err
		} else if ok {
			continue
		}

		_, err := e.request(ctx, protocol.CommandGetEvaluation, map[string]any{
			"threadId":   threadID,
			"frameId":    frameID,
			"expression": strings.Join(parts[:i], "."),
		})
		if err != nil {
			return state.Variable{}, err
		}
	}

	v, ok, err := e.findPath(ctx, threadID, frameID, parts)
	if err != nil {
		return state.Variable{}, err
	}
	if !ok {
		return state.Variable{}, errors.NotFound("expression", expression)
	}
	return v, nil
}

// findPath walks the frame's roots by name
func (e *Engine) findPath(ctx context.Context, threadID, frameID int, parts []string) (state.Variable, bool, error) {
	v, ok := e.cache.FindRoot(threadID, frameID, parts[0])
	if !ok {
		return state.Variable{}, false, nil
	}

	for _, name := range parts[1:] {
		if v.Size != 0 && v.Elements == nil {
			if err := e.fetchChildren(ctx, threadID, frameID, v, 0, 0); err != nil {
				return state.Variable{}, false, err
			}
		}
		if v, ok = e.cache.FindChild(v.Addr, name); !ok {
			return state.Variable{}, false, nil
		}
	}
	return v, true, nil
}

// Expand returns the children of the variable at addr, fetching the ones
// not known yet. Repeated calls only request the missing window.
func (e *Engine) Expand(ctx context.Context, threadID, frameID int, addr int64) ([]state.Variable, error) {
	v, ok := e.cache.Variable(addr)
	if !ok {
		return nil, errors.NotFound("variable", strconv.FormatInt(addr, 10))
	}
	if !v.Expandable() {
		return []state.Variable{}, nil
	}

	if v.NeedsLoad() {
		start, count := v.PageWindow()
		if err := e.fetchChildren(ctx, threadID, frameID, v, start, count); err != nil {
			return nil, err
		}
		if v, ok = e.cache.Variable(addr); !ok {
			return nil, errors.NotFound("variable", strconv.FormatInt(addr, 10))
		}
	}
	return e.cache.Variables(v.Elements), nil
}

func (e *Engine) fetchChildren(ctx context.Context, threadID, frameID int, v state.Variable, start, count int) error {
	_, err := e.request(ctx, protocol.CommandGetProperty, map[string]any{
		"threadId": threadID,
		"frameId":  frameID,
		"addr":     v.Addr,
		"typeId":   v.TypeID,
		"start":    start,
		"count":    count,
	})
	return err
}

// SetVariable edits a scalar variable and updates the cached value
func (e *Engine) SetVariable(ctx context.Context, threadID, frameID int, addr int64, value string) (state.Variable, error) {
	v, ok := e.cache.Variable(addr)
	if !ok {
		return state.Variable{}, errors.NotFound("variable", strconv.FormatInt(addr, 10))
	}
	if !v.Editable() {
		return state.Variable{}, errors.InvalidParameter("addr", addr, "a scalar variable with a known type")
	}

	_, err := e.request(ctx, protocol.CommandSetVariable, map[string]any{
		"threadId": threadID,
		"frameId":  frameID,
		"addr":     v.Addr,
		"typeId":   v.TypeID,
		"value":    value,
	})
	if err != nil {
		return state.Variable{}, err
	}

	e.cache.SetVariableValue(addr, value)
	v.Value = value
	return v, nil
}

// Continue resumes every stopped thread the frontend holds a handle for
// and returns their ids.
func (e *Engine) Continue() ([]int, error) {
	var resumed []int
	for _, id := range e.cache.StoppedAnnounced() {
		if !e.send(protocol.CommandContinue, map[string]any{"threadId": id}) {
			return resumed, errors.NotConnected(protocol.CommandContinue)
		}
		resumed = append(resumed, id)
	}
	return resumed, nil
}

// Step steps one thread. Empty kind and unit default to over and line.
func (e *Engine) Step(threadID int, kind, unit string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	unit = strings.ToLower(strings.TrimSpace(unit))
	if kind == "" {
		kind = StepOver
	}
	if unit == "" {
		unit = StepUnitLine
	}
	switch kind {
	case StepOver, StepInto, StepOut:
	default:
		return errors.InvalidParameter("stepKind", kind, "'over', 'into' or 'out'")
	}
	switch unit {
	case StepUnitLine, StepUnitStatement, StepUnitInstruction:
	default:
		return errors.InvalidParameter("stepUnit", unit, "'line', 'statement' or 'instruction'")
	}

	ok := e.send(protocol.CommandStep, map[string]any{
		"threadId": threadID,
		"stepKind": kind,
		"stepUnit": unit,
	})
	if !ok {
		return errors.NotConnected(protocol.CommandStep)
	}
	return nil
}

// Pause asks the agent to break. The agent may answer that pause is not
// supported.
func (e *Engine) Pause() error {
	if !e.send(protocol.CommandPause, nil) {
		return errors.NotConnected(protocol.CommandPause)
	}
	return nil
}

// Terminate sends stop, reports the program destroyed and drops the
// connection.
func (e *Engine) Terminate() error {
	sent := e.send(protocol.CommandStop, nil)

	e.cache.ResetVariableTree()
	e.breakpoints.clear()
	e.destroy()
	e.resetCaches(true)

	if !sent {
		return errors.NotConnected(protocol.CommandStop)
	}
	return nil
}
