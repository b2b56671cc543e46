package engine

import (
	"fmt"
	"strings"

	"github.com/google/go-dap"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/protocol"
	"github.com/ctagard/dbg-bridge/internal/state"
)

// Stop reasons reported by the agent
const (
	ReasonStep       = "step"
	ReasonBreakpoint = "breakpoint"
	ReasonException  = "exception"
)

// StartSucceededMessage is written to the frontend when start is answered
const StartSucceededMessage = "The start command responded successfully\n"

// HandleLine processes one line from the host bridge. It never panics: a
// failure while handling a line is logged and unwinds any blocked request.
func (e *Engine) HandleLine(line string) {
	e.lineMu.Lock()
	defer e.lineMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.diag.Info("Error processing line", "panic", fmt.Sprint(r), "line", line)
			e.waiter.Release("", Result{Message: fmt.Sprintf("error processing line: %v", r)})
		}
	}()

	msg, err := e.classifier.Classify(line)
	if err != nil {
		e.diag.Info("Dropping message", "reason", err.Error())
		switch m := msg.(type) {
		case *protocol.Response:
			e.waiter.Release(m.Command, Result{Command: m.Command, Message: err.Error(), Fields: m.Fields})
		case nil:
			e.waiter.Release("", Result{Message: err.Error()})
		}
		return
	}

	switch m := msg.(type) {
	case *protocol.Event:
		e.handleEvent(m)
	case *protocol.Response:
		result := e.handleResponse(m)
		e.waiter.Release(m.Command, result)
	case *protocol.Request:
		e.log.V(1).Info("Ignoring request from the host bridge", "command", m.Command)
	}
}

// --- Events ---

func (e *Engine) handleEvent(evt *protocol.Event) {
	switch strings.ToLower(evt.Event) {
	case protocol.EventStopped:
		e.handleStopped(evt.Fields)
	case protocol.EventContinued:
		e.handleContinued(evt.Fields)
	case protocol.EventProgramExited:
		e.handleProgramExited()
	case protocol.EventOutput:
		e.handleOutput(evt.Fields)
	case protocol.EventThreadStarted:
		e.handleThreadStarted(evt.Fields)
	case protocol.EventThreadExited:
		e.handleThreadExited(evt.Fields)
	default:
		e.log.V(1).Info("Ignoring event", "event", evt.Event)
	}
}

func (e *Engine) handleStopped(f protocol.Fields) {
	// Addresses are not reused across stops
	e.cache.ResetVariableTree()

	threadID, _ := f.Int("threadId")
	reason, _ := f.String("reason")
	file, _ := f.String("file")
	line, _ := f.Int("line")
	file = e.resolvePath(file)

	e.cache.SetStopped(threadID, reason, file, line)
	if e.cache.Announce(threadID) {
		e.frontend.Notify(e.events.thread("started", threadID))
	}

	body := dap.StoppedEventBody{Reason: ReasonStep, ThreadId: threadID}

	switch strings.ToLower(reason) {
	case ReasonStep:
		e.frontend.Notify(e.events.stopped(body))
		return

	case ReasonBreakpoint:
		if bp, ok := e.breakpoints.lookup(breakpoints.NewKey(file, line)); ok {
			body.Reason = ReasonBreakpoint
			body.HitBreakpointIds = []int{bp.ID}
			e.frontend.Notify(e.events.stopped(body))
			return
		}
		e.log.V(1).Info("Breakpoint hit but no registered breakpoint matches", "file", file, "line", line)

	case ReasonException:
		name, _ := f.String("exceptionName")
		message, _ := f.String("exceptionMessage")
		body.Reason = ReasonException
		body.Description = name
		body.Text = message
		e.frontend.Notify(e.events.stopped(body))
		return
	}

	body.Description = reason
	e.frontend.Notify(e.events.stopped(body))
}

func (e *Engine) handleContinued(f protocol.Fields) {
	threadID, ok := f.Int("threadId")
	if !ok {
		return
	}
	if wasAnnounced, _ := e.cache.SetContinued(threadID); wasAnnounced {
		e.frontend.Notify(e.events.continued(threadID))
	}
}

func (e *Engine) handleProgramExited() {
	if e.destroyed.Load() {
		return
	}
	e.cache.MarkAllRunning()
	e.destroy()
	e.resetCaches(false)
}

func (e *Engine) handleOutput(f protocol.Fields) {
	category, _ := f.String("category")
	text, _ := f.String("output")
	if category != "" {
		text = "[" + category + "] " + text
	}
	e.frontend.Notify(e.events.output("console", text))
}

func (e *Engine) handleThreadStarted(f protocol.Fields) {
	threadID, _ := f.Int("threadId")
	if e.cache.Announce(threadID) {
		e.frontend.Notify(e.events.thread("started", threadID))
	}
}

func (e *Engine) handleThreadExited(f protocol.Fields) {
	threadID, _ := f.Int("threadId")
	e.cache.RemoveThread(threadID)
	e.frontend.Notify(e.events.thread("exited", threadID))
}

// --- Responses ---

// handleResponse applies a classified response and returns the result
// handed to a blocked request. Schemas already checked successful
// responses.
func (e *Engine) handleResponse(resp *protocol.Response) Result {
	result := Result{
		Command: resp.Command,
		Success: resp.Success,
		Message: resp.Message,
		Fields:  resp.Fields,
	}

	switch canonicalCommand(strings.ToLower(resp.Command)) {
	case protocol.CommandGetThreads:
		if resp.Success {
			e.applyThreads(resp.Fields)
		}
	case protocol.CommandGetStack:
		if resp.Success {
			e.applyStack(resp.Fields)
		}
	case protocol.CommandGetScope:
		if resp.Success {
			e.applyScope(resp.Fields)
		}
	case protocol.CommandGetProperty:
		if resp.Success {
			e.applyProperties(resp.Fields)
		}
	case protocol.CommandGetEvaluation:
		if resp.Success {
			result.Success = e.applyEvaluation(resp.Fields)
			if !result.Success {
				result.Message = "invalid evaluation result"
			}
		}
	case protocol.CommandStart:
		if resp.Success {
			e.frontend.Notify(e.events.output("console", StartSucceededMessage))
		}
	case protocol.CommandPause:
		if !resp.Success {
			e.diag.Info("pause response success=false; treating pause as unsupported for this session", "message", resp.Message)
		}
	}
	return result
}

func (e *Engine) applyThreads(f protocol.Fields) {
	items, _ := f.List("threads")
	seen := make([]int, 0, len(items))
	for _, item := range items {
		obj, ok := protocol.AsFields(item)
		if !ok {
			continue
		}
		id, _ := obj.Int("id")
		name, _ := obj.String("name")
		e.cache.SetThreadName(id, name)
		seen = append(seen, id)
	}
	if removed := e.cache.RetainThreads(seen); len(removed) > 0 {
		e.log.V(1).Info("Removed threads missing from get_threads", "threads", removed)
	}
}

func (e *Engine) applyStack(f protocol.Fields) {
	threadID, _ := f.Int("threadId")
	items, _ := f.List("frames")
	frames := make([]state.Frame, 0, len(items))
	for _, item := range items {
		obj, ok := protocol.AsFields(item)
		if !ok {
			continue
		}
		id, _ := obj.Int("id")
		name, _ := obj.String("name")
		file, _ := obj.String("file")
		line, _ := obj.Int("line")
		frames = append(frames, state.Frame{ID: id, Name: name, File: e.resolvePath(file), Line: line})
	}
	e.cache.UpdateFrames(threadID, frames)
}

func (e *Engine) applyScope(f protocol.Fields) {
	threadID, _ := f.Int("threadId")
	frameID, _ := f.Int("frameId")
	if _, ok := e.cache.Frame(threadID, frameID); !ok {
		e.log.V(1).Info("Ignoring scope for unknown frame", "threadId", threadID, "frameId", frameID)
		return
	}
	items, _ := f.List("variables")

	addrs := make([]int64, 0, len(items))
	for _, item := range items {
		obj, ok := protocol.AsFields(item)
		if !ok {
			continue
		}
		if addr := e.cache.StoreVariable(obj, protocol.CommandGetScope); addr != 0 {
			addrs = append(addrs, addr)
		}
	}
	e.cache.SetFrameVariables(threadID, frameID, addrs)
}

func (e *Engine) applyProperties(f protocol.Fields) {
	parent, _ := f.Int64("addr")
	if size, ok := f.Int("size"); ok {
		e.cache.SetVariableSize(parent, size)
	}

	items, _ := f.List("properties")
	children := make([]int64, 0, len(items))
	for _, item := range items {
		obj, ok := protocol.AsFields(item)
		if !ok {
			continue
		}
		if addr := e.cache.StoreVariable(obj, protocol.CommandGetProperty); addr != 0 {
			children = append(children, addr)
		}
	}
	e.cache.MergeVariableChildren(parent, children)
}

// applyEvaluation stores the result and adds it to the frame's roots
func (e *Engine) applyEvaluation(f protocol.Fields) bool {
	threadID, _ := f.Int("threadId")
	frameID, _ := f.Int("frameId")
	obj, ok := f.Object("result")
	if !ok {
		return false
	}
	addr := e.cache.StoreVariable(obj, protocol.CommandGetEvaluation)
	if addr != 0 {
		e.cache.AddFrameVariable(threadID, frameID, addr)
	}
	return true
}
