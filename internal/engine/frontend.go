package engine

import (
	"path"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"

	"github.com/ctagard/dbg-bridge/internal/state"
)

// Frontend receives the debugging notifications of an engine as DAP
// events. Notify is called from the transport reader goroutine and must
// not block on engine requests.
type Frontend interface {
	Notify(event dap.Message)
}

// FrontendFunc adapts a function to Frontend
type FrontendFunc func(event dap.Message)

func (f FrontendFunc) Notify(event dap.Message) { f(event) }

type discardFrontend struct{}

func (discardFrontend) Notify(dap.Message) {}

// EventLog is a Frontend keeping the most recent events in a ring
type EventLog struct {
	mu     sync.Mutex
	events []dap.Message
	next   int
	full   bool
}

// NewEventLog keeps up to capacity events
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventLog{events: make([]dap.Message, capacity)}
}

// Notify implements Frontend
func (l *EventLog) Notify(event dap.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[l.next] = event
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to limit events, oldest first. limit <= 0 returns all
// retained events.
func (l *EventLog) Recent(limit int) []dap.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ordered []dap.Message
	if l.full {
		ordered = append(ordered, l.events[l.next:]...)
	}
	ordered = append(ordered, l.events[:l.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// MultiFrontend fans notifications out to several frontends
type MultiFrontend []Frontend

func (m MultiFrontend) Notify(event dap.Message) {
	for _, f := range m {
		f.Notify(event)
	}
}

// eventFactory numbers outgoing events
type eventFactory struct {
	seq atomic.Int64
}

func (f *eventFactory) header(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(f.seq.Add(1)), Type: "event"},
		Event:           name,
	}
}

func (f *eventFactory) thread(reason string, threadID int) *dap.ThreadEvent {
	return &dap.ThreadEvent{
		Event: f.header("thread"),
		Body:  dap.ThreadEventBody{Reason: reason, ThreadId: threadID},
	}
}

func (f *eventFactory) stopped(body dap.StoppedEventBody) *dap.StoppedEvent {
	return &dap.StoppedEvent{Event: f.header("stopped"), Body: body}
}

func (f *eventFactory) continued(threadID int) *dap.ContinuedEvent {
	return &dap.ContinuedEvent{
		Event: f.header("continued"),
		Body:  dap.ContinuedEventBody{ThreadId: threadID},
	}
}

func (f *eventFactory) output(category, text string) *dap.OutputEvent {
	return &dap.OutputEvent{
		Event: f.header("output"),
		Body:  dap.OutputEventBody{Category: category, Output: text},
	}
}

func (f *eventFactory) terminated() *dap.TerminatedEvent {
	return &dap.TerminatedEvent{Event: f.header("terminated")}
}

func (f *eventFactory) breakpoint(reason string, bp Breakpoint) *dap.BreakpointEvent {
	return &dap.BreakpointEvent{
		Event: f.header("breakpoint"),
		Body:  dap.BreakpointEventBody{Reason: reason, Breakpoint: ToDAPBreakpoint(bp)},
	}
}

// --- Snapshot conversion ---

// ToDAPThread converts a cached thread
func ToDAPThread(t state.Thread) dap.Thread {
	return dap.Thread{Id: t.ID, Name: t.Name}
}

// ToDAPSource describes a normalized file path
func ToDAPSource(file string) *dap.Source {
	if file == "" {
		return nil
	}
	return &dap.Source{Name: path.Base(file), Path: file}
}

// ToDAPStackFrame converts a cached frame
func ToDAPStackFrame(f state.Frame) dap.StackFrame {
	return dap.StackFrame{
		Id:     f.ID,
		Name:   f.Name,
		Source: ToDAPSource(f.File),
		Line:   f.Line,
		Column: 1,
	}
}

// ToDAPVariable converts a cached variable. VariablesReference is not a
// DAP handle here: expandable nodes carry their remote address.
func ToDAPVariable(v state.Variable) dap.Variable {
	out := dap.Variable{
		Name:  v.Name,
		Value: v.Value,
		Type:  v.Type,
	}
	if v.Expandable() {
		out.VariablesReference = int(v.Addr)
		out.IndexedVariables = v.Size
	}
	if v.IsString() {
		out.PresentationHint = &dap.VariablePresentationHint{Attributes: []string{"rawString"}}
	}
	if !v.Editable() {
		if out.PresentationHint == nil {
			out.PresentationHint = &dap.VariablePresentationHint{}
		}
		out.PresentationHint.Attributes = append(out.PresentationHint.Attributes, "readOnly")
	}
	out.EvaluateName = v.Name
	out.MemoryReference = strconv.FormatInt(v.Addr, 10)
	return out
}

// ToDAPBreakpoint converts an engine breakpoint
func ToDAPBreakpoint(bp Breakpoint) dap.Breakpoint {
	return dap.Breakpoint{
		Id:       bp.ID,
		Verified: bp.Bindable,
		Message:  bp.Message,
		Source:   ToDAPSource(bp.File),
		Line:     bp.Line,
	}
}
