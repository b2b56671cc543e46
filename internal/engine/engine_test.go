package engine

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// fakeHost plays the host bridge: it accepts the engine connection,
// records every request and answers through handler.
type fakeHost struct {
	addr     string
	requests chan protocol.Fields
	ready    chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

type hostHandler func(h *fakeHost, req protocol.Fields)

func newFakeHost(t *testing.T, handler hostHandler) *fakeHost {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &fakeHost{
		addr:     ln.Addr().String(),
		requests: make(chan protocol.Fields, 64),
		ready:    make(chan struct{}),
	}
	t.Cleanup(func() {
		_ = ln.Close()
		h.disconnect()
	})

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()
		close(h.ready)

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			req, err := protocol.DecodeFields(scanner.Bytes())
			if err != nil {
				continue
			}
			h.requests <- req
			if handler != nil {
				handler(h, req)
			}
		}
	}()
	return h
}

func (h *fakeHost) write(line string) {
	select {
	case <-h.ready:
	case <-time.After(2 * time.Second):
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		_, _ = io.WriteString(h.conn, line+"\n")
	}
}

func (h *fakeHost) reply(req protocol.Fields, success bool, message string, body map[string]any) {
	seq, _ := req.Int64("seq")
	command, _ := req.String("command")
	line, _ := protocol.EncodeResponse(seq, command, success, message, body)
	h.write(line)
}

func (h *fakeHost) emit(event string, payload map[string]any) {
	line, _ := protocol.EncodeEvent(event, payload)
	h.write(line)
}

func (h *fakeHost) disconnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		_ = h.conn.Close()
	}
}

func (h *fakeHost) expect(t *testing.T, command string) protocol.Fields {
	t.Helper()
	select {
	case req := <-h.requests:
		got, _ := req.String("command")
		require.Equal(t, command, got)
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", command)
	}
	return nil
}

// echo copies keys of req into a response body
func echo(req protocol.Fields, keys ...string) map[string]any {
	body := make(map[string]any, len(keys))
	for _, k := range keys {
		body[k] = req[k]
	}
	return body
}

func variable(name, value, typ string, typeID int, addr int64, size int) map[string]any {
	return map[string]any{
		"name":   name,
		"value":  value,
		"type":   typ,
		"typeId": typeID,
		"addr":   addr,
		"size":   size,
	}
}

// oneFrameStack answers get_stack with frame 10 for any thread
func oneFrameStack(h *fakeHost, req protocol.Fields) {
	body := echo(req, "threadId")
	body["frames"] = []any{map[string]any{"id": 10, "name": "main", "file": `C:\src\a.cpp`, "line": 3}}
	h.reply(req, true, "", body)
}

// routes answers each command with its own function; start always succeeds
func routes(handlers map[string]hostHandler) hostHandler {
	return func(h *fakeHost, req protocol.Fields) {
		command, _ := req.String("command")
		if fn, ok := handlers[command]; ok {
			fn(h, req)
			return
		}
		if command == protocol.CommandStart {
			h.reply(req, true, "", nil)
		}
	}
}

func startEngine(t *testing.T, host *fakeHost) (*Engine, *EventLog) {
	t.Helper()
	events := NewEventLog(128)
	e := New(logr.Discard(), Options{
		Address:        host.addr,
		ConnectTimeout: 2 * time.Second,
		PollInterval:   5 * time.Millisecond,
		SourceRoot:     "/work/proj",
		Frontend:       events,
	})
	t.Cleanup(e.Close)

	require.NoError(t, e.Start(context.Background()))
	host.expect(t, protocol.CommandStart)
	host.expect(t, protocol.CommandGetThreads)
	return e, events
}

func waitEvent[T dap.Message](t *testing.T, events *EventLog, match func(T) bool) T {
	t.Helper()
	var found T
	require.Eventually(t, func() bool {
		for _, m := range events.Recent(0) {
			if v, ok := m.(T); ok && (match == nil || match(v)) {
				found = v
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func countEvents[T dap.Message](events *EventLog) int {
	n := 0
	for _, m := range events.Recent(0) {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

// sync emits an output event and waits for it, so every line written
// before it has been handled.
func syncEngine(t *testing.T, host *fakeHost, events *EventLog, marker string) {
	t.Helper()
	host.emit(protocol.EventOutput, map[string]any{"output": marker})
	waitEvent(t, events, func(o *dap.OutputEvent) bool { return o.Body.Output == marker })
}

func stopThread(t *testing.T, host *fakeHost, events *EventLog, threadID int) {
	t.Helper()
	host.emit(protocol.EventStopped, map[string]any{
		"threadId": threadID, "reason": "step", "file": `C:\src\a.cpp`, "line": 3,
	})
	waitEvent(t, events, func(s *dap.StoppedEvent) bool { return s.Body.ThreadId == threadID })
}

// TestEngine_Start verifies the start handshake and its output notification.
func TestEngine_Start(t *testing.T) {
	host := newFakeHost(t, routes(nil))
	e, events := startEngine(t, host)

	out := waitEvent(t, events, func(o *dap.OutputEvent) bool { return o.Body.Output == StartSucceededMessage })
	assert.Equal(t, "console", out.Body.Category)
	assert.True(t, e.Status().Connected)
	assert.NotEmpty(t, e.SessionID())
}

// TestEngine_StartFailure verifies an unreachable host is reported once
// and destroys the program.
func TestEngine_StartFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	events := NewEventLog(16)
	e := New(logr.Discard(), Options{Address: addr, ConnectTimeout: 500 * time.Millisecond, Frontend: events})
	err = e.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTransportFailure))

	waitEvent[*dap.TerminatedEvent](t, events, nil)
	assert.Equal(t, 1, countEvents[*dap.TerminatedEvent](events))
	assert.True(t, e.Status().Failed)
}

// TestEngine_Threads verifies get_threads replaces the thread table.
func TestEngine_Threads(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetThreads: func(h *fakeHost, req protocol.Fields) {
			h.reply(req, true, "", map[string]any{
				"threads": []any{map[string]any{"id": 7, "name": "main"}},
			})
		},
	}))
	e, events := startEngine(t, host)

	host.emit(protocol.EventThreadStarted, map[string]any{"threadId": 3})
	waitEvent(t, events, func(te *dap.ThreadEvent) bool { return te.Body.ThreadId == 3 })

	threads, err := e.Threads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 7, threads[0].ID)
	assert.Equal(t, "main", threads[0].Name)
}

// TestEngine_StackScopeAndEdit verifies the blocking inspection calls
// against the cache.
func TestEngine_StackScopeAndEdit(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetStack: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId")
			body["frames"] = []any{
				map[string]any{"id": 10, "name": "main", "file": `C:\src\a.cpp`, "line": 3},
				map[string]any{"id": 11, "name": "start", "file": "lib/crt.c", "line": 40},
			}
			h.reply(req, true, "", body)
		},
		protocol.CommandGetScope: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId", "frameId")
			body["variables"] = []any{
				variable("count", "2", "int", 1, 100, 0),
				variable("name", "\"bob\"", "std::string", 2, 101, 0),
			}
			h.reply(req, true, "", body)
		},
		protocol.CommandSetVariable: func(h *fakeHost, req protocol.Fields) {
			h.reply(req, true, "", echo(req, "threadId", "frameId", "addr", "typeId"))
		},
	}))
	e, events := startEngine(t, host)
	stopThread(t, host, events, 1)

	frames, err := e.Stack(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "C:/src/a.cpp", frames[0].File)
	assert.Equal(t, "lib/crt.c", frames[1].File)

	vars, err := e.Scope(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "count", vars[0].Name)
	assert.True(t, vars[1].IsString())

	v, err := e.SetVariable(context.Background(), 1, 10, 100, "5")
	require.NoError(t, err)
	assert.Equal(t, "5", v.Value)
	cached, _ := e.Cache().Variable(100)
	assert.Equal(t, "5", cached.Value)

	host.expect(t, protocol.CommandGetStack)
	host.expect(t, protocol.CommandGetScope)
	req := host.expect(t, protocol.CommandSetVariable)
	value, _ := req.String("value")
	assert.Equal(t, "5", value)
}

// TestEngine_ExpandPaged verifies expansion only requests the missing window.
func TestEngine_ExpandPaged(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetStack: oneFrameStack,
		protocol.CommandGetScope: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId", "frameId")
			body["variables"] = []any{variable("list", "[4]", "List", 7, 200, 4)}
			h.reply(req, true, "", body)
		},
		protocol.CommandGetProperty: func(h *fakeHost, req protocol.Fields) {
			start, _ := req.Int("start")
			body := echo(req, "threadId", "frameId", "addr", "typeId")
			// at most two children per page
			body["properties"] = []any{
				variable("["+string(rune('0'+start))+"]", "x", "int", 1, int64(201+start), 0),
				variable("["+string(rune('1'+start))+"]", "y", "int", 1, int64(202+start), 0),
			}
			h.reply(req, true, "", body)
		},
	}))
	e, events := startEngine(t, host)
	stopThread(t, host, events, 1)

	_, err := e.Stack(context.Background(), 1)
	require.NoError(t, err)
	host.expect(t, protocol.CommandGetStack)

	_, err = e.Scope(context.Background(), 1, 10)
	require.NoError(t, err)
	host.expect(t, protocol.CommandGetScope)

	children, err := e.Expand(context.Background(), 1, 10, 200)
	require.NoError(t, err)
	assert.Len(t, children, 2)
	first := host.expect(t, protocol.CommandGetProperty)
	start, _ := first.Int("start")
	count, _ := first.Int("count")
	assert.Equal(t, 0, start)
	assert.Equal(t, 4, count)

	children, err = e.Expand(context.Background(), 1, 10, 200)
	require.NoError(t, err)
	assert.Len(t, children, 4)
	second := host.expect(t, protocol.CommandGetProperty)
	start, _ = second.Int("start")
	count, _ = second.Int("count")
	assert.Equal(t, 2, start)
	assert.Equal(t, 2, count)

	// complete now, answered from the cache
	children, err = e.Expand(context.Background(), 1, 10, 200)
	require.NoError(t, err)
	assert.Len(t, children, 4)
	assert.Empty(t, host.requests)
}

// TestEngine_EvaluatePath verifies dotted lookups expand and evaluate as
// needed.
func TestEngine_EvaluatePath(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetStack: oneFrameStack,
		protocol.CommandGetScope: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId", "frameId")
			body["variables"] = []any{variable("obj", "{...}", "Obj", 5, 300, 1)}
			h.reply(req, true, "", body)
		},
		protocol.CommandGetProperty: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId", "frameId", "addr", "typeId")
			body["properties"] = []any{variable("inner", "3", "int", 1, 301, 0)}
			h.reply(req, true, "", body)
		},
		protocol.CommandGetEvaluation: func(h *fakeHost, req protocol.Fields) {
			expression, _ := req.String("expression")
			body := echo(req, "threadId", "frameId", "expression")
			body["result"] = variable(expression, "42", "int", 1, 400, 0)
			h.reply(req, true, "", body)
		},
	}))
	e, events := startEngine(t, host)
	stopThread(t, host, events, 1)

	_, err := e.Stack(context.Background(), 1)
	require.NoError(t, err)
	host.expect(t, protocol.CommandGetStack)

	_, err = e.Scope(context.Background(), 1, 10)
	require.NoError(t, err)
	host.expect(t, protocol.CommandGetScope)

	v, err := e.Evaluate(context.Background(), 1, 10, "obj.inner")
	require.NoError(t, err)
	assert.Equal(t, int64(301), v.Addr)
	host.expect(t, protocol.CommandGetProperty)

	v, err = e.Evaluate(context.Background(), 1, 10, "answer")
	require.NoError(t, err)
	assert.Equal(t, "42", v.Value)
	req := host.expect(t, protocol.CommandGetEvaluation)
	expression, _ := req.String("expression")
	assert.Equal(t, "answer", expression)

	roots, _ := e.Cache().FrameVariables(1, 10)
	assert.Equal(t, []int64{300, 400}, roots)

	_, err = e.Evaluate(context.Background(), 1, 10, "obj..x")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParameter))
}

// TestEngine_FailedResponses verifies failures and schema violations
// release the blocked request with an error.
func TestEngine_FailedResponses(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetStack: func(h *fakeHost, req protocol.Fields) {
			h.reply(req, false, "", echo(req, "threadId"))
		},
		protocol.CommandGetScope: func(h *fakeHost, req protocol.Fields) {
			// variables missing
			h.reply(req, true, "", echo(req, "threadId", "frameId"))
		},
	}))
	e, _ := startEngine(t, host)

	_, err := e.Stack(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeOperationFailed))
	assert.Contains(t, err.Error(), protocol.EmptyFailureMessage)

	_, err = e.Scope(context.Background(), 1, 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeOperationFailed))

	// the slot is free again
	assert.Empty(t, e.Status().PendingRequest)
}

// TestEngine_DisconnectUnblocksRequest verifies a dropped connection never
// leaves a caller blocked.
func TestEngine_DisconnectUnblocksRequest(t *testing.T) {
	host := newFakeHost(t, routes(nil))
	e, events := startEngine(t, host)

	done := make(chan error, 1)
	go func() {
		_, err := e.Threads(context.Background())
		done <- err
	}()
	host.expect(t, protocol.CommandGetThreads)
	host.disconnect()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeTransportDisconnected) || errors.HasCode(err, errors.CodeNotConnected), err.Error())
	case <-time.After(2 * time.Second):
		t.Fatal("request still blocked after disconnect")
	}

	waitEvent[*dap.TerminatedEvent](t, events, nil)
	assert.Equal(t, 1, countEvents[*dap.TerminatedEvent](events))
	assert.False(t, e.IsConnected())
	assert.Zero(t, e.Cache().VariableCount())
}

// TestEngine_ContinueClearsVariables verifies continue resumes stopped
// threads and the continued event releases the variable table.
func TestEngine_ContinueClearsVariables(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetStack: oneFrameStack,
		protocol.CommandGetScope: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId", "frameId")
			body["variables"] = []any{variable("count", "2", "int", 1, 100, 0)}
			h.reply(req, true, "", body)
		},
	}))
	e, events := startEngine(t, host)
	stopThread(t, host, events, 1)

	_, err := e.Stack(context.Background(), 1)
	require.NoError(t, err)
	host.expect(t, protocol.CommandGetStack)

	_, err = e.Scope(context.Background(), 1, 10)
	require.NoError(t, err)
	host.expect(t, protocol.CommandGetScope)
	assert.Equal(t, 1, e.Cache().VariableCount())

	resumed, err := e.Continue()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, resumed)
	req := host.expect(t, protocol.CommandContinue)
	tid, _ := req.Int("threadId")
	assert.Equal(t, 1, tid)

	host.emit(protocol.EventContinued, map[string]any{"threadId": 1})
	waitEvent(t, events, func(c *dap.ContinuedEvent) bool { return c.Body.ThreadId == 1 })
	assert.Zero(t, e.Cache().VariableCount())
}

// TestEngine_ScopeUnknownFrame verifies a scope for a frame that was never
// fetched reports not found and leaves no orphaned variables behind.
func TestEngine_ScopeUnknownFrame(t *testing.T) {
	host := newFakeHost(t, routes(map[string]hostHandler{
		protocol.CommandGetScope: func(h *fakeHost, req protocol.Fields) {
			body := echo(req, "threadId", "frameId")
			body["variables"] = []any{variable("count", "2", "int", 1, 100, 0)}
			h.reply(req, true, "", body)
		},
	}))
	e, events := startEngine(t, host)
	stopThread(t, host, events, 1)

	_, err := e.Scope(context.Background(), 1, 10)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), err.Error())
	host.expect(t, protocol.CommandGetScope)
	assert.Zero(t, e.Cache().VariableCount())
}

// TestEngine_Events verifies output, thread and exit notifications.
func TestEngine_Events(t *testing.T) {
	host := newFakeHost(t, routes(nil))
	e, events := startEngine(t, host)

	host.emit(protocol.EventOutput, map[string]any{"category": "stdout", "output": "hello"})
	waitEvent(t, events, func(o *dap.OutputEvent) bool { return o.Body.Output == "[stdout] hello" })

	host.emit(protocol.EventThreadStarted, map[string]any{"threadId": 5})
	host.emit(protocol.EventThreadExited, map[string]any{"threadId": 5})
	waitEvent(t, events, func(te *dap.ThreadEvent) bool { return te.Body.Reason == "exited" })
	_, ok := e.Cache().Thread(5)
	assert.False(t, ok)

	// invalid event is dropped without breaking the stream
	host.emit(protocol.EventStopped, map[string]any{"reason": "step"})

	host.emit(protocol.EventProgramExited, nil)
	host.emit(protocol.EventProgramExited, nil)
	syncEngine(t, host, events, "after exit")
	assert.Equal(t, 1, countEvents[*dap.TerminatedEvent](events))
	assert.Zero(t, countEvents[*dap.StoppedEvent](events))
}

// TestEngine_StoppedReasons verifies how stop reasons are reported.
func TestEngine_StoppedReasons(t *testing.T) {
	host := newFakeHost(t, routes(nil))
	_, events := startEngine(t, host)

	host.emit(protocol.EventStopped, map[string]any{
		"threadId": 2, "reason": "exception", "exceptionName": "std::runtime_error", "exceptionMessage": "boom",
	})
	exc := waitEvent(t, events, func(s *dap.StoppedEvent) bool { return s.Body.Reason == ReasonException })
	assert.Equal(t, "std::runtime_error", exc.Body.Description)
	assert.Equal(t, "boom", exc.Body.Text)

	// unmatched breakpoint location falls back to a step completion
	host.emit(protocol.EventStopped, map[string]any{
		"threadId": 2, "reason": "breakpoint", "file": "/nowhere.c", "line": 9,
	})
	fallback := waitEvent(t, events, func(s *dap.StoppedEvent) bool { return s.Body.Description == ReasonBreakpoint })
	assert.Equal(t, ReasonStep, fallback.Body.Reason)

	started := 0
	for _, m := range events.Recent(0) {
		if te, ok := m.(*dap.ThreadEvent); ok && te.Body.Reason == "started" && te.Body.ThreadId == 2 {
			started++
		}
	}
	assert.Equal(t, 1, started)
}

// TestEngine_Breakpoints verifies the registry, the host notifications and
// breakpoint hits.
func TestEngine_Breakpoints(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.cpp")
	require.NoError(t, os.WriteFile(file, []byte("int main() {\n    int x = 1;\n\n    return x;\n}\n"), 0o644))

	host := newFakeHost(t, routes(nil))
	e, events := startEngine(t, host)

	bp, err := e.SetBreakpoint(file, 2, "x > 0", "")
	require.NoError(t, err)
	assert.True(t, bp.Enabled)
	assert.True(t, bp.Bindable)

	req := host.expect(t, protocol.CommandBreakpointChanged)
	changeType, _ := req.String("changeType")
	kind, _ := req.String("conditionType")
	enabled, _ := req.Bool("enabled")
	assert.Equal(t, ChangeAdded, changeType)
	assert.Equal(t, "whenTrue", kind)
	assert.True(t, enabled)

	blank, err := e.SetBreakpoint(file, 3, "", "")
	require.NoError(t, err)
	assert.False(t, blank.Enabled)
	assert.Equal(t, NotExecutableMessage, blank.Message)
	req = host.expect(t, protocol.CommandBreakpointChanged)
	enabled, _ = req.Bool("enabled")
	assert.False(t, enabled)

	blank, err = e.EnableBreakpoint(file, 3, true)
	require.NoError(t, err)
	assert.False(t, blank.Enabled)
	req = host.expect(t, protocol.CommandBreakpointChanged)
	changeType, _ = req.String("changeType")
	assert.Equal(t, ChangeEnabledChanged, changeType)

	host.emit(protocol.EventStopped, map[string]any{
		"threadId": 1, "reason": "breakpoint", "file": file, "line": 2,
	})
	hit := waitEvent(t, events, func(s *dap.StoppedEvent) bool { return s.Body.Reason == ReasonBreakpoint })
	assert.Equal(t, []int{bp.ID}, hit.Body.HitBreakpointIds)

	_, err = e.RemoveBreakpoint(file, 2)
	require.NoError(t, err)
	req = host.expect(t, protocol.CommandBreakpointChanged)
	changeType, _ = req.String("changeType")
	assert.Equal(t, ChangeRemoved, changeType)

	_, err = e.RemoveBreakpoint(file, 2)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Len(t, e.Breakpoints(), 1)
}

// TestEngine_Terminate verifies stop tears the session down.
func TestEngine_Terminate(t *testing.T) {
	host := newFakeHost(t, routes(nil))
	e, events := startEngine(t, host)

	require.NoError(t, e.Terminate())
	host.expect(t, protocol.CommandStop)
	waitEvent[*dap.TerminatedEvent](t, events, nil)
	assert.False(t, e.IsConnected())

	require.Error(t, e.Pause())
	assert.Equal(t, 1, countEvents[*dap.TerminatedEvent](events))
}

// TestEngine_Step verifies step arguments.
func TestEngine_Step(t *testing.T) {
	host := newFakeHost(t, routes(nil))
	e, _ := startEngine(t, host)

	require.NoError(t, e.Step(4, "", ""))
	req := host.expect(t, protocol.CommandStep)
	kind, _ := req.String("stepKind")
	unit, _ := req.String("stepUnit")
	assert.Equal(t, StepOver, kind)
	assert.Equal(t, StepUnitLine, unit)

	err := e.Step(4, "sideways", "")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParameter))
}
