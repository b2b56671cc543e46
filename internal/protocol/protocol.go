// Package protocol implements the line-delimited JSON protocol spoken between
// the host bridge, the engine bridge and the remote agent.
//
// Every line carries one JSON object (an envelope) whose "type" is one of
// request, response or event. This package provides:
//   - Envelope encoding for requests and events
//   - Classify: parsing an inbound line into a typed Request, Response or Event
//   - Per-command response and per-event JSON schemas
//   - A cheap requestSeq scanner used by the relay to flag duplicates
package protocol

import "strings"

// Envelope types
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Commands understood by the remote agent
const (
	CommandStart            = "start"
	CommandReady            = "ready"
	CommandStop             = "stop"
	CommandPause            = "pause"
	CommandContinue         = "continue"
	CommandStep             = "step"
	CommandSetBreakpoint    = "set_breakpoint"
	CommandRemoveBreakpoint = "remove_breakpoint"
	CommandGetStack         = "get_stack"
	CommandGetScopes        = "get_scopes"
	CommandGetScope         = "get_scope"
	CommandEvaluate         = "evaluate"
	CommandGetEvaluation    = "get_evaluation"
	CommandGetThreads       = "get_threads"
	CommandSetVariable      = "set_variable"
	CommandGetProperty      = "get_property"
)

// Events emitted by the remote agent
const (
	EventStopped       = "stopped"
	EventContinued     = "continued"
	EventOutput        = "output"
	EventProgramExited = "program_exited"
	EventThreadStarted = "thread_started"
	EventThreadExited  = "thread_exited"
)

// Host-local signals. They are exchanged between the engine and the host
// bridge only and never reach the remote agent.
const (
	CommandBreakpointChanged   = "breakpoint_changed"
	EventTransportDisconnected = "transport_disconnected"
)

// IsInternal reports whether name is a host-local signal that must not be
// written to the remote connection.
func IsInternal(name string) bool {
	return name == CommandBreakpointChanged || name == EventTransportDisconnected
}

// SameName compares command, event and type names the way the agent does
// (ASCII case-insensitive).
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}
