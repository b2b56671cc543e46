// Package types defines the JSON shapes returned by the bridge's MCP tools.
//
// Threads, frames and variables are returned in their DAP form
// (github.com/google/go-dap); this package covers what DAP has no type for:
//   - StatusInfo: connection and cache summary of the engine bridge
//   - ThreadInfo: a thread with its stop state
//   - EventInfo: one recorded frontend notification
//   - StepResult, ContinueResult: acknowledgements of control tools
package types

// SessionStatus is the state of the engine bridge's connection
type SessionStatus string

const (
	SessionStatusConnected    SessionStatus = "connected"
	SessionStatusDisconnected SessionStatus = "disconnected"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// StatusInfo summarizes the engine bridge
type StatusInfo struct {
	SessionID      string        `json:"sessionId"`
	Address        string        `json:"address"`
	Status         SessionStatus `json:"status"`
	Mode           string        `json:"mode"`
	ConnectionID   int64         `json:"connectionId"`
	PendingRequest string        `json:"pendingRequest,omitempty"`
	Threads        int           `json:"threads"`
	Variables      int           `json:"variables"`
	Breakpoints    int           `json:"breakpoints"`
}

// ThreadInfo is a thread with its last stop location
type ThreadInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Stopped    bool   `json:"stopped"`
	StopReason string `json:"stopReason,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
}

// EventInfo is one notification sent to the debugging frontend
type EventInfo struct {
	Seq   int    `json:"seq"`
	Event string `json:"event"`
	Body  any    `json:"body,omitempty"`
}

// ContinueResult lists the threads a continue resumed
type ContinueResult struct {
	Resumed []int `json:"resumed"`
}

// StepResult acknowledges a step request; the stop arrives as an event
type StepResult struct {
	ThreadID int    `json:"threadId"`
	StepKind string `json:"stepKind"`
	StepUnit string `json:"stepUnit"`
}
