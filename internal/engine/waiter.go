package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ctagard/dbg-bridge/internal/errors"
	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// DefaultPollInterval is how often a blocked request re-checks the
// transport while waiting for its response.
const DefaultPollInterval = 10 * time.Millisecond

// Result is the outcome of one blocking request
type Result struct {
	Command string
	Success bool
	Message string
	Fields  protocol.Fields
}

type waitSlot struct {
	command string
	done    chan Result
}

// Waiter holds the single outstanding blocking request of an engine. The
// slot is released when a response for the same command arrives, or
// unconditionally when a failure unwinds every wait.
type Waiter struct {
	poll  time.Duration
	alive func() bool

	mu   sync.Mutex
	slot *waitSlot
}

// NewWaiter creates a waiter. alive reports whether the transport is still
// connected; a blocked wait gives up as soon as it returns false.
func NewWaiter(alive func() bool, poll time.Duration) *Waiter {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if alive == nil {
		alive = func() bool { return true }
	}
	return &Waiter{poll: poll, alive: alive}
}

// Wait is a reserved slot returned by Begin
type Wait struct {
	w    *Waiter
	slot *waitSlot
}

// Begin reserves the slot for command. It fails with WAIT_IN_PROGRESS when
// another request is still waiting.
func (w *Waiter) Begin(command string) (*Wait, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.slot != nil {
		return nil, errors.WaitInProgress(w.slot.command, command)
	}
	w.slot = &waitSlot{command: command, done: make(chan Result, 1)}
	return &Wait{w: w, slot: w.slot}, nil
}

// Pending returns the command currently waited for, or ""
func (w *Waiter) Pending() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.slot == nil {
		return ""
	}
	return w.slot.command
}

// Release delivers result to the outstanding wait when its command matches.
// An empty command releases any wait. It reports whether a wait was
// released.
func (w *Waiter) Release(command string, result Result) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.slot == nil {
		return false
	}
	if command != "" && !sameCommand(w.slot.command, command) {
		return false
	}

	select {
	case w.slot.done <- result:
		return true
	default:
		// already released
		return false
	}
}

// Await blocks until the response arrives, the transport drops or ctx is
// done. A response with success=false is returned together with an
// OPERATION_FAILED error; a wait released by a clean disconnect fails with
// TRANSPORT_DISCONNECTED.
func (wt *Wait) Await(ctx context.Context) (Result, error) {
	defer wt.Cancel()

	ticker := time.NewTicker(wt.w.poll)
	defer ticker.Stop()

	for {
		select {
		case result := <-wt.slot.done:
			if !result.Success {
				if errors.IsGracefulDisconnect(result.Message) {
					return result, errors.TransportDisconnected().WithDetails("command", wt.slot.command)
				}
				message := result.Message
				if message == "" {
					message = protocol.EmptyFailureMessage
				}
				return result, errors.OperationFailed(wt.slot.command, message)
			}
			return result, nil

		case <-ctx.Done():
			return Result{Command: wt.slot.command}, ctx.Err()

		case <-ticker.C:
			if !wt.w.alive() {
				// A response may have raced the disconnect
				select {
				case result := <-wt.slot.done:
					if result.Success {
						return result, nil
					}
				default:
				}
				return Result{Command: wt.slot.command}, errors.NotConnected(wt.slot.command)
			}
		}
	}
}

// Cancel frees the slot without waiting. It is safe to call more than once.
func (wt *Wait) Cancel() {
	wt.w.mu.Lock()
	defer wt.w.mu.Unlock()
	if wt.w.slot == wt.slot {
		wt.w.slot = nil
	}
}

// sameCommand matches a response to the command it answers. The agent
// answers evaluate as get_evaluation and get_scopes as get_scope.
func sameCommand(expected, got string) bool {
	return protocol.SameName(canonicalCommand(expected), canonicalCommand(got))
}

func canonicalCommand(command string) string {
	switch {
	case protocol.SameName(command, protocol.CommandEvaluate):
		return protocol.CommandGetEvaluation
	case protocol.SameName(command, protocol.CommandGetScopes):
		return protocol.CommandGetScope
	}
	return command
}
