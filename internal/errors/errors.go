// Package errors provides structured error types for the debug bridge.
// Each error carries a machine-readable code and, where it helps, a hint
// telling the caller (a user or an MCP client) how to recover.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// GracefulDisconnectMessage is the failure text raised when the peer closes
// the connection cleanly. It is not reported as an error to the user.
const GracefulDisconnectMessage = "Transport disconnected."

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Transport errors
	CodeTransportFailure      ErrorCode = "TRANSPORT_FAILURE"
	CodeTransportDisconnected ErrorCode = "TRANSPORT_DISCONNECTED"
	CodeNotConnected          ErrorCode = "NOT_CONNECTED"
	CodeBindFailed            ErrorCode = "BIND_FAILED"

	// Protocol errors
	CodeSchemaViolation   ErrorCode = "SCHEMA_VIOLATION"
	CodeDuplicateSequence ErrorCode = "DUPLICATE_SEQUENCE"

	// Synchronous request errors
	CodeWaitInProgress  ErrorCode = "WAIT_IN_PROGRESS"
	CodeOperationFailed ErrorCode = "OPERATION_FAILED"
	CodeNotFound        ErrorCode = "NOT_FOUND"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"

	// Configuration errors
	CodeConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// BridgeError is a structured error type that includes a category code and
// actionable guidance.
type BridgeError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message describes what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the command, the offending field)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a BridgeError with the same code.
func (e *BridgeError) Is(target error) bool {
	var other *BridgeError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithDetails adds details to the error
func (e *BridgeError) WithDetails(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *BridgeError) WithCause(err error) *BridgeError {
	e.Cause = err
	return e
}

// HasCode reports whether err is a BridgeError carrying code.
func HasCode(err error, code ErrorCode) bool {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsGracefulDisconnect reports whether a connection failure message describes
// a clean peer disconnect rather than an I/O failure.
func IsGracefulDisconnect(message string) bool {
	message = strings.TrimSpace(message)
	if message == "" {
		return false
	}
	return strings.EqualFold(message, GracefulDisconnectMessage)
}

// --- Transport Errors ---

// TransportFailure creates an error for connect/read/write failures
func TransportFailure(address string, err error) *BridgeError {
	return &BridgeError{
		Code:    CodeTransportFailure,
		Message: fmt.Sprintf("transport failure on %s: %v", address, err),
		Hint:    "Check that the remote agent is running and reachable, then start the session again.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// TransportDisconnected creates an error for a clean peer disconnect
func TransportDisconnected() *BridgeError {
	return &BridgeError{
		Code:    CodeTransportDisconnected,
		Message: GracefulDisconnectMessage,
	}
}

// NotConnected creates an error when a command is issued without a live connection
func NotConnected(command string) *BridgeError {
	return &BridgeError{
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("transport not connected; cannot send '%s'", command),
		Hint:    "Start the host bridge and wait for the engine to connect before issuing commands.",
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// BindFailed creates an error when no listening port could be bound
func BindFailed(port int, err error) *BridgeError {
	return &BridgeError{
		Code:    CodeBindFailed,
		Message: fmt.Sprintf("failed to listen on port %d: %v", port, err),
		Cause:   err,
		Details: map[string]interface{}{
			"port": port,
		},
	}
}

// --- Protocol Errors ---

// SchemaViolation creates an error for a message that fails validation
func SchemaViolation(command, reason string) *BridgeError {
	return &BridgeError{
		Code:    CodeSchemaViolation,
		Message: fmt.Sprintf("invalid %s message: %s", command, reason),
		Details: map[string]interface{}{
			"command": command,
			"reason":  reason,
		},
	}
}

// DuplicateSequence creates an error for a repeated requestSeq
func DuplicateSequence(seq int64, line string) *BridgeError {
	return &BridgeError{
		Code:    CodeDuplicateSequence,
		Message: fmt.Sprintf("duplicate sequence number detected: %d", seq),
		Hint:    "The relay or the remote agent answered the same request twice.",
		Details: map[string]interface{}{
			"requestSeq": seq,
			"line":       line,
		},
	}
}

// --- Synchronous Request Errors ---

// WaitInProgress creates an error when a second blocking request is issued
// while another one is outstanding
func WaitInProgress(pending, requested string) *BridgeError {
	return &BridgeError{
		Code:    CodeWaitInProgress,
		Message: fmt.Sprintf("cannot issue '%s' while '%s' is waiting for its response", requested, pending),
		Hint:    "Only one blocking request may be outstanding at a time. Retry once the previous call returns.",
		Details: map[string]interface{}{
			"pending":   pending,
			"requested": requested,
		},
	}
}

// OperationFailed creates an error for a response with success=false or an
// invalid response payload
func OperationFailed(command, message string) *BridgeError {
	return &BridgeError{
		Code:    CodeOperationFailed,
		Message: fmt.Sprintf("%s failed: %s", command, message),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// NotFound creates an error for a lookup that found nothing
func NotFound(what, key string) *BridgeError {
	return &BridgeError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found", what, key),
		Hint:    "The program may have resumed since the value was fetched. Refresh the stack and scope first.",
		Details: map[string]interface{}{
			what: key,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *BridgeError {
	return &BridgeError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *BridgeError {
	return &BridgeError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// --- Configuration Errors ---

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(source, reason string) *BridgeError {
	return &BridgeError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", source, reason),
		Hint:    "Check the configuration file for syntax errors and ensure all required fields are present.",
		Details: map[string]interface{}{
			"source": source,
			"reason": reason,
		},
	}
}

// --- Helpers ---

// FromError creates a BridgeError from a generic error, attempting to preserve any existing structure
func FromError(err error) *BridgeError {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be
	}
	return &BridgeError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
