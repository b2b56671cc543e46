package protocol

import (
	stderrors "errors"

	"github.com/go-logr/logr"

	"github.com/ctagard/dbg-bridge/internal/errors"
)

// EmptyFailureMessage replaces a missing message on a failed response.
const EmptyFailureMessage = "empty"

// Classifier turns inbound engine-side lines into typed messages. It is not
// safe for concurrent use; each connection's reader owns one.
type Classifier struct {
	log     logr.Logger
	schemas *SchemaValidator
	seq     *SequenceTracker
}

// NewClassifier creates a classifier with the built-in schemas.
func NewClassifier(log logr.Logger) *Classifier {
	return &Classifier{
		log:     log,
		schemas: NewSchemaValidator(),
		seq:     NewSequenceTracker(),
	}
}

// Reset forgets the duplicate-detection state, e.g. after a reconnect.
func (c *Classifier) Reset() {
	c.seq.Reset()
}

// Classify parses one line.
//
// On a validation failure the returned error is a SCHEMA_VIOLATION
// BridgeError. When the failing message is a response whose command could be
// read, the partially decoded *Response is returned alongside the error so
// the caller can fail a wait on that command.
func (c *Classifier) Classify(line string) (Message, error) {
	fields, err := DecodeFields([]byte(line))
	if err != nil {
		return nil, errors.SchemaViolation("line", "malformed JSON").WithCause(err)
	}

	if seq, ok := fields.Int64("requestSeq"); ok && c.seq.Observe(seq) {
		ReportDuplicate(c.log, seq, line)
	}

	msgType, _ := fields.String("type")
	switch {
	case msgType == "":
		return nil, errors.SchemaViolation("message", "missing type")
	case SameName(msgType, TypeEvent):
		return c.classifyEvent(fields)
	case SameName(msgType, TypeResponse):
		return c.classifyResponse(fields)
	case SameName(msgType, TypeRequest):
		command, _ := fields.String("command")
		seq, _ := fields.Int64("seq")
		return &Request{Seq: seq, Command: command, Fields: fields}, nil
	default:
		return nil, errors.SchemaViolation("message", "invalid type '"+msgType+"'")
	}
}

func (c *Classifier) classifyEvent(fields Fields) (Message, error) {
	name, _ := fields.String("event")
	if name == "" {
		return nil, errors.SchemaViolation("event", "missing event name")
	}

	evt := &Event{Event: name, Fields: fields}
	if err := c.schemas.ValidateEvent(name, fields); err != nil {
		return evt, schemaError(name, err)
	}
	return evt, nil
}

func (c *Classifier) classifyResponse(fields Fields) (Message, error) {
	command, _ := fields.String("command")
	if command == "" {
		return nil, errors.SchemaViolation("response", "missing command")
	}

	resp := &Response{Command: command, Fields: fields}

	success, ok := fields.Bool("success")
	if !ok {
		return resp, errors.SchemaViolation(command, "missing success")
	}
	resp.Success = success

	seq, ok := fields.Int64("requestSeq")
	if !ok {
		return resp, errors.SchemaViolation(command, "missing/invalid requestSeq")
	}
	resp.RequestSeq = seq

	message, _ := fields.String("message")
	switch {
	case !success && message == "":
		c.log.Info("Invalid failure response: success=false but message is missing/empty; injecting placeholder message", "command", command)
		message = EmptyFailureMessage
		fields["message"] = message
	case success && message != "":
		c.log.Info("Success response included unexpected message; dropping message field", "command", command)
		message = ""
		delete(fields, "message")
	}
	resp.Message = message

	if success {
		if err := c.schemas.ValidateResponse(command, fields); err != nil {
			return resp, schemaError(command, err)
		}
	}
	return resp, nil
}

func schemaError(name string, err error) error {
	var sve *SchemaValidationError
	if stderrors.As(err, &sve) && len(sve.Details) > 0 {
		return errors.SchemaViolation(name, sve.Details[0]).WithCause(err)
	}
	return errors.SchemaViolation(name, err.Error()).WithCause(err)
}
