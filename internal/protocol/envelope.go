package protocol

// Message is one classified envelope: *Request, *Response or *Event.
type Message interface {
	MessageType() string
}

// Request is a command sent toward the remote agent
type Request struct {
	Seq     int64
	Command string
	Fields  Fields
}

// MessageType implements Message
func (r *Request) MessageType() string { return TypeRequest }

// Response answers a Request
type Response struct {
	Command    string
	RequestSeq int64
	Success    bool
	Message    string
	Fields     Fields
}

// MessageType implements Message
func (r *Response) MessageType() string { return TypeResponse }

// Event is an asynchronous notification from the remote agent
type Event struct {
	Event  string
	Fields Fields
}

// MessageType implements Message
func (e *Event) MessageType() string { return TypeEvent }

// EncodeRequest renders a request line. Payload keys never override seq,
// type or command.
func EncodeRequest(seq int64, command string, payload map[string]any) (string, error) {
	req := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		req[k] = v
	}
	req["seq"] = seq
	req["type"] = TypeRequest
	req["command"] = command
	return marshalLine(req)
}

// EncodeEvent renders an event line.
func EncodeEvent(name string, payload map[string]any) (string, error) {
	evt := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		evt[k] = v
	}
	evt["type"] = TypeEvent
	evt["event"] = name
	return marshalLine(evt)
}

// EncodeResponse renders a response line. It is used by tests and by tools
// that emulate the remote agent.
func EncodeResponse(requestSeq int64, command string, success bool, message string, body map[string]any) (string, error) {
	resp := make(map[string]any, len(body)+5)
	for k, v := range body {
		resp[k] = v
	}
	resp["type"] = TypeResponse
	resp["command"] = command
	resp["requestSeq"] = requestSeq
	resp["success"] = success
	if message != "" {
		resp["message"] = message
	}
	return marshalLine(resp)
}
