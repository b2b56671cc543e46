package config

import (
	"net"
	"strconv"
	"strings"
	"sync"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 9000
)

// Endpoint is the remote agent address shared by every transport of the
// host bridge, together with the connection flags that decide whether a
// user must be asked for the endpoint again.
type Endpoint struct {
	mu sync.Mutex

	host string
	port int

	transportConnected bool
	sessionEstablished bool
	everEstablished    bool
}

// NewEndpoint returns an endpoint for host:port. Empty or invalid values
// fall back to the defaults.
func NewEndpoint(host string, port int) *Endpoint {
	e := &Endpoint{}
	e.SetHost(host)
	e.SetPort(port)
	return e
}

// Host returns the configured host
func (e *Endpoint) Host() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host
}

// SetHost sets the host; blank values reset it to DefaultHost
func (e *Endpoint) SetHost(host string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if strings.TrimSpace(host) == "" {
		e.host = DefaultHost
		return
	}
	e.host = strings.TrimSpace(host)
}

// Port returns the configured port
func (e *Endpoint) Port() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

// SetPort sets the port; non-positive values reset it to DefaultPort
func (e *Endpoint) SetPort(port int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if port <= 0 {
		e.port = DefaultPort
		return
	}
	e.port = port
}

// Get returns host and port under one lock
func (e *Endpoint) Get() (string, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host, e.port
}

// HostPort returns "host:port"
func (e *Endpoint) HostPort() string {
	host, port := e.Get()
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// TrySet replaces the endpoint from user input. A successful change clears
// every connection flag, so the new endpoint is prompted for again until a
// session on it is established.
func (e *Endpoint) TrySet(host, portText string) bool {
	if strings.TrimSpace(host) == "" {
		return false
	}

	port, err := strconv.Atoi(strings.TrimSpace(portText))
	if err != nil || port <= 0 || port > 65535 {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.host = strings.TrimSpace(host)
	e.port = port
	e.transportConnected = false
	e.sessionEstablished = false
	e.everEstablished = false
	return true
}

// TransportConnected reports whether the remote transport is up
func (e *Endpoint) TransportConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transportConnected
}

// SessionEstablished reports whether the current session sent its ready command
func (e *Endpoint) SessionEstablished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionEstablished
}

// EverEstablished reports whether a session on this endpoint ever became ready
func (e *Endpoint) EverEstablished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.everEstablished
}

// NeedsPrompt reports whether a connect-time prompt should be shown
func (e *Endpoint) NeedsPrompt() bool {
	return !e.EverEstablished()
}

// MarkTransportConnected records a successful remote connect
func (e *Endpoint) MarkTransportConnected() {
	e.update(boolPtr(true), nil, nil)
}

// MarkSessionEstablished records that the initial breakpoint state was sent
func (e *Endpoint) MarkSessionEstablished() {
	e.update(nil, boolPtr(true), boolPtr(true))
}

// MarkTransportDisconnected records an expected or graceful disconnect
func (e *Endpoint) MarkTransportDisconnected() {
	e.update(boolPtr(false), boolPtr(false), nil)
}

// MarkConnectionFailed records a failure; the endpoint must be confirmed again
func (e *Endpoint) MarkConnectionFailed() {
	e.update(boolPtr(false), boolPtr(false), boolPtr(false))
}

func (e *Endpoint) update(connected, session, ever *bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if connected != nil {
		e.transportConnected = *connected
	}
	if session != nil {
		e.sessionEstablished = *session
	}
	if ever != nil {
		e.everEstablished = *ever
	}
}

func boolPtr(b bool) *bool {
	return &b
}

// ParseHostPort splits "host:port" on the last colon. The port must be in
// 1..65535 and the host must not be empty.
func ParseHostPort(endpoint string) (string, int, bool) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", 0, false
	}

	sep := strings.LastIndex(trimmed, ":")
	if sep <= 0 || sep >= len(trimmed)-1 {
		return "", 0, false
	}

	port, err := strconv.Atoi(trimmed[sep+1:])
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}

	host := strings.TrimSpace(trimmed[:sep])
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return "", 0, false
	}

	return host, port, true
}
