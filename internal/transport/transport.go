// Package transport implements the duplex line channels of the bridge.
//
// Each line is one UTF-8 JSON envelope terminated by '\n'. This package provides:
//   - Channel: the dialing side, with one reader goroutine per connection
//     generation and a single failure notification per generation
//   - Listener: the accepting side, bound to a preferred port with random
//     fallback ports, keeping exactly one active peer
//   - IsExpectedCloseError: classification of errors caused by a local close
package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Observer receives the events of a Channel. Callbacks run on the channel's
// reader goroutine (or on the sending goroutine for write failures) and must
// not block for long.
type Observer interface {
	// LineReceived is called for every inbound line, without its terminator
	LineReceived(line string)

	// ConnectionFailed is called at most once per connection generation when
	// connecting, reading or writing fails, or when the peer closes
	// unexpectedly (message "Transport disconnected.")
	ConnectionFailed(message string)

	// Disconnected is called once when a generation ends, before any
	// ConnectionFailed for it. expected is true when the local side
	// initiated the close.
	Disconnected(expected bool)
}

// ObserverFuncs adapts plain functions to Observer. Nil members are skipped.
type ObserverFuncs struct {
	OnLine         func(line string)
	OnFailed       func(message string)
	OnDisconnected func(expected bool)
}

func (o ObserverFuncs) LineReceived(line string) {
	if o.OnLine != nil {
		o.OnLine(line)
	}
}

func (o ObserverFuncs) ConnectionFailed(message string) {
	if o.OnFailed != nil {
		o.OnFailed(message)
	}
}

func (o ObserverFuncs) Disconnected(expected bool) {
	if o.OnDisconnected != nil {
		o.OnDisconnected(expected)
	}
}

// Recorder captures lines crossing a transport
type Recorder interface {
	Record(direction string, connection int64, line string)
}

// Directions passed to Recorder
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// IsExpectedCloseError reports whether err is the normal result of a
// connection being closed by either side.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

const utf8BOM = "\ufeff"

// lineReader yields lines of arbitrary length.
type lineReader struct {
	r     *bufio.Reader
	first bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 4096), first: true}
}

// next returns the next line. A final unterminated line is returned before
// io.EOF is reported.
func (lr *lineReader) next() (string, error) {
	line, err := lr.r.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}

	line = strings.TrimRight(line, "\r\n")
	if lr.first {
		lr.first = false
		line = strings.TrimPrefix(line, utf8BOM)
	}
	return line, nil
}
