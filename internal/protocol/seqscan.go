package protocol

import (
	"strconv"
	"strings"
	"sync"
	"unicode"
)

const requestSeqKey = `"requestSeq"`

// LooksLikeJSON reports whether the first non-blank character of line opens
// an object or an array.
func LooksLikeJSON(line string) bool {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// ScanRequestSeq extracts the integer value of the first "requestSeq" field
// without decoding the line. It only understands the flat layout the agent
// emits; anything else reports false.
func ScanRequestSeq(line string) (int64, bool) {
	idx := strings.Index(line, requestSeqKey)
	if idx < 0 {
		return 0, false
	}

	rest := line[idx+len(requestSeqKey):]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return 0, false
	}
	rest = rest[colon+1:]

	end := strings.IndexByte(rest, ',')
	if end < 0 {
		end = strings.IndexByte(rest, '}')
	}
	if end <= 0 {
		return 0, false
	}

	seq, err := strconv.ParseInt(strings.TrimSpace(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// SequenceTracker remembers the last requestSeq seen on a stream.
type SequenceTracker struct {
	mu   sync.Mutex
	last int64
}

// NewSequenceTracker returns a tracker that has seen nothing yet.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{last: -1}
}

// Observe records seq and reports whether it repeats the previous value.
func (t *SequenceTracker) Observe(seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	dup := seq == t.last
	t.last = seq
	return dup
}

// Reset forgets the last value.
func (t *SequenceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = -1
}
