package logging

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// DefaultThrottleWindow is the minimum interval between two identical
// diagnostics.
const DefaultThrottleWindow = 5 * time.Second

// Throttled drops repeated diagnostics. Two messages are identical when
// their text matches; the first one in each window is written.
type Throttled struct {
	log    logr.Logger
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottled wraps log with a window of DefaultThrottleWindow.
func NewThrottled(log logr.Logger) *Throttled {
	return &Throttled{
		log:    log,
		window: DefaultThrottleWindow,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// WithWindow returns the receiver with a different window.
func (t *Throttled) WithWindow(window time.Duration) *Throttled {
	t.window = window
	return t
}

// Info logs msg unless the same message was logged within the window.
func (t *Throttled) Info(msg string, keysAndValues ...any) {
	if t.allow(msg) {
		t.log.Info(msg, keysAndValues...)
	}
}

// Error logs err unless the same message was logged within the window.
func (t *Throttled) Error(err error, msg string, keysAndValues ...any) {
	if t.allow(msg) {
		t.log.Error(err, msg, keysAndValues...)
	}
}

func (t *Throttled) allow(msg string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[msg]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[msg] = now
	return true
}
