package engine

import (
	"sort"
	"strings"
	"sync"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// Change types of the breakpoint_changed command
const (
	ChangeAdded            = breakpoints.ChangeAdded
	ChangeRemoved          = breakpoints.ChangeRemoved
	ChangeEnabledChanged   = breakpoints.ChangeEnabledChanged
	ChangeConditionChanged = breakpoints.ChangeConditionChanged
)

// Breakpoint is a breakpoint registered on the engine side. Bindable is
// false when the line does not look executable; such a breakpoint stays
// disabled.
type Breakpoint struct {
	ID            int                       `json:"id"`
	File          string                    `json:"file"`
	Line          int                       `json:"line"`
	Enabled       bool                      `json:"enabled"`
	Condition     string                    `json:"condition,omitempty"`
	ConditionKind breakpoints.ConditionKind `json:"conditionType,omitempty"`
	Bindable      bool                      `json:"bindable"`
	Message       string                    `json:"message,omitempty"`
}

func (b Breakpoint) key() breakpoints.Key {
	return breakpoints.NewKey(b.File, b.Line)
}

// changePayload builds the breakpoint_changed payload for changeType
func (b Breakpoint) changePayload(changeType string, withEnabled, withCondition bool) map[string]any {
	payload := map[string]any{
		"changeType": changeType,
		"file":       b.File,
		"line":       b.Line,
	}
	if withEnabled {
		payload["enabled"] = b.Enabled
	}
	if withCondition {
		payload["condition"] = b.Condition
		payload["conditionType"] = string(b.ConditionKind)
	}
	return payload
}

// registry holds the engine's breakpoints keyed by normalized location
type registry struct {
	mu     sync.Mutex
	byKey  map[string]*Breakpoint
	nextID int
}

func newRegistry() *registry {
	return &registry{byKey: make(map[string]*Breakpoint)}
}

func locationKey(k breakpoints.Key) string {
	return strings.ToLower(k.String())
}

func (r *registry) lookup(k breakpoints.Key) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byKey[locationKey(k)]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// upsert applies update to the breakpoint at k, creating it with create
// when absent. It returns the result and whether it was created.
func (r *registry) upsert(k breakpoints.Key, create func() Breakpoint, update func(*Breakpoint)) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := locationKey(k)
	if bp, ok := r.byKey[id]; ok {
		update(bp)
		return *bp, false
	}

	r.nextID++
	bp := create()
	bp.ID = r.nextID
	r.byKey[id] = &bp
	return bp, true
}

func (r *registry) update(k breakpoints.Key, update func(*Breakpoint)) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.byKey[locationKey(k)]
	if !ok {
		return Breakpoint{}, false
	}
	update(bp)
	return *bp, true
}

func (r *registry) remove(k breakpoints.Key) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := locationKey(k)
	bp, ok := r.byKey[id]
	if !ok {
		return Breakpoint{}, false
	}
	delete(r.byKey, id)
	return *bp, true
}

func (r *registry) list() []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Breakpoint, 0, len(r.byKey))
	for _, bp := range r.byKey {
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]*Breakpoint)
}

// --- Engine API ---

// SetBreakpoint registers a breakpoint or changes the condition of an
// existing one and tells the host bridge. A breakpoint on a line that does
// not look executable is registered disabled and not bindable.
func (e *Engine) SetBreakpoint(file string, line int, condition string, kind breakpoints.ConditionKind) (Breakpoint, error) {
	key := breakpoints.NewKey(e.resolvePath(file), line)
	if !key.Valid() {
		return Breakpoint{}, invalidLocation(file, line)
	}
	condition = strings.TrimSpace(condition)
	if condition != "" && kind == breakpoints.ConditionNone {
		kind = breakpoints.ConditionWhenTrue
	}

	conditionChanged := false
	bp, created := e.breakpoints.upsert(key,
		func() Breakpoint {
			bindable := IsLikelyExecutableLine(key.File, key.Line)
			bp := Breakpoint{
				File:          key.File,
				Line:          key.Line,
				Enabled:       bindable,
				Condition:     condition,
				ConditionKind: kind,
				Bindable:      bindable,
			}
			if !bindable {
				bp.Message = NotExecutableMessage
			}
			return bp
		},
		func(bp *Breakpoint) {
			if bp.Condition != condition || bp.ConditionKind != kind {
				bp.Condition = condition
				bp.ConditionKind = kind
				conditionChanged = true
			}
		})

	switch {
	case created:
		e.log.V(1).Info("Breakpoint registered", "location", key.String(), "bindable", bp.Bindable)
		e.notifyBreakpoint(bp.changePayload(ChangeAdded, true, true))
		e.frontend.Notify(e.events.breakpoint("new", bp))
	case conditionChanged:
		e.notifyBreakpoint(bp.changePayload(ChangeConditionChanged, true, true))
		e.frontend.Notify(e.events.breakpoint("changed", bp))
	}
	return bp, nil
}

// RemoveBreakpoint unregisters the breakpoint at file:line
func (e *Engine) RemoveBreakpoint(file string, line int) (Breakpoint, error) {
	key := breakpoints.NewKey(e.resolvePath(file), line)
	bp, ok := e.breakpoints.remove(key)
	if !ok {
		return Breakpoint{}, breakpointNotFound(key)
	}
	e.notifyBreakpoint(bp.changePayload(ChangeRemoved, false, false))
	e.frontend.Notify(e.events.breakpoint("removed", bp))
	return bp, nil
}

// EnableBreakpoint enables or disables the breakpoint at file:line. A
// breakpoint that is not bindable stays disabled and the host is told so.
func (e *Engine) EnableBreakpoint(file string, line int, enabled bool) (Breakpoint, error) {
	key := breakpoints.NewKey(e.resolvePath(file), line)
	bp, ok := e.breakpoints.update(key, func(bp *Breakpoint) {
		bp.Enabled = enabled && bp.Bindable
	})
	if !ok {
		return Breakpoint{}, breakpointNotFound(key)
	}

	e.notifyBreakpoint(bp.changePayload(ChangeEnabledChanged, true, false))
	e.frontend.Notify(e.events.breakpoint("changed", bp))
	return bp, nil
}

// Breakpoints lists the registered breakpoints in creation order
func (e *Engine) Breakpoints() []Breakpoint {
	return e.breakpoints.list()
}

// announceBreakpoints sends every registered breakpoint to the host after
// a connect.
func (e *Engine) announceBreakpoints() {
	for _, bp := range e.breakpoints.list() {
		e.notifyBreakpoint(bp.changePayload(ChangeAdded, true, true))
	}
}

// notifyBreakpoint sends breakpoint_changed when connected. Changes made
// while disconnected are announced by the next Start.
func (e *Engine) notifyBreakpoint(payload map[string]any) {
	if !e.channel.IsConnected() {
		return
	}
	e.send(protocol.CommandBreakpointChanged, payload)
}
