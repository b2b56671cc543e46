package breakpoints

import (
	"strings"

	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// ConditionKind tells when a conditional breakpoint triggers
type ConditionKind string

const (
	ConditionNone        ConditionKind = ""
	ConditionWhenTrue    ConditionKind = "whenTrue"
	ConditionWhenChanged ConditionKind = "whenChanged"
)

// Wire values of conditionType
const (
	WireConditionNone       = "none"
	WireConditionExpression = "expression"
)

// Breakpoint is a host-side breakpoint
type Breakpoint struct {
	File               string
	Line               int
	Function           string
	FunctionLineOffset int
	Condition          string
	ConditionKind      ConditionKind
	Enabled            bool
}

func (b Breakpoint) Key() Key {
	return NewKey(b.File, b.Line)
}

// FromConfig converts a configured breakpoint
func FromConfig(c config.BreakpointConfig) Breakpoint {
	return Breakpoint{
		File:               c.File,
		Line:               c.Line,
		Function:           c.Function,
		FunctionLineOffset: c.FunctionLineOffset,
		Condition:          c.Condition,
		ConditionKind:      ConditionKind(c.ConditionType),
		Enabled:            c.IsEnabled(),
	}
}

// Payload builds the set_breakpoint payload for b. A non-nil enabled
// override replaces b.Enabled. File and line are taken from key.
func Payload(b Breakpoint, key Key, enabledOverride *bool) protocol.Fields {
	conditionType := WireConditionNone
	condition := strings.TrimSpace(b.Condition)
	if condition != "" && (b.ConditionKind == ConditionWhenTrue || b.ConditionKind == ConditionWhenChanged) {
		conditionType = WireConditionExpression
	}

	enabled := b.Enabled
	if enabledOverride != nil {
		enabled = *enabledOverride
	}

	return protocol.Fields{
		"file":               key.File,
		"line":               key.Line,
		"function":           b.Function,
		"functionLineOffset": b.FunctionLineOffset,
		"conditionType":      conditionType,
		"condition":          b.Condition,
		"enabled":            enabled,
	}
}
