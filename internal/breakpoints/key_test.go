package breakpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// TestNewKey_Normalization verifies that casing and slash direction do not
// affect key equality.
func TestNewKey_Normalization(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
	}{
		{"slash direction", NewKey(`C:\src\main.go`, 10), NewKey("C:/src/main.go", 10)},
		{"casing", NewKey(`C:\Src\Main.go`, 10), NewKey(`c:\src\main.go`, 10)},
		{"dot segments", NewKey("/work/app/../app/main.go", 3), NewKey("/work/app/main.go", 3)},
		{"unc", NewKey(`\\server\share\a.go`, 1), NewKey("//server/share/a.go", 1)},
		{"whitespace", NewKey("  /a/b.go ", 2), NewKey("/a/b.go", 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.a.Equal(tt.b), "%s != %s", tt.a, tt.b)
			assert.Equal(t, tt.a.id(), tt.b.id())
		})
	}

	assert.False(t, NewKey("/a.go", 1).Equal(NewKey("/a.go", 2)))
	// a drive path is never folded onto a rooted path without one
	assert.False(t, NewKey("C:/src/a.cpp", 10).Equal(NewKey("/src/a.cpp", 10)))
	assert.Equal(t, "//server/share/a.go", NewKey(`\\server\share\a.go`, 1).File)
}

// TestKey_Valid verifies keys without a file or a positive line are invalid.
func TestKey_Valid(t *testing.T) {
	assert.True(t, NewKey("/a.go", 1).Valid())
	assert.False(t, NewKey("", 1).Valid())
	assert.False(t, NewKey("/a.go", 0).Valid())

	k := NewKey("/a.go", -4)
	assert.Equal(t, 0, k.Line)
	assert.False(t, k.Valid())
	assert.Equal(t, "/a.go:0", k.String())
}

// TestSignature verifies ordering and value rendering.
func TestSignature(t *testing.T) {
	a := protocol.Fields{"line": 3, "file": "/a.go", "enabled": true, "condition": nil}
	b := protocol.Fields{"enabled": true, "condition": nil, "file": "/a.go", "line": 3}

	assert.Equal(t, "condition=;enabled=true;file=/a.go;line=3;", Signature(a))
	assert.Equal(t, Signature(a), Signature(b))
	assert.Empty(t, Signature(nil))

	b["enabled"] = false
	assert.NotEqual(t, Signature(a), Signature(b))
}

// TestPayload verifies condition type mapping and the enabled override.
func TestPayload(t *testing.T) {
	key := NewKey(`C:\src\a.go`, 7)

	tests := []struct {
		name     string
		bp       Breakpoint
		override *bool
		wantType string
		enabled  bool
	}{
		{"plain", Breakpoint{Enabled: true}, nil, WireConditionNone, true},
		{"when true", Breakpoint{Condition: "x > 1", ConditionKind: ConditionWhenTrue, Enabled: true}, nil, WireConditionExpression, true},
		{"when changed", Breakpoint{Condition: "x", ConditionKind: ConditionWhenChanged}, nil, WireConditionExpression, false},
		{"condition without kind", Breakpoint{Condition: "x"}, nil, WireConditionNone, false},
		{"kind without condition", Breakpoint{ConditionKind: ConditionWhenTrue, Condition: "  "}, nil, WireConditionNone, false},
		{"override", Breakpoint{Enabled: true}, boolPtr(false), WireConditionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payload(tt.bp, key, tt.override)
			assert.Equal(t, tt.wantType, p["conditionType"])
			assert.Equal(t, tt.enabled, p["enabled"])
			assert.Equal(t, "C:/src/a.go", p["file"])
			assert.Equal(t, 7, p["line"])
		})
	}
}

func boolPtr(b bool) *bool { return &b }
