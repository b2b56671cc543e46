package state

import (
	"strings"

	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// Variable is one node of the remote object graph. Elements is nil until
// the children have been fetched.
type Variable struct {
	Name     string
	Value    string
	Type     string
	Addr     int64
	TypeID   int
	Size     int
	Elements []int64
}

// Expandable reports whether the node has or may have children
func (v *Variable) Expandable() bool {
	return v.Size != 0 || len(v.Elements) > 0
}

// Editable reports whether set_variable may target the node. Only leaf
// values with a known address and type can be edited.
func (v *Variable) Editable() bool {
	return v.Addr != 0 && v.TypeID != 0 && v.Size == 0 && len(v.Elements) == 0
}

// IsString reports whether the node holds text
func (v *Variable) IsString() bool {
	return strings.Contains(strings.ToLower(v.Type), "string")
}

// NeedsLoad reports whether more children must be fetched
func (v *Variable) NeedsLoad() bool {
	if len(v.Elements) == 0 {
		return true
	}
	return v.Size > 0 && len(v.Elements) < v.Size
}

// PageWindow returns the get_property start and count that fetch the
// children not known yet.
func (v *Variable) PageWindow() (start, count int) {
	if n := len(v.Elements); n > 0 {
		if v.Size <= n {
			return n, 0
		}
		return n, v.Size - n
	}
	if v.Size > 0 {
		return 0, v.Size
	}
	return 0, 0
}

func (v *Variable) clone() Variable {
	out := *v
	if v.Elements != nil {
		out.Elements = make([]int64, len(v.Elements))
		copy(out.Elements, v.Elements)
	}
	return out
}

// parseVariable validates a protocol variable object. Required fields are
// name, value, type, typeId, a non-zero addr and size; start and count must
// be integers when present.
func parseVariable(obj protocol.Fields) (*Variable, string, bool) {
	if !obj.Has("name") {
		return nil, "missing name", false
	}
	if _, ok := obj["value"]; !ok {
		return nil, "missing value", false
	}
	if !obj.Has("type") {
		return nil, "missing type", false
	}
	typeID, ok := obj.Int("typeId")
	if !ok {
		return nil, "missing or invalid typeId", false
	}
	addr, ok := obj.Int64("addr")
	if !ok {
		return nil, "missing or invalid addr", false
	}
	if addr == 0 {
		return nil, "addr is zero", false
	}
	size, ok := obj.Int("size")
	if !ok {
		return nil, "missing or invalid size", false
	}
	for _, paging := range []string{"start", "count"} {
		if obj.Has(paging) {
			if _, ok := obj.Int(paging); !ok {
				return nil, "invalid " + paging, false
			}
		}
	}

	name, _ := obj.String("name")
	value, _ := obj.String("value")
	typ, _ := obj.String("type")

	return &Variable{
		Name:   name,
		Value:  value,
		Type:   typ,
		Addr:   addr,
		TypeID: typeID,
		Size:   size,
	}, "", true
}
