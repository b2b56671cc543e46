package breakpoints

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctagard/dbg-bridge/internal/protocol"
)

// Signature serializes payload as "key=value;" pairs in ordinal key order.
// Equal payloads always produce equal signatures.
func Signature(payload protocol.Fields) string {
	if len(payload) == 0 {
		return ""
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		if v := payload[k]; v != nil {
			fmt.Fprint(&sb, v)
		}
		sb.WriteByte(';')
	}
	return sb.String()
}
