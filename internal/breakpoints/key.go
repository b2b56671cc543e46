// Package breakpoints keeps the remote agent's breakpoint set in step with
// the host's breakpoints.
//
// The Synchronizer sends set_breakpoint and remove_breakpoint commands only
// when a breakpoint's wire payload actually changes, and sends the ready
// command once the initial breakpoint set has been transmitted.
package breakpoints

import (
	"path"
	"strconv"
	"strings"
	"unicode"
)

// Key identifies a breakpoint by file and 1-based line. Files are compared
// case-insensitively after slash normalization.
type Key struct {
	File string
	Line int
}

func NewKey(file string, line int) Key {
	if line < 0 {
		line = 0
	}
	return Key{File: NormalizePath(file), Line: line}
}

// Valid reports whether the key can be synchronized
func (k Key) Valid() bool {
	return k.File != "" && k.Line > 0
}

// Equal compares keys case-insensitively
func (k Key) Equal(other Key) bool {
	return k.Line == other.Line && strings.EqualFold(k.File, other.File)
}

func (k Key) String() string {
	return k.File + ":" + strconv.Itoa(k.Line)
}

// id is the map key for k.
func (k Key) id() string {
	return strings.ToLower(k.File) + ":" + strconv.Itoa(k.Line)
}

// NormalizePath converts backslashes to slashes and cleans absolute paths.
// Relative paths are only trimmed.
func NormalizePath(file string) string {
	file = strings.TrimSpace(strings.ReplaceAll(file, `\`, "/"))
	if file == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(file, "//"):
		// UNC share
		return "/" + path.Clean(file[1:])
	case looksLikeDrivePath(file), strings.HasPrefix(file, "/"):
		return path.Clean(file)
	}
	return file
}

// IsAbsolutePath reports whether a normalized path is rooted: a slash, a
// UNC share or a drive letter.
func IsAbsolutePath(file string) bool {
	return strings.HasPrefix(file, "/") || looksLikeDrivePath(file)
}

func looksLikeDrivePath(file string) bool {
	return len(file) > 1 && file[1] == ':' && unicode.IsLetter(rune(file[0]))
}
