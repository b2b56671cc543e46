package engine

import (
	"path"
	"strings"

	"github.com/ctagard/dbg-bridge/internal/breakpoints"
)

// ResolveSourcePath normalizes a source path reported by the agent or
// given by a user. A relative path is anchored in root when its first
// directory is also a directory of root: "src/a.cpp" with root
// "/work/proj/src/build" becomes "/work/proj/src/a.cpp". Otherwise the
// relative path is returned normalized.
func ResolveSourcePath(file, root string) string {
	file = breakpoints.NormalizePath(file)
	if file == "" || breakpoints.IsAbsolutePath(file) {
		return file
	}

	root = breakpoints.NormalizePath(root)
	if root == "" || !breakpoints.IsAbsolutePath(root) {
		return file
	}

	file = path.Clean(file)
	first, _, _ := strings.Cut(file, "/")
	if first == ".." {
		return breakpoints.NormalizePath(path.Join(root, file))
	}

	idx := strings.Index(root+"/", "/"+first+"/")
	if idx < 0 {
		return file
	}
	return breakpoints.NormalizePath(root[:idx] + "/" + file)
}
