package engine

import (
	"bufio"
	"os"
	"strings"
)

// NotExecutableMessage explains why a breakpoint was registered disabled
const NotExecutableMessage = "Breakpoint location is not executable."

var declarationPrefixes = []string{"using ", "namespace ", "class ", "struct ", "interface ", "enum "}

// IsLikelyExecutableLine guesses whether a breakpoint on the 1-based line of
// file can bind. Files that cannot be read are assumed executable so a
// valid breakpoint is never disabled by mistake.
func IsLikelyExecutableLine(file string, line int) bool {
	if strings.TrimSpace(file) == "" || line <= 0 {
		return false
	}

	lines, err := readLines(file)
	if err != nil {
		return true
	}
	return isExecutableSourceLine(lines, line)
}

func readLines(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func isExecutableSourceLine(lines []string, line int) bool {
	if line > len(lines) {
		return false
	}
	if insideBlockComment(lines, line) || insideMacroContinuation(lines, line) {
		return false
	}

	text := strings.TrimSpace(lines[line-1])
	switch {
	case text == "":
		return false
	case strings.HasPrefix(text, "//"), strings.HasPrefix(text, "#"):
		return false
	case strings.HasPrefix(text, "/*"), strings.HasSuffix(text, "*/"):
		return false
	case strings.Contains(text, "/*") && !strings.Contains(text, "*/"):
		return false
	case strings.HasSuffix(text, `\`):
		return false
	case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		// attribute
		return false
	case text == ";", text == "};", text == "});":
		return false
	case text == "else", text == "finally", text == "do":
		return false
	case strings.HasPrefix(text, "catch") && !strings.Contains(text, "{"):
		return false
	}

	if strings.HasSuffix(text, ":") {
		label := strings.TrimSpace(strings.TrimSuffix(text, ":"))
		if label == "public" || label == "private" || label == "protected" ||
			strings.HasPrefix(text, "case ") || text == "default:" {
			return false
		}
	}

	for _, prefix := range declarationPrefixes {
		if strings.HasPrefix(text, prefix) {
			return false
		}
	}
	return true
}

// insideBlockComment reports whether a /* comment opened before the line is
// still open when it starts.
func insideBlockComment(lines []string, line int) bool {
	inBlock := false
	for i := 0; i < line-1 && i < len(lines); i++ {
		text := lines[i]
		for j := 0; j < len(text); j++ {
			if j+1 >= len(text) {
				break
			}
			pair := text[j : j+2]
			if inBlock {
				if pair == "*/" {
					inBlock = false
					j++
				}
				continue
			}
			if pair == "//" {
				break
			}
			if pair == "/*" {
				inBlock = true
				j++
			}
		}
	}
	return inBlock
}

// insideMacroContinuation reports whether the closest non-blank line above
// ends with a backslash.
func insideMacroContinuation(lines []string, line int) bool {
	for i := min(line-1, len(lines)) - 1; i >= 0; i-- {
		text := strings.TrimRight(lines[i], " \t\r")
		if text == "" {
			continue
		}
		return strings.HasSuffix(text, `\`)
	}
	return false
}
