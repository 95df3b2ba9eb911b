// Package notes extracts structured metadata from free-text customer notes.
package notes

import (
	"regexp"
	"strings"
)

var (
	taggedLine = regexp.MustCompile(`(?i)^\s*\[compliance\]\s*([^:=]+?)\s*[:=]\s*(.*?)\s*$`)
	pairSpan   = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_.-]*)\s*=\s*([^;\n]*)`)
	pairKey    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)
)

// ParseCompliance returns the key/value pairs found in text. Lines of the
// form "[Compliance] key: value" are read first; any other line made of
// "key=value;" segments contributes every segment. Keys are lower-cased
// and trimmed; later occurrences of a key win. The result is nil when the
// text carries no pairs.
func ParseCompliance(text string) map[string]string {
	var out map[string]string
	put := func(key, value string) {
		key = normalizeKey(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[key] = value
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := taggedLine.FindStringSubmatch(line); m != nil {
			put(m[1], m[2])
			continue
		}
		if !strings.Contains(line, "=") || !isPairLine(line) {
			continue
		}
		for _, m := range pairSpan.FindAllStringSubmatch(line, -1) {
			put(m[1], m[2])
		}
	}
	return out
}

// isPairLine reports whether every ';'-separated segment of line is a
// key=value pair, so prose that happens to contain '=' is ignored.
func isPairLine(line string) bool {
	segments := 0
	for _, segment := range strings.Split(line, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		key, _, ok := strings.Cut(segment, "=")
		if !ok || !pairKey.MatchString(strings.TrimSpace(key)) {
			return false
		}
		segments++
	}
	return segments > 0
}

func normalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), "_")
}
