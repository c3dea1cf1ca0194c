package functioncall

import (
	"strings"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// FuzzyMatchThreshold is the minimum prefix-overlap ratio used by
// ResolveRegisteredName to map a truncated emulated-mode function name onto
// a registered tool, and by matchesMarker to recognise a mangled marker
// line. Kept as a var, not a const, so config can override it.
var FuzzyMatchThreshold = 0.70

// Mode selects which parsing strategy produced ToolCalls for a turn.
type Mode string

const (
	ModeNative Mode = "native" // native function-call widgets from the DOM
	ModeEmulated Mode = "emulated" // text-embedded JSON following a prompted marker
)

// ParseNative converts DOM-observed function-call widgets directly into
// ToolCalls, assigning a fresh call ID to each.
func ParseNative(widgets []NativeWidget) []entity.ToolCall {
	calls := make([]entity.ToolCall, 0, len(widgets))
	for _, w := range widgets {
		args := w.ArgsJSON
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		calls = append(calls, entity.ToolCall{ID: NewCallID(), Name: w.Name, Arguments: args})
	}
	return calls
}

// NativeWidget decouples this package from domainbrowser.FunctionCallWidget.
type NativeWidget struct {
	Name string
	ArgsJSON string
}

// ParseEmulated scans free-form model text for emulated function-call
// blocks: a line that starts with the marker reproduced exactly, followed
// by the function name, then a bracket-balanced JSON object giving the
// call's arguments. A line that only fuzzy-matches the marker carries no
// name and is kept as ordinary text. Returns the calls found and the text
// with those blocks removed.
func ParseEmulated(text, marker string) (calls []entity.ToolCall, remainder string) {
	lines := strings.Split(text, "\n")
	var kept []string

	i := 0
	for i < len(lines) {
		line := lines[i]
		name, matched := matchMarkerLine(strings.TrimSpace(line), marker)
		if !matched || name == "" {
			kept = append(kept, line)
			i++
			continue
		}

		rest := strings.Join(lines[i+1:], "\n")
		braceIdx := strings.Index(rest, "{")
		if braceIdx == -1 {
			kept = append(kept, line)
			i++
			continue
		}
		obj, consumed, ok := scanBalancedJSON(rest[braceIdx:])
		if !ok {
			kept = append(kept, line)
			i++
			continue
		}

		calls = append(calls, entity.ToolCall{ID: NewCallID(), Name: name, Arguments: normalizeArgsJSON(obj)})
		consumedText := rest[:braceIdx+consumed]
		i += 2 + strings.Count(consumedText, "\n")
	}
	return calls, strings.TrimSpace(strings.Join(kept, "\n"))
}

// matchMarkerLine reports whether line is a marker line and, if so, the
// function name text following the marker. A line that reproduces marker
// exactly as a prefix carries the name as whatever follows it; a line with
// no name suffix that is merely a mangled reproduction of marker itself
// (tolerating a typo, via matchesMarker's prefix-overlap ratio) matches
// with an empty name, which the caller treats as "not a call after all".
func matchMarkerLine(line, marker string) (name string, matched bool) {
	if marker == "" || line == "" {
		return "", false
	}
	if strings.HasPrefix(line, marker) {
		return strings.TrimSpace(strings.TrimPrefix(line, marker)), true
	}
	return "", matchesMarker(line, marker)
}

// normalizeArgsJSON returns obj unchanged unless it is empty, in which case
// it defaults to an empty JSON object.
func normalizeArgsJSON(obj string) string {
	if strings.TrimSpace(obj) == "" {
		return "{}"
	}
	return obj
}

// matchesMarker reports whether line, taken as a whole, is a close enough
// reproduction of marker (≥FuzzyMatchThreshold prefix overlap) to count as
// the marker itself — used only for tolerating a typo in the marker line
// when no exact prefix match was found.
func matchesMarker(line, marker string) bool {
	if line == marker {
		return true
	}
	if marker == "" || line == "" {
		return false
	}
	n := commonPrefixLen(line, marker)
	longest := len(marker)
	if len(line) > longest {
		longest = len(line)
	}
	return float64(n)/float64(longest) >= FuzzyMatchThreshold
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// ResolveRegisteredName resolves a parsed emulated-mode function name
// against the tools actually registered for this request. An exact match
// wins outright; otherwise the registered name with the longest common
// prefix is chosen, provided the prefix covers at least
// FuzzyMatchThreshold of the shorter of the two names (the truncated-tool-
// name recovery case: the model reproduces only a prefix of a long
// registered name before emitting its arguments). Returns ok=false if no
// registered name clears the threshold, signalling "unknown tool".
func ResolveRegisteredName(name string, registered []string) (resolved string, ok bool) {
	for _, r := range registered {
		if r == name {
			return r, true
		}
	}
	bestPrefix := -1
	best := ""
	for _, r := range registered {
		n := commonPrefixLen(name, r)
		shorter := len(name)
		if len(r) < shorter {
			shorter = len(r)
		}
		if shorter == 0 {
			continue
		}
		if float64(n)/float64(shorter) < FuzzyMatchThreshold {
			continue
		}
		if n > bestPrefix {
			bestPrefix = n
			best = r
		}
	}
	if bestPrefix < 0 {
		return "", false
	}
	return best, true
}

// scanBalancedJSON reads a single balanced `{...}` object starting at s[0]
// (which must be '{'), respecting string literals and escapes, and returns
// the object text plus how many bytes of s it consumed.
func scanBalancedJSON(s string) (obj string, consumed int, ok bool) {
	if len(s) == 0 || s[0] != '{' {
		return "", 0, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], i + 1, true
			}
		}
	}
	return "", 0, false
}
