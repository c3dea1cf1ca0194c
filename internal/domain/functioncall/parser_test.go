package functioncall

import (
	"encoding/json"
	"strings"
	"testing"
)

const marker = "Request function call:"

func TestParseEmulated_ExactMarker(t *testing.T) {
	text := "Here's the weather.\nRequest function call: get_weather\n{\"location\": \"Tokyo\"}\nDone."
	calls, remainder := ParseEmulated(text, marker)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" {
		t.Fatalf("expected name get_weather, got %q", calls[0].Name)
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(calls[0].Arguments), &args); err != nil {
		t.Fatalf("arguments did not parse as JSON: %v", err)
	}
	if args["location"] != "Tokyo" {
		t.Fatalf("expected location Tokyo, got %v", args["location"])
	}
	if strings.Contains(remainder, "Request function call") {
		t.Fatalf("expected the function-call block to be removed from remainder, got %q", remainder)
	}
	if !strings.Contains(remainder, "Here's the weather.") || !strings.Contains(remainder, "Done.") {
		t.Fatalf("expected surrounding text to survive, got %q", remainder)
	}
}

func TestParseEmulated_NoCallReturnsTextUnchanged(t *testing.T) {
	text := "Just a plain reply, nothing to call."
	calls, remainder := ParseEmulated(text, marker)
	if len(calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(calls))
	}
	if remainder != text {
		t.Fatalf("expected remainder unchanged, got %q", remainder)
	}
}

func TestParseEmulated_EmptyArgumentsDefaultToEmptyObject(t *testing.T) {
	text := "Request function call: ping\n{}"
	calls, _ := ParseEmulated(text, marker)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Arguments != "{}" {
		t.Fatalf("expected empty object arguments, got %q", calls[0].Arguments)
	}
}

func TestParseEmulated_MultipleCalls(t *testing.T) {
	text := "Request function call: get_weather\n{\"location\":\"Tokyo\"}\n" +
		"Request function call: get_time\n{\"zone\":\"JST\"}\n"
	calls, _ := ParseEmulated(text, marker)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" || calls[1].Name != "get_time" {
		t.Fatalf("unexpected call order/names: %+v", calls)
	}
}

func TestParseEmulated_BracketBalancedScanIgnoresNestedBraces(t *testing.T) {
	text := `Request function call: search
{"query": "find {nested} braces", "filters": {"year": 2024}}`
	calls, _ := ParseEmulated(text, marker)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(calls[0].Arguments), &args); err != nil {
		t.Fatalf("arguments did not parse: %v", err)
	}
	if args["query"] != "find {nested} braces" {
		t.Fatalf("expected nested-brace string to survive, got %v", args["query"])
	}
}

func TestParseEmulated_FuzzyPrefixMatchRestoresName(t *testing.T) {
	// marker itself isn't truncated here -- this is the registered-tool-name
	// truncation scenario from spec §8 scenario 6, which ExtractCalls/
	// the caller resolves by fuzzy-matching against registered tool names,
	// not ParseEmulated directly. ParseEmulated always trusts the name the
	// model actually emitted; prefix fuzzy matching against the registry
	// is exercised in orchestrator_test.go.
	text := "Request function call: gh_grep_searchGitH\n{}"
	calls, _ := ParseEmulated(text, marker)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Name != "gh_grep_searchGitH" {
		t.Fatalf("expected raw emitted name, got %q", calls[0].Name)
	}
}

func TestMatchesMarker_FuzzyOnMangledMarkerLine(t *testing.T) {
	// A marker line with a typo should still fuzzy-match at >=70% prefix overlap.
	if !matchesMarker("Request function cal:", marker) {
		t.Fatal("expected a near-exact marker line to fuzzy-match")
	}
	if matchesMarker("totally unrelated line", marker) {
		t.Fatal("expected an unrelated line to not match")
	}
}

func TestScanBalancedJSON_RespectsStringEscapes(t *testing.T) {
	obj, consumed, ok := scanBalancedJSON(`{"a": "esc\"aped } brace"} trailing`)
	if !ok {
		t.Fatal("expected scan to succeed")
	}
	if obj != `{"a": "esc\"aped } brace"}` {
		t.Fatalf("unexpected object: %q", obj)
	}
	if consumed != len(obj) {
		t.Fatalf("expected consumed == len(obj), got %d vs %d", consumed, len(obj))
	}
}

func TestScanBalancedJSON_UnbalancedReturnsFalse(t *testing.T) {
	_, _, ok := scanBalancedJSON(`{"a": 1`)
	if ok {
		t.Fatal("expected unbalanced input to fail")
	}
}

func TestParseNative_DefaultsEmptyArgsToEmptyObject(t *testing.T) {
	calls := ParseNative([]NativeWidget{{Name: "ping", ArgsJSON: ""}})
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Arguments != "{}" {
		t.Fatalf("expected default '{}', got %q", calls[0].Arguments)
	}
	if !callIDPattern.MatchString(calls[0].ID) {
		t.Fatalf("expected a well-shaped call ID, got %q", calls[0].ID)
	}
}

func TestParseNative_PreservesProvidedArgs(t *testing.T) {
	calls := ParseNative([]NativeWidget{{Name: "get_weather", ArgsJSON: `{"location":"Tokyo"}`}})
	if calls[0].Arguments != `{"location":"Tokyo"}` {
		t.Fatalf("unexpected arguments: %q", calls[0].Arguments)
	}
}
