package config

import (
	"testing"

	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
)

func TestCapabilityTable_ExactMatch(t *testing.T) {
	table := NewCapabilityTable([]ModelConfig{
		{ID: "gemini-2.5-pro", ThinkingMode: "budget", ThinkingBudgetMin: 0, ThinkingBudgetMax: 32000, SupportsGoogleSearch: true},
	})
	cap := table.Resolve("gemini-2.5-pro")
	if cap.ThinkingMode != domainbrowser.ThinkingBudget {
		t.Fatalf("expected ThinkingBudget, got %s", cap.ThinkingMode)
	}
	if !cap.SupportsGoogleSearch {
		t.Fatal("expected SupportsGoogleSearch true")
	}
	if cap.ThinkingBudgetRange != [2]int{0, 32000} {
		t.Fatalf("unexpected budget range: %v", cap.ThinkingBudgetRange)
	}
}

func TestCapabilityTable_GlobMatch(t *testing.T) {
	table := NewCapabilityTable([]ModelConfig{
		{ID: "gemini-*-flash", ThinkingMode: "levels", ThinkingLevels: []string{"low", "high"}},
	})
	cap := table.Resolve("gemini-2.5-flash")
	if cap.ThinkingMode != domainbrowser.ThinkingLevels {
		t.Fatalf("expected ThinkingLevels, got %s", cap.ThinkingMode)
	}
	if len(cap.ThinkingLevels) != 2 {
		t.Fatalf("expected 2 thinking levels, got %v", cap.ThinkingLevels)
	}
}

func TestCapabilityTable_NoMatchFallsBackToDefault(t *testing.T) {
	table := NewCapabilityTable([]ModelConfig{
		{ID: "gemini-2.5-pro", ThinkingMode: "budget"},
	})
	cap := table.Resolve("unknown-model")
	if cap.ThinkingMode != domainbrowser.ThinkingNone {
		t.Fatalf("expected ThinkingNone fallback, got %s", cap.ThinkingMode)
	}
	if cap.SupportsGoogleSearch || cap.SupportsURLContext {
		t.Fatal("expected conservative fallback with no extra capabilities")
	}
}

func TestCapabilityTable_FirstMatchWins(t *testing.T) {
	table := NewCapabilityTable([]ModelConfig{
		{ID: "gemini-*", ThinkingMode: "none"},
		{ID: "gemini-2.5-pro", ThinkingMode: "budget"},
	})
	cap := table.Resolve("gemini-2.5-pro")
	if cap.ThinkingMode != domainbrowser.ThinkingNone {
		t.Fatalf("expected the first matching entry (gemini-*) to win, got %s", cap.ThinkingMode)
	}
}
