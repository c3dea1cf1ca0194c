package config

import (
	"path/filepath"

	domainbrowser "github.com/ngoclaw/ngoclaw/gateway/internal/domain/browser"
)

// CapabilityTable resolves a model id to its browser-level capability
// profile using the first matching pattern in the configured model table,
// falling back to a conservative default (no thinking control, no search,
// no URL context) when nothing matches.
type CapabilityTable struct {
	entries []ModelConfig
}

func NewCapabilityTable(models []ModelConfig) *CapabilityTable {
	return &CapabilityTable{entries: models}
}

func (t *CapabilityTable) Resolve(modelID string) domainbrowser.Capability {
	for _, m := range t.entries {
		ok, err := filepath.Match(m.ID, modelID)
		if err != nil || !ok {
			continue
		}
		return toCapability(m)
	}
	return domainbrowser.Capability{ThinkingMode: domainbrowser.ThinkingNone}
}

func toCapability(m ModelConfig) domainbrowser.Capability {
	mode := domainbrowser.ThinkingMode(m.ThinkingMode)
	if mode == "" {
		mode = domainbrowser.ThinkingNone
	}
	return domainbrowser.Capability{
		ThinkingMode:         mode,
		ThinkingLevels:       m.ThinkingLevels,
		ThinkingBudgetRange:  [2]int{m.ThinkingBudgetMin, m.ThinkingBudgetMax},
		SupportsGoogleSearch: m.SupportsGoogleSearch,
		SupportsURLContext:   m.SupportsURLContext,
	}
}
