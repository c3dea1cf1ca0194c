// Package functioncall implements function-calling orchestration: schema
// conversion, a declarations digest cache for native-mode's cache-hit fast
// path, call-ID generation, response parsing across native/emulated modes,
// and OpenAI-shaped formatting.
package functioncall

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// DeclarationsCache remembers which digest of the tools array was last
// installed into the browser session, so an identical tools array across
// consecutive turns of the same conversation skips both the clear and the
// re-install step (native mode's cache-hit fast path). This is a single
// current-digest slot, not a TTL'd result cache: its job is "is the
// installed state already correct", not memoizing repeated calls.
type DeclarationsCache struct {
	mu sync.Mutex
	digest string
}

// NewDeclarationsCache creates an empty cache (no declarations installed).
func NewDeclarationsCache() *DeclarationsCache {
	return &DeclarationsCache{}
}

// Digest hashes the canonicalized tool declarations the same way
// regardless of map key ordering: json.Marshal on a []ToolDefinition
// already has Go-stable field order since it's a struct slice, not a map.
func Digest(decls []byte) string {
	h := sha256.Sum256(decls)
	return hex.EncodeToString(h[:])
}

// NeedsInstall reports whether decls differs from what's currently
// installed, and records decls as the new current state regardless —
// callers only call this once they've decided to proceed with the turn.
func (c *DeclarationsCache) NeedsInstall(decls []byte) bool {
	d := Digest(decls)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == c.digest {
		return false
	}
	c.digest = d
	return true
}

// Clear forces the next NeedsInstall to report true, used when
// FUNCTION_CALLING_CLEAR_BETWEEN_REQUESTS is enabled.
func (c *DeclarationsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.digest = ""
}

// CanonicalizeTools serializes tool definitions into the stable byte form
// Digest expects, independent of the caller's map iteration order for each
// tool's Parameters schema.
func CanonicalizeTools(tools []ToolDefinitionLike) ([]byte, error) {
	type wire struct {
		Name string `json:"name"`
		Description string `json:"description"`
		Parameters interface{} `json:"parameters"`
	}
	out := make([]wire, 0, len(tools))
	for _, t := range tools {
		out = append(out, wire{Name: t.GetName(), Description: t.GetDescription(), Parameters: t.GetParameters()})
	}
	return json.Marshal(out)
}

// ToolDefinitionLike decouples this package from entity.ToolDefinition's
// concrete shape so it can canonicalize any source of tool metadata.
type ToolDefinitionLike interface {
	GetName() string
	GetDescription() string
	GetParameters() map[string]interface{}
}
