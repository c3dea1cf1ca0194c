package functioncall

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewCallID generates an OpenAI-shaped tool-call identifier: "call_" plus
// 24 lowercase hex characters (12 random bytes).
func NewCallID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable process state, not a
		// request-level error; the call-ID is load-bearing for tool-call
		// correlation so we do not silently degrade to a weaker source.
		panic(fmt.Sprintf("functioncall: crypto/rand unavailable: %v", err))
	}
	return "call_" + hex.EncodeToString(buf)
}
