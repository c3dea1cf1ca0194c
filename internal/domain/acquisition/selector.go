// Package acquisition selects, once per request, which of the three
// response-acquisition layers will serve it. This selector makes ONE
// eligibility-based choice at submission time; a layer that fails after
// being selected escalates to the streaming controller's error path
// instead of transparently retrying through a lower layer — the fallback
// here is deliberately not transparent.
package acquisition

import "context"

// Layer identifies one of the three acquisition strategies.
type Layer string

const (
	LayerWireIntercept Layer = "wire_intercept" // Layer 1: MITM-captured network body
	LayerHelperEndpoint Layer = "helper_endpoint" // Layer 2: companion HTTP+SSE endpoint
	LayerDOMScrape Layer = "dom_scrape" // Layer 3: polling + final-text read
)

// Eligibility reports whether a layer is currently usable, independent of
// whether it will be chosen.
type Eligibility struct {
	Layer Layer
	Eligible bool
	Reason string // set when Eligible is false
}

// EligibilityChecker is implemented per layer by the infrastructure that
// knows how to test it (cert trust + proxy health for Layer 1, circuit
// breaker + reachability for Layer 2, session readiness for Layer 3).
type EligibilityChecker interface {
	Layer() Layer
	CheckEligible(ctx context.Context) Eligibility
}

// Selector holds the ordered list of checkers (most-preferred first) and
// picks the first eligible layer.
type Selector struct {
	checkers []EligibilityChecker
}

// NewSelector builds a selector trying layers in the given order. Callers
// should pass wire-intercept, then helper-endpoint, then DOM-scrape: DOM
// scraping is the fallback of last resort — it is the slowest and carries
// the highest breakage risk against upstream markup changes.
func NewSelector(checkers ...EligibilityChecker) *Selector {
	return &Selector{checkers: checkers}
}

// Select returns the first eligible layer and the full eligibility report
// for every layer (useful for diagnostics/the admin surface).
func (s *Selector) Select(ctx context.Context) (chosen Layer, report []Eligibility, ok bool) {
	for _, c := range s.checkers {
		e := c.CheckEligible(ctx)
		report = append(report, e)
		if e.Eligible && !ok {
			chosen = e.Layer
			ok = true
		}
	}
	return
}
