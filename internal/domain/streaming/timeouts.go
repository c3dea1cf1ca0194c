package streaming

import "time"

// DeriveTimeouts computes the effective TTFB/Silence budgets from the
// per-request total timeout, per invariant 9 (silence budget >= TTFB budget
// at all times): silence_budget = max(configured_silence, total/2), clamped
// up to at least the TTFB budget and down to a hard cap of 3x total.
//
// total is response_completion_timeout; ttfbConfigured/silenceConfigured are
// the static config knobs, each 0 meaning "not set, derive from total."
func DeriveTimeouts(total, ttfbConfigured, silenceConfigured time.Duration) (ttfb, silence time.Duration) {
	ttfb = ttfbConfigured
	if ttfb <= 0 {
		ttfb = total / 2
	}

	silence = silenceConfigured
	if floor := total / 2; floor > silence {
		silence = floor
	}
	if silence < ttfb {
		silence = ttfb
	}
	if cap := 3 * total; total > 0 && silence > cap {
		silence = cap
	}
	return ttfb, silence
}
