package acquisition

import (
	"strings"

	apperr "github.com/ngoclaw/ngoclaw/gateway/pkg/errors"
)

// quotaMarkers and rateLimitMarkers are the characteristic substrings
// Google AI Studio's wire responses and DOM error toasts carry when a
// profile has exhausted its quota or tripped a rate limit. Matching is
// case-insensitive and substring-based: every layer hands this whatever
// text it already has (response body, DOM final text) rather than parsing
// a structured error shape that differs per layer.
var quotaMarkers = []string{
	"resource_exhausted",
	"quota exceeded",
	"quota_exceeded",
	"you have exceeded your current quota",
}

var rateLimitMarkers = []string{
	"rate limit exceeded",
	"rate_limit_exceeded",
	"too many requests",
	"please wait before sending another message",
}

// detectQuotaOrRateLimit scans text for the markers above, returning nil
// when it carries no such signal. Quota takes precedence over rate-limit
// when both happen to appear, since quota exhaustion is the more specific
// and longer-lived condition.
func detectQuotaOrRateLimit(text string) *apperr.AppError {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	for _, m := range quotaMarkers {
		if strings.Contains(lower, m) {
			return apperr.New(apperr.CodeQuotaExceeded, "upstream reported quota exhaustion for the current model")
		}
	}
	for _, m := range rateLimitMarkers {
		if strings.Contains(lower, m) {
			return apperr.New(apperr.CodeRateLimited, "upstream reported a rate limit")
		}
	}
	return nil
}
