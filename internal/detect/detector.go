package detect

import (
	"net/http"
	"strings"
)

// Classification is the verdict for one fetched page.
type Classification int

const (
	// Normal means the page looks like regular content and can be
	// handed to extraction.
	Normal Classification = iota

	// Challenge means a soft block: the source wants proof of
	// humanity (CAPTCHA, "unusual traffic" interstitial) before it
	// serves content.
	Challenge

	// RateLimited means a hard block: HTTP 429 or an equivalent
	// "too many requests" response from the transport.
	RateLimited
)

// String returns the classification name for logs and fetch records.
func (c Classification) String() string {
	switch c {
	case Normal:
		return "normal"
	case Challenge:
		return "challenge"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// challengeKeywords are phrases that appear in challenge interstitials.
// Matching is case-insensitive against the whole page text.
var challengeKeywords = []string{
	"captcha",
	"unusual traffic",
	"verify you are human",
	"verify you're human",
	"automated queries",
	"not a robot",
}

// challengeMarkers are structural fragments of known challenge widgets.
// These catch pages that embed a widget without any of the phrases
// above surviving in the visible text.
var challengeMarkers = []string{
	"g-recaptcha",
	"grecaptcha.execute",
	"cf-challenge",
	"challenge-form",
	"gs_captcha",
}

// rateLimitSignals are transport-level error texts that mean the same
// thing as HTTP 429.
var rateLimitSignals = []string{
	"too many requests",
	"rate limit exceeded",
}

// Classify inspects page content and HTTP status and returns the block
// verdict. A 429 status always wins; challenge detection only applies
// to non-429 responses.
func Classify(content string, status int) Classification {
	lower := strings.ToLower(content)

	if status == http.StatusTooManyRequests {
		return RateLimited
	}
	for _, signal := range rateLimitSignals {
		if strings.Contains(lower, signal) {
			return RateLimited
		}
	}

	for _, keyword := range challengeKeywords {
		if strings.Contains(lower, keyword) {
			return Challenge
		}
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return Challenge
		}
	}

	return Normal
}

// Blocked reports whether the classification requires mitigation.
func Blocked(c Classification) bool {
	return c != Normal
}
