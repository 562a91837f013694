package grounding

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Verification scans generated text for numeric tokens and requires each to
// match a payload value. Small integers pass unchecked: section numbers, lag
// indices, minute/hour counts and similar structural numbers would otherwise
// drown the check in false alarms. Percentages are never whitelisted; an
// invented percentage is exactly the failure mode grounding exists to catch.

const (
	// Plain integers with absolute value at or below this skip verification
	integerWhitelist = 100
	// Calendar years skip verification; dates are text facts
	yearMin = 1900
	yearMax = 2100
)

var numberPattern = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?(?:[eE][-+]?\d+)?%?`)

type numberToken struct {
	raw     string
	value   float64
	percent bool
	integer bool
}

// extractNumbers pulls every numeric token from the text, normalizing
// thousands separators and percent suffixes
func extractNumbers(text string) []numberToken {
	matches := numberPattern.FindAllString(text, -1)
	tokens := make([]numberToken, 0, len(matches))
	for _, raw := range matches {
		cleaned := raw
		percent := strings.HasSuffix(cleaned, "%")
		if percent {
			cleaned = strings.TrimSuffix(cleaned, "%")
		}
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		v, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		tokens = append(tokens, numberToken{
			raw:     raw,
			value:   v,
			percent: percent,
			integer: !strings.ContainsAny(cleaned, ".eE"),
		})
	}
	return tokens
}

// whitelisted reports whether a token is structural rather than a claim:
// a bare small integer or a calendar year. Percent-suffixed tokens are
// always claims.
func whitelisted(t numberToken) bool {
	if t.percent || !t.integer {
		return false
	}
	abs := math.Abs(t.value)
	if abs <= integerWhitelist {
		return true
	}
	// Ranges like 2024-2025 surface the second year with a leading minus
	return abs >= yearMin && abs <= yearMax
}

// matches reports whether the token agrees with the payload value within the
// relative tolerance. Near-zero payload values compare with an absolute
// floor of the tolerance itself, since a relative band around zero is empty.
func matches(token, value, tolerance float64) bool {
	limit := tolerance * math.Max(math.Abs(value), 1)
	return math.Abs(token-value) <= limit
}

// Verify checks every numeric token in the text against the payload within
// the relative tolerance and returns one message per unverifiable token.
// A percent token additionally matches the hundredfold of a payload
// fraction, so a weight of 0.42 backs a claim of "42%".
func Verify(text string, payload *Payload, tolerance float64) []string {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	values := payload.Numbers()

	var mismatches []string
	for _, token := range extractNumbers(text) {
		if whitelisted(token) {
			continue
		}
		ok := false
		for _, v := range values {
			if matches(token.value, v, tolerance) {
				ok = true
				break
			}
			if token.percent && matches(token.value, v*100, tolerance) {
				ok = true
				break
			}
		}
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("number %q not backed by any payload fact", token.raw))
		}
	}
	return mismatches
}
