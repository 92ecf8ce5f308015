// Package phone turns free-form phone text into directory lookup keys.
package phone

import "strings"

// DefaultCountryCode is the prefix added or stripped when building candidates.
const DefaultCountryCode = "55"

// Normalize strips every non-digit character. Empty input yields "".
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Candidates returns the lookup keys to try for an already normalized number,
// using DefaultCountryCode.
func Candidates(digits string) []string {
	return CandidatesFor(digits, DefaultCountryCode)
}

// CandidatesFor returns, in order and without duplicates: the digits as-is,
// the digits without the country code (if present), and the digits with the
// country code (if absent).
func CandidatesFor(digits, countryCode string) []string {
	if digits == "" {
		return nil
	}

	out := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	add(digits)
	if countryCode == "" {
		return out
	}
	if strings.HasPrefix(digits, countryCode) {
		add(strings.TrimPrefix(digits, countryCode))
	} else {
		add(countryCode + digits)
	}
	return out
}
