// Package slug builds URL-safe city slugs.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SuffixLength is the number of trailing id characters used to disambiguate a colliding slug.
const SuffixLength = 6

// Make lowercases the joined parts, strips diacritics and collapses every run of
// non-alphanumeric characters into a single dash.
func Make(parts ...string) string {
	joined := strings.Join(parts, " ")

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, joined)
	if err != nil {
		folded = joined
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ForCity returns the base slug for a city name and optional region.
func ForCity(name, region string) string {
	return Make(name, region)
}

// WithIDSuffix appends the lowercased last SuffixLength characters of id to base.
func WithIDSuffix(base, id string) string {
	return withSuffix(base, strings.ToLower(lastN(strings.TrimSpace(id), SuffixLength)))
}

// Candidates lists the slugs to try in order for a city: base, base with the
// short and the doubled id suffix, then base with the whole id. The last
// candidate is unique as long as ids are.
func Candidates(base, id string) []string {
	id = strings.TrimSpace(id)
	candidates := []string{}
	if base != "" {
		candidates = append(candidates, base)
	}
	for _, n := range []int{SuffixLength, 2 * SuffixLength} {
		if n < len(id) {
			candidates = append(candidates, withSuffix(base, strings.ToLower(lastN(id, n))))
		}
	}
	return append(candidates, withSuffix(base, id))
}

func lastN(s string, n int) string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func withSuffix(base, suffix string) string {
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
