// Package dedup decides, for every extracted candidate event, whether it is
// new, an enrichment of an already stored event, or a duplicate to discard.
package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// prefixMatchLength is the shared-prefix rule length: two titles of at
// least this many normalized characters with an identical prefix of this
// length are treated as the same event.
const prefixMatchLength = 30

// Normalize canonicalizes an event title for comparison: Unicode NFKC
// normalization, lowercasing, punctuation and symbol stripping, whitespace
// collapse. Idempotent.
func Normalize(title string) string {
	t := norm.NFKC.String(title)
	t = strings.ToLower(t)

	var b strings.Builder
	b.Grow(len(t))
	lastSpace := true
	for _, r := range t {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// TitlesMatch applies the three-tier similarity rule to two normalized
// titles: exact equality, containment, or an identical prefix of
// prefixMatchLength characters when both titles are at least that long.
//
// Containment and prefix matching exist because extractions of the same
// event from different sources frequently differ only in trailing
// qualifiers ("Concert: Artist Name" vs. "Artist Name — Live"); exact
// matching alone under-deduplicates.
func TitlesMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) >= prefixMatchLength && len(rb) >= prefixMatchLength {
		return string(ra[:prefixMatchLength]) == string(rb[:prefixMatchLength])
	}
	return false
}

// ExactMatch reports whether two normalized titles are identical.
func ExactMatch(a, b string) bool {
	return a != "" && a == b
}
