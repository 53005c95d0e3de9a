// Package slug turns display names into URL-safe identifiers.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength caps generated slugs.
const MaxLength = 255

var (
	invalidChars = regexp.MustCompile(`[^\w\s-]`)
	separators   = regexp.MustCompile(`[-\s]+`)
	valid        = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// Make converts s to a lowercase ASCII slug: accents are folded
// ("Café" → "cafe"), characters other than letters, digits, underscores and
// hyphens are dropped, and whitespace runs become a single hyphen.
// Leading and trailing hyphens and underscores are trimmed.
func Make(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	ascii := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)

	out := invalidChars.ReplaceAllString(strings.ToLower(ascii), "")
	out = separators.ReplaceAllString(strings.TrimSpace(out), "-")
	out = strings.Trim(out, "-_")

	if len(out) > MaxLength {
		out = strings.TrimRight(out[:MaxLength], "-_")
	}
	return out
}

// Valid reports whether s is a non-empty slug of lowercase letters, digits,
// underscores and hyphens.
func Valid(s string) bool {
	return len(s) <= MaxLength && valid.MatchString(s)
}
