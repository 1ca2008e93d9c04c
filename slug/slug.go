package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest slug Generate returns
const MaxLength = 100

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphenRuns   = regexp.MustCompile(`-+`)
)

// Generate creates a URL-safe article slug from a title
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = Fold(strings.ToLower(s))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}

	return s
}

// GenerateWithFallback generates a slug, falling back to a default if the input produces an empty slug
func GenerateWithFallback(s, fallback string) string {
	if slug := Generate(s); slug != "" {
		return slug
	}
	return Generate(fallback)
}

// Fold strips diacritics so "Pokémon" becomes "Pokemon".
// Characters without an ASCII base form are left untouched.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// MakeUnique appends a counter to a slug; counter 0 returns the slug unchanged
func MakeUnique(slug string, counter int) string {
	if counter <= 0 {
		return slug
	}
	return slug + "-" + strconv.Itoa(counter)
}

// Unique returns the first variant of base that taken reports as free.
// taken is consulted with base, base-1, base-2, ... in order.
func Unique(base string, taken func(string) (bool, error)) (string, error) {
	for counter := 0; ; counter++ {
		candidate := MakeUnique(base, counter)
		used, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !used {
			return candidate, nil
		}
	}
}
