package linker

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/docutag/linker/models"
	"github.com/docutag/linker/slug"
)

// MinKeywordLength is the shortest word kept as a keyword
const MinKeywordLength = 4

// stopWords are dropped from titles and bodies. Words shorter than
// MinKeywordLength never reach this check, so only longer fillers matter.
var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "also": {}, "been": {}, "before": {},
	"being": {}, "best": {}, "both": {}, "could": {}, "does": {}, "doing": {},
	"each": {}, "even": {}, "every": {}, "from": {}, "have": {}, "having": {},
	"here": {}, "into": {}, "just": {}, "like": {}, "made": {}, "make": {},
	"many": {}, "more": {}, "most": {}, "much": {}, "must": {}, "only": {},
	"other": {}, "over": {}, "should": {}, "some": {}, "such": {}, "than": {},
	"that": {}, "their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "through": {}, "under": {}, "until": {},
	"very": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "will": {}, "with": {}, "within": {}, "without": {}, "would": {},
	"your": {}, "yours": {}, "because": {}, "though": {}, "although": {},
	"game": {}, "games": {}, "play": {}, "plays": {}, "played": {}, "playing": {},
	"gaming": {}, "gamer": {}, "gamers": {}, "player": {}, "players": {},
}

// IsStopWord reports whether w is excluded from keyword sets
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// normalizeText folds diacritics, lowercases and keeps only [a-z0-9] and spaces.
// Any other character is removed, so "dragon-quest" becomes "dragonquest".
func normalizeText(s string) string {
	s = strings.ToLower(slug.Fold(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
}

// keywordTokens returns the filtered words of s in order, duplicates included
func keywordTokens(s string) []string {
	words := strings.Fields(normalizeText(s))
	out := words[:0]
	for _, w := range words {
		if len(w) < MinKeywordLength || IsStopWord(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TitleKeywords returns the distinct keywords of a title in first-seen order
func TitleKeywords(title string) []string {
	return dedupe(keywordTokens(title))
}

// ContentKeywords returns the limit most frequent keywords of an HTML body.
// Ties keep first-seen order. A limit <= 0 uses DefaultContentKeywordLimit.
func ContentKeywords(body string, limit int) []string {
	stats := ContentKeywordStats(body, limit)
	words := make([]string, len(stats))
	for i, kw := range stats {
		words[i] = kw.Text
	}
	return words
}

// ContentKeywordStats is ContentKeywords with the frequencies attached
func ContentKeywordStats(body string, limit int) []models.Keyword {
	if limit <= 0 {
		limit = DefaultContentKeywordLimit
	}

	freq := make(map[string]int)
	var order []string
	for _, w := range keywordTokens(htmlText(body)) {
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}

	keywords := make([]models.Keyword, len(order))
	for i, w := range order {
		keywords[i] = models.Keyword{Text: w, Frequency: freq[w]}
	}
	return keywords
}

// CombinedKeywords returns title keywords followed by content keywords, deduplicated
func CombinedKeywords(title, body string, contentLimit int) []string {
	combined := append(TitleKeywords(title), ContentKeywords(body, contentLimit)...)
	return dedupe(combined)
}

func dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// htmlText returns the text content of an HTML fragment with every tag
// replaced by a single space. Entities are decoded and script/style
// content is dropped, so markup never leaks into the keyword set.
func htmlText(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var b strings.Builder
	raw := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if raw == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTextElement(string(name)) {
				raw++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTextElement(string(name)) && raw > 0 {
				raw--
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(' ')
		}
	}
}

func isRawTextElement(name string) bool {
	return name == "script" || name == "style"
}
