package linker

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/docutag/linker/models"
)

// LinkInserter rewrites a body to link to candidate articles. It performs no I/O.
type LinkInserter struct {
	MaxLinks   int    // newly inserted anchors per call
	PathPrefix string // href prefix, e.g. "/blog/"
}

// NewLinkInserter returns an inserter using the limits of config
func NewLinkInserter(config Config) *LinkInserter {
	config = config.withDefaults()
	return &LinkInserter{
		MaxLinks:   config.MaxLinks,
		PathPrefix: config.LinkPathPrefix,
	}
}

// Href returns the link target for an article slug
func (li *LinkInserter) Href(articleSlug string) string {
	return li.PathPrefix + articleSlug
}

// InsertLinks walks candidates in order and links each one at most once.
// For a candidate, its title keywords are tried in order and the first
// keyword with a whole-word match in linkable text wins; only that first
// occurrence is wrapped. Candidates equal to excludeID, drafts, and
// candidates already linked from the body are skipped. At most MaxLinks
// anchors are added. The inserted links are returned in insertion order.
func (li *LinkInserter) InsertLinks(body string, candidates []models.Article, excludeID int64) (string, []models.LinkCandidate) {
	maxLinks := li.MaxLinks
	if maxLinks <= 0 {
		maxLinks = DefaultMaxLinks
	}

	result := body
	var links []models.LinkCandidate

	for _, candidate := range candidates {
		if len(links) >= maxLinks {
			break
		}
		if excludeID != 0 && candidate.ID == excludeID {
			continue
		}
		if candidate.Status != models.StatusPublished || candidate.Slug == "" {
			continue
		}

		href := li.Href(candidate.Slug)
		if linksTo(result, href) {
			continue
		}

		for _, keyword := range TitleKeywords(candidate.Title) {
			start, end, ok := findLinkable(result, keyword)
			if !ok {
				continue
			}

			anchor := `<a href="` + html.EscapeString(href) + `" title="` + html.EscapeString(candidate.Title) + `">` +
				result[start:end] + `</a>`
			result = result[:start] + anchor + result[end:]
			links = append(links, models.LinkCandidate{Target: candidate, MatchedKeyword: keyword})
			break
		}
	}

	return result, links
}

// linksTo reports whether body already carries an anchor to href
func linksTo(body, href string) bool {
	escaped := html.EscapeString(href)
	return strings.Contains(body, `href="`+escaped+`"`) || strings.Contains(body, `href='`+escaped+`'`)
}

// findLinkable returns the first whole-word, case-insensitive occurrence of
// keyword that lies in linkable text.
func findLinkable(body, keyword string) (int, int, bool) {
	if keyword == "" {
		return 0, 0, false
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	if err != nil {
		return 0, 0, false
	}

	for _, span := range linkableSpans(body) {
		if loc := re.FindStringIndex(body[span[0]:span[1]]); loc != nil {
			return span[0] + loc[0], span[0] + loc[1], true
		}
	}
	return 0, 0, false
}

// guardedElements hold text that must never be linked
var guardedElements = map[string]bool{
	"a":      true,
	"script": true,
	"style":  true,
}

// linkableSpans scans body once and returns the [start, end) byte ranges of
// text that is outside every tag and outside a, script and style elements.
// A "<" not followed by a tag-like character is text. Markup that never
// closes makes the rest of the body unlinkable.
func linkableSpans(body string) [][2]int {
	var spans [][2]int
	start := 0
	guard := "" // element whose content is being skipped

	for i := 0; i < len(body); {
		if body[i] != '<' || !opensTag(body, i) {
			i++
			continue
		}

		if guard == "" && start < i {
			spans = append(spans, [2]int{start, i})
		}

		end := tagEnd(body, i)
		if end < 0 {
			return spans
		}

		// A trailing "/" does not close a, script or style, so start tags
		// always raise the guard.
		name, closing := parseTag(body[i+1 : end-1])
		switch {
		case guard == "" && !closing && guardedElements[name]:
			guard = name
		case guard != "" && closing && name == guard:
			guard = ""
		}

		i = end
		start = i
	}

	if guard == "" && start < len(body) {
		spans = append(spans, [2]int{start, len(body)})
	}
	return spans
}

// tagEnd returns the index just past the ">" closing the tag that starts at i,
// or -1. A quote opens an attribute value only right after "=", and a ">"
// inside a quoted value does not end the tag. If a quoted value never closes
// the tag ends at the first ">". Comments end at "-->".
func tagEnd(body string, i int) int {
	if strings.HasPrefix(body[i:], "<!--") {
		end := strings.Index(body[i+4:], "-->")
		if end < 0 {
			return -1
		}
		return i + 4 + end + 3
	}

	var quote byte
	valueStart := false
	for j := i + 1; j < len(body); j++ {
		c := body[j]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '>':
			return j + 1
		case '"', '\'':
			if valueStart {
				quote = c
			}
			valueStart = false
		case '=':
			valueStart = true
		case ' ', '\t', '\n', '\r', '\f':
			// whitespace may separate "=" from the value
		default:
			valueStart = false
		}
	}

	if gt := strings.IndexByte(body[i:], '>'); gt >= 0 {
		return i + gt + 1
	}
	return -1
}

func opensTag(body string, i int) bool {
	if i+1 >= len(body) {
		return false
	}
	c := body[i+1]
	return c == '/' || c == '!' || c == '?' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// parseTag reads the element name from the inside of a tag ("a href=...",
// "/a", "br/"). Comments and doctypes yield an empty name.
func parseTag(inner string) (name string, closing bool) {
	if strings.HasPrefix(inner, "/") {
		closing = true
		inner = inner[1:]
	}

	n := 0
	for n < len(inner) {
		c := inner[n]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			n++
			continue
		}
		break
	}
	return strings.ToLower(inner[:n]), closing
}
