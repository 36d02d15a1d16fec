// Package dedup clusters near-duplicate job postings so the same job
// re-posted under different URLs does not consume multiple submission slots.
package dedup

import (
	"net/url"
	"regexp"
	"strings"
)

// Path segments that mark "the next segment is the listing".
var listingMarkers = map[string]bool{
	"view":     true,
	"job":      true,
	"jobs":     true,
	"j":        true,
	"posting":  true,
	"postings": true,
}

// idPrefix matches a numeric or hex listing id glued to the front of a slug,
// e.g. "4021337-remote-fullstack-engineer".
var idPrefix = regexp.MustCompile(`^[0-9a-f]{6,}-|^\d+-`)

// nonWord splits slugs into tokens.
var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// ExtractSlug returns the human-readable path segment of a posting URL: the
// segment following the listing-id marker, with any id prefix stripped.
// Returns "" when the URL has no usable slug.
func ExtractSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segments := splitPath(u.Path)
	if len(segments) == 0 {
		return ""
	}

	slug := segments[len(segments)-1]
	for i, seg := range segments {
		if listingMarkers[strings.ToLower(seg)] && i+1 < len(segments) {
			slug = segments[i+1]
			break
		}
	}

	slug = strings.ToLower(slug)
	slug = idPrefix.ReplaceAllString(slug, "")
	return slug
}

// Tokenize splits a slug on non-word characters and discards tokens shorter
// than minLen. The returned set is what Jaccard similarity is computed over.
func Tokenize(slug string, minLen int) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range nonWord.Split(strings.ToLower(slug), -1) {
		if len(tok) >= minLen {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// Jaccard returns |a ∩ b| / |a ∪ b| over two token sets. Two empty sets have
// similarity 0, not 1, so slug-less links never cluster together.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
