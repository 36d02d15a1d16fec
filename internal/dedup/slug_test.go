package dedup

import (
	"math"
	"testing"
)

func TestExtractSlug(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "segment after view marker",
			url:      "https://boards.greenhouse.io/company/view/senior-backend-engineer",
			expected: "senior-backend-engineer",
		},
		{
			name:     "segment after jobs marker",
			url:      "https://example.com/jobs/platform-engineer-remote",
			expected: "platform-engineer-remote",
		},
		{
			name:     "numeric id prefix stripped",
			url:      "https://example.com/jobs/4021337-remote-fullstack-engineer",
			expected: "remote-fullstack-engineer",
		},
		{
			name:     "hex id prefix stripped",
			url:      "https://example.com/j/deadbeef01-staff-sre",
			expected: "staff-sre",
		},
		{
			name:     "last segment when no marker",
			url:      "https://careers.example.com/openings/data-engineer",
			expected: "data-engineer",
		},
		{
			name:     "marker as final segment falls back to itself",
			url:      "https://example.com/jobs",
			expected: "jobs",
		},
		{
			name:     "uppercase normalized",
			url:      "https://example.com/jobs/Senior-Backend-Engineer",
			expected: "senior-backend-engineer",
		},
		{
			name:     "empty path",
			url:      "https://example.com",
			expected: "",
		},
		{
			name:     "query string ignored",
			url:      "https://example.com/jobs/ml-engineer?utm_source=feed",
			expected: "ml-engineer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSlug(tt.url); got != tt.expected {
				t.Errorf("ExtractSlug(%q) = %q, want %q", tt.url, got, tt.expected)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("senior-backend-engineer-at-co", 3)

	expected := []string{"senior", "backend", "engineer"}
	if len(tokens) != len(expected) {
		t.Errorf("Expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for _, tok := range expected {
		if _, ok := tokens[tok]; !ok {
			t.Errorf("Expected token %q in %v", tok, tokens)
		}
	}
	if _, ok := tokens["at"]; ok {
		t.Error("Token shorter than minLen should be dropped")
	}
}

func TestTokenize_EmptySlug(t *testing.T) {
	if tokens := Tokenize("", 3); len(tokens) != 0 {
		t.Errorf("Expected no tokens for empty slug, got %v", tokens)
	}
}

func TestJaccard(t *testing.T) {
	a := Tokenize("senior-backend-engineer", 3)
	b := Tokenize("senior-backend-engineer-remote", 3)

	// 3 shared tokens over 4 total
	if got := Jaccard(a, b); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Jaccard = %v, want 0.75", got)
	}

	if got := Jaccard(a, a); got != 1.0 {
		t.Errorf("Jaccard of identical sets = %v, want 1.0", got)
	}

	c := Tokenize("junior-data-analyst", 3)
	if got := Jaccard(a, c); got != 0 {
		t.Errorf("Jaccard of disjoint sets = %v, want 0", got)
	}
}

func TestJaccard_EmptySets(t *testing.T) {
	empty := map[string]struct{}{}
	full := Tokenize("backend-engineer", 3)

	if got := Jaccard(empty, empty); got != 0 {
		t.Errorf("Jaccard of two empty sets = %v, want 0", got)
	}
	if got := Jaccard(empty, full); got != 0 {
		t.Errorf("Jaccard with one empty set = %v, want 0", got)
	}
}
