package policy

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func compile(t *testing.T, patterns ...string) []*regexp.Regexp {
	t.Helper()
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile(p))
	}
	return res
}

func TestShouldDownload(t *testing.T) {
	seen := map[string]struct{}{}
	pol := New("example.com", 2,
		compile(t, "/docs/"),
		compile(t, "/admin"),
		func(clean string) bool {
			_, ok := seen[clean]
			return ok
		})

	assert.True(t, pol.ShouldDownload("https://example.com/docs/a", 0))
	assert.False(t, pol.ShouldDownload("https://other.com/docs/a", 0), "wrong domain")
	assert.False(t, pol.ShouldDownload("https://example.com/admin/a", 0), "excluded")
	assert.False(t, pol.ShouldDownload("https://example.com/marketing/a", 0), "no valid pattern match")
	assert.False(t, pol.ShouldDownload("https://example.com/docs/a", 3), "past max depth")

	seen["https://example.com/docs/a"] = struct{}{}
	assert.False(t, pol.ShouldDownload("https://example.com/docs/a", 0), "already known")
}

func TestShouldDownloadNoPatterns(t *testing.T) {
	pol := New("", 5, nil, nil, nil)
	assert.True(t, pol.ShouldDownload("https://anything.net/whatever", 5))
	assert.False(t, pol.ShouldDownload("https://anything.net/whatever", 6))
}

func TestSubdomainWithinBaseDomain(t *testing.T) {
	pol := New("example.com", 2, nil, nil, nil)
	assert.True(t, pol.ShouldDownload("https://docs.example.com/a", 0))
}

func TestMatchesIgnoresSeen(t *testing.T) {
	pol := New("example.com", 2, nil, nil, func(string) bool { return true })

	// ShouldDownload refuses anything seen, but Matches (used for link
	// rewriting) still recognizes in-scope URLs.
	assert.False(t, pol.ShouldDownload("https://example.com/docs/a", 0))
	assert.True(t, pol.Matches("https://example.com/docs/a"))
}
