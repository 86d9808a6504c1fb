package pathmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/site-mirror/sitemirror/internal/config"
)

func TestPageID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"pages segment", "https://host/wiki/spaces/AR/pages/556040223/My+Page", "556040223"},
		{"pageId query", "https://host/pages/viewpage.action?pageId=123456", "123456"},
		{"content segment", "https://host/rest/api/content/987654", "987654"},
		{"six digit path", "https://host/x/123456/y", "123456"},
		{"last segment fallback", "https://host/docs/getting-started", "getting-started"},
		{"escaped last segment", "https://host/docs/My%20Page", "My Page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageID(tt.url))
		})
	}
}

func TestPageIDHashFallback(t *testing.T) {
	id := PageID("https://host/")
	assert.True(t, strings.HasPrefix(id, "page_"))
	assert.Len(t, id, len("page_")+10)

	// Pure function: same URL, same id, every time.
	assert.Equal(t, id, PageID("https://host/"))
}

func TestPagePath(t *testing.T) {
	url := "https://host/wiki/spaces/AR/pages/556040223/My+Page"

	md := New("out", "AR", config.FormatMarkdown)
	assert.Equal(t, "out/spaces/AR/pages/556040223/index.md", md.PagePath(url))

	html := New("out", "AR", config.FormatHTML)
	assert.Equal(t, "out/spaces/AR/pages/556040223/index.html", html.PagePath(url))
}

func TestGenericPath(t *testing.T) {
	m := New("out", "AR", config.FormatHTML)

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"strips wiki prefix", "https://host/wiki/spaces/overview", "out/spaces/overview.html"},
		{"root becomes index", "https://host/", "out/index.html"},
		{"directory gets index", "https://host/docs/guide/", "out/guide/index.html"},
		{"existing html kept", "https://host/page.html", "out/page.html"},
		{"reserved chars replaced", "https://host/a%3Cb%3E", "out/a_b_.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.GenericPath(tt.url))
		})
	}
}

func TestGenericPathStable(t *testing.T) {
	m := New("out", "AR", config.FormatMarkdown)
	url := "https://host/docs/a"
	assert.Equal(t, m.GenericPath(url), m.GenericPath(url))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "My_Diagram.png", SanitizeFilename("My Diagram.png"))
	assert.Equal(t, "ab.png", SanitizeFilename(`a<>:"/\|?*b.png`))
	assert.Equal(t, "attachment", SanitizeFilename(""))
	assert.Equal(t, "attachment", SanitizeFilename(`<>:"`))

	long := strings.Repeat("x", 300) + ".png"
	sanitized := SanitizeFilename(long)
	assert.LessOrEqual(t, len(sanitized), 200)
	assert.True(t, strings.HasSuffix(sanitized, ".png"))
}
