package wikiapi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/site-mirror/sitemirror/internal/wikimeta"
)

func TestRewriteAttachmentURLVariants(t *testing.T) {
	attachments := []wikimeta.Attachment{{
		ID:          "999",
		Title:       "diagram.png",
		DownloadURL: "https://team.atlassian.net/wiki/download/attachments/556040223/diagram.png",
		LocalPath:   "spaces/AR/pages/556040223/attachments/999_diagram.png",
	}}

	html := strings.Join([]string{
		`<img src="https://team.atlassian.net/wiki/download/attachments/556040223/diagram.png?version=2&api=v2">`,
		`<img src="/wiki/download/attachments/556040223/diagram.png">`,
		`<a href="/download/attachments/556040223/diagram.png?x=1">file</a>`,
		`<img src="download/attachments/556040223/diagram.png">`,
		`<img src="https://team.atlassian.net/wiki/download/thumbnails/556040223/diagram.png?width=300">`,
		`<img src="/wiki/download/thumbnails/556040223/diagram.png">`,
	}, "\n")

	out := RewriteAttachmentURLs(html, attachments)

	// No occurrence of any variant survives.
	assert.NotContains(t, out, "download/attachments/556040223/diagram.png")
	assert.NotContains(t, out, "download/thumbnails/556040223/diagram.png")
	assert.NotContains(t, out, "team.atlassian.net")

	// Every reference points at the local copy.
	assert.Equal(t, 6, strings.Count(out, "attachments/999_diagram.png"))
}

func TestRewriteLeavesUnrelatedURLs(t *testing.T) {
	attachments := []wikimeta.Attachment{{
		ID:          "999",
		Title:       "diagram.png",
		DownloadURL: "https://host/wiki/download/attachments/1/diagram.png",
		LocalPath:   "spaces/AR/pages/1/attachments/999_diagram.png",
	}}

	html := `<a href="https://host/wiki/pages/2/other">other page</a><img src="https://cdn/other.png">`
	out := RewriteAttachmentURLs(html, attachments)
	assert.Equal(t, html, out)
}

func TestRewriteNoAttachments(t *testing.T) {
	html := `<img src="/wiki/download/attachments/1/a.png">`
	assert.Equal(t, html, RewriteAttachmentURLs(html, nil))
}

func TestRewriteIsIdempotent(t *testing.T) {
	attachments := []wikimeta.Attachment{{
		ID:          "7",
		Title:       "a.pdf",
		DownloadURL: "https://host/wiki/download/attachments/42/a.pdf",
		LocalPath:   "spaces/AR/pages/42/attachments/7_a.pdf",
	}}

	html := `<a href="/wiki/download/attachments/42/a.pdf?v=1">doc</a>`
	once := RewriteAttachmentURLs(html, attachments)
	twice := RewriteAttachmentURLs(once, attachments)
	assert.Equal(t, once, twice)
}
