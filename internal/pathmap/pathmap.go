// Package pathmap maps URLs to canonical local output paths.
//
// Both mapping functions are pure: the same URL always yields the same
// path, across invocations and across processes. Link rewriting and
// resumability depend on this.
package pathmap

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/site-mirror/sitemirror/internal/config"
)

var pageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/pages/(\d+)`),
	regexp.MustCompile(`pageId=(\d+)`),
	regexp.MustCompile(`/content/(\d+)`),
	regexp.MustCompile(`/(\d{6,})`),
}

var reservedChars = regexp.MustCompile(`[<>:"|?*]`)

// Mapper computes local paths for a configured output layout.
type Mapper struct {
	outputDir string
	space     string
	format    config.OutputFormat
}

// New creates a Mapper.
func New(outputDir, space string, format config.OutputFormat) *Mapper {
	return &Mapper{outputDir: outputDir, space: space, format: format}
}

// Ext returns the artifact extension for the configured output format.
func (m *Mapper) Ext() string {
	if m.format == config.FormatHTML {
		return ".html"
	}
	return ".md"
}

// NumericPageID extracts a numeric page id from a URL, trying the id
// patterns in order. The second return value is false when none match.
func NumericPageID(rawURL string) (string, bool) {
	for _, re := range pageIDPatterns {
		if match := re.FindStringSubmatch(rawURL); match != nil {
			return match[1], true
		}
	}
	return "", false
}

// PageID extracts a stable page identifier from a URL. Numeric id
// patterns are tried first, then the last non-empty path segment, then
// a short URL hash.
func PageID(rawURL string) string {
	if id, ok := NumericPageID(rawURL); ok {
		return id
	}

	if u, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(u.Path, "/")
		for i := len(segments) - 1; i >= 0; i-- {
			if segments[i] != "" {
				if unescaped, err := url.PathUnescape(segments[i]); err == nil {
					return unescaped
				}
				return segments[i]
			}
		}
	}

	sum := md5.Sum([]byte(rawURL))
	return "page_" + hex.EncodeToString(sum[:])[:10]
}

// PagePath returns the page artifact location in the wiki layout:
// <output_dir>/spaces/<space>/pages/<page_id>/index.<ext>.
func (m *Mapper) PagePath(rawURL string) string {
	return path.Join(m.outputDir, "spaces", m.space, "pages", PageID(rawURL), "index"+m.Ext())
}

// PageDir returns the directory holding a page's artifacts.
func (m *Mapper) PageDir(rawURL string) string {
	return path.Join(m.outputDir, "spaces", m.space, "pages", PageID(rawURL))
}

// AttachmentsDir returns a page's attachments directory.
func (m *Mapper) AttachmentsDir(pageID string) string {
	return path.Join(m.outputDir, "spaces", m.space, "pages", pageID, "attachments")
}

// GenericPath maps a URL onto the generic HTML-mode layout: the URL path
// after known site prefixes, with an index file appended for
// directory-like paths and reserved filesystem characters replaced.
func (m *Mapper) GenericPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	p := ""
	if err == nil {
		p = u.Path
	}

	for _, prefix := range []string{"/wiki/", "/docs/", "/help/"} {
		if strings.HasPrefix(p, prefix) {
			p = p[len(prefix):]
			break
		}
	}

	if p == "" || p == "/" {
		p = "index"
	}

	ext := m.Ext()
	switch {
	case strings.HasSuffix(p, "/"):
		p += "index" + ext
	case !strings.HasSuffix(p, ".html") && !strings.HasSuffix(p, ".md"):
		p += ext
	}

	p = reservedChars.ReplaceAllString(p, "_")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	p = strings.TrimPrefix(p, "/")

	return path.Join(m.outputDir, p)
}

// SanitizeFilename makes an attachment title filesystem-safe: spaces
// become underscores, reserved characters are stripped, and overlong
// names are truncated with the extension preserved.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, name)

	if len(name) > 200 {
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if len(base) > 190 {
			base = base[:190]
		}
		name = base + ext
	}

	if name == "" {
		return "attachment"
	}
	return name
}
