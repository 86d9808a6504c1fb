package wikiapi

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/site-mirror/sitemirror/internal/wikimeta"
)

// optionalQuery matches a trailing query string glued to a URL inside
// an HTML attribute.
const optionalQuery = `(?:\?[^"'\s>]*)?`

// RewriteAttachmentURLs replaces every variant of each attachment's
// download URL with the relative local reference. Five variants occur
// in practice: the absolute URL, the /wiki-prefixed path, the path
// without /wiki, the path without a leading slash, and thumbnail URLs
// carrying only the bare filename. Artifact idempotence depends on this
// exact replacement set.
func RewriteAttachmentURLs(htmlBody string, attachments []wikimeta.Attachment) string {
	if len(attachments) == 0 {
		return htmlBody
	}

	for _, att := range attachments {
		if att.DownloadURL == "" || att.LocalPath == "" {
			continue
		}
		localRef := "attachments/" + path.Base(att.LocalPath)

		cleanPath := att.DownloadURL
		if u, err := url.Parse(att.DownloadURL); err == nil {
			cleanPath = u.Path
		}
		cleanPath = strings.SplitN(cleanPath, "?", 2)[0]

		absoluteURL := strings.SplitN(att.DownloadURL, "?", 2)[0]

		wikiPath := cleanPath
		if !strings.HasPrefix(wikiPath, "/wiki") {
			wikiPath = "/wiki" + cleanPath
		}

		plainPath := cleanPath
		if strings.HasPrefix(plainPath, "/wiki") {
			plainPath = plainPath[5:]
		}
		if !strings.HasPrefix(plainPath, "/") {
			plainPath = "/" + plainPath
		}

		plainNoSlash := strings.TrimLeft(plainPath, "/")
		fileName := cleanPath[strings.LastIndex(cleanPath, "/")+1:]

		patterns := []string{
			regexp.QuoteMeta(absoluteURL) + optionalQuery,
			regexp.QuoteMeta(wikiPath) + optionalQuery,
			regexp.QuoteMeta(plainPath) + optionalQuery,
			regexp.QuoteMeta(plainNoSlash) + optionalQuery,
			`https?://[^"'\s]+/wiki/download/thumbnails/[^"'\s]*/` + regexp.QuoteMeta(fileName) + optionalQuery,
			`/wiki/download/thumbnails/[^"'\s]*/` + regexp.QuoteMeta(fileName) + optionalQuery,
		}

		for _, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			htmlBody = re.ReplaceAllString(htmlBody, localRef)
		}
	}

	return htmlBody
}
