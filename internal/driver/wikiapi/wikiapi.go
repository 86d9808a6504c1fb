// Package wikiapi implements the hosted-wiki site driver. Pages are
// acquired through the REST content API, which yields version and
// authorship metadata and page attachments on top of the rendered body.
package wikiapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/site-mirror/sitemirror/internal/config"
	"github.com/site-mirror/sitemirror/internal/creds"
	"github.com/site-mirror/sitemirror/internal/driver"
	"github.com/site-mirror/sitemirror/internal/pathmap"
	"github.com/site-mirror/sitemirror/internal/storage"
	"github.com/site-mirror/sitemirror/internal/wikimeta"
)

const contentExpand = "history.lastUpdated,version,body.view,body.storage,space,ancestors,children.page,metadata.labels"

var (
	spaceKeyPattern  = regexp.MustCompile(`/spaces/([^/]+)`)
	wikiPagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`/pages/`),
		regexp.MustCompile(`/display/`),
		regexp.MustCompile(`/viewpage\.action`),
		regexp.MustCompile(`/content/`),
	}
)

// Driver fetches pages through the wiki REST API.
type Driver struct {
	cfg    *config.Config
	creds  *creds.Credentials
	client *client
	mapper *pathmap.Mapper
	store  *storage.Store
	log    *zap.Logger

	saveJSON        bool
	saveYAML        bool
	saveAttachments bool
}

// New creates a wiki-API driver. Credentials must be valid; the
// orchestrator guarantees this before selecting API mode.
func New(cfg *config.Config, c *creds.Credentials, store *storage.Store, log *zap.Logger) (*Driver, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("wiki API credentials are not configured")
	}

	return &Driver{
		cfg:             cfg,
		creds:           c,
		client:          newClient(c),
		mapper:          pathmap.New(cfg.Output.OutputDir, cfg.Crawling.SpaceName, cfg.Output.Format),
		store:           store,
		log:             log,
		saveJSON:        cfg.Output.ConfluenceOutput.SaveAPIResponse,
		saveYAML:        cfg.Output.ConfluenceOutput.SaveMetadataYML,
		saveAttachments: cfg.Output.ConfluenceOutput.SaveAttachments,
	}, nil
}

// PathFor returns the local artifact path a URL maps to.
func (d *Driver) PathFor(cleanURL string) string {
	return d.mapper.PagePath(cleanURL)
}

// Fetch retrieves a page (or expands a space index) via the API.
func (d *Driver) Fetch(ctx context.Context, cleanURL string, depth int) (*driver.Outcome, error) {
	if d.isSpaceIndexURL(cleanURL) {
		return d.fetchSpacePages(ctx, cleanURL)
	}

	pageID, ok := pathmap.NumericPageID(cleanURL)
	if !ok {
		pageID, ok = d.resolvePageIDByTitle(ctx, cleanURL)
		if !ok {
			return nil, driver.Errf(driver.KindParse, "could not extract page id from URL: %s", cleanURL)
		}
	}

	var content apiContent
	raw, err := d.client.getJSON(ctx, d.client.contentURL(pageID), &content)
	if err != nil {
		return nil, err
	}

	meta := extractMetadata(&content, cleanURL)
	meta.ContentCharCount, meta.HasTables = wikimeta.ContentStats(content.Body.View.Value)

	var attachments []wikimeta.Attachment
	if d.saveAttachments {
		attachments = d.fetchAttachments(ctx, pageID)
	}

	links := d.extractLinks(&content, content.Body.View.Value)

	return &driver.Outcome{
		Body:        content.Body.View.Value,
		StorageBody: content.Body.Storage.Value,
		Metadata:    meta,
		Attachments: attachments,
		Links:       links,
		PageID:      pageID,
		RawPayload:  raw,
	}, nil
}

var spaceIndexTail = regexp.MustCompile(`/spaces/[^/]+/?$`)

// isSpaceIndexURL matches /spaces/<KEY> with an /overview suffix or an
// empty path tail.
func (d *Driver) isSpaceIndexURL(rawURL string) bool {
	if !strings.Contains(rawURL, "/spaces/") {
		return false
	}
	if strings.Contains(rawURL, "/overview") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return spaceIndexTail.MatchString(u.Path)
}

// fetchSpacePages lists every page in a space through paginated CQL
// search and returns them as a fan-out index. The index itself is never
// persisted.
func (d *Driver) fetchSpacePages(ctx context.Context, rawURL string) (*driver.Outcome, error) {
	match := spaceKeyPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return nil, driver.Errf(driver.KindParse, "could not extract space key from URL: %s", rawURL)
	}
	spaceKey := match[1]
	d.log.Info("expanding space", zap.String("space", spaceKey))

	var links []string
	seen := make(map[string]struct{})
	start := 0
	for {
		cql := fmt.Sprintf("type=page AND space=%s", spaceKey)
		var page apiSearchResponse
		if _, err := d.client.getJSON(ctx, d.client.searchURL(cql, searchPageSize, start, "_links.webui"), &page); err != nil {
			return nil, err
		}
		if len(page.Results) == 0 {
			break
		}

		for _, result := range page.Results {
			pageURL := d.client.absoluteURL(result.Links.WebUI)
			if pageURL == "" {
				continue
			}
			if _, dup := seen[pageURL]; dup {
				continue
			}
			seen[pageURL] = struct{}{}
			links = append(links, pageURL)
		}

		start += searchPageSize
		if start >= page.TotalSize {
			break
		}
	}

	d.log.Info("space expanded", zap.String("space", spaceKey), zap.Int("pages", len(links)))

	return &driver.Outcome{
		IsIndex: true,
		Links:   links,
		PageID:  "space-" + spaceKey,
		Metadata: &wikimeta.PageMetadata{
			ID:       "space-" + spaceKey,
			Type:     "space",
			Title:    "Space: " + spaceKey,
			SpaceKey: spaceKey,
		},
	}, nil
}

// resolvePageIDByTitle is the last-resort page id lookup: a CQL title
// search on the URL's last path segment.
func (d *Driver) resolvePageIDByTitle(ctx context.Context, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	title := lastSegment(u.Path)
	if title == "" {
		return "", false
	}
	if unescaped, err := url.PathUnescape(title); err == nil {
		title = unescaped
	}

	cql := fmt.Sprintf(`title~"%s" AND type=page`, title)
	var result apiSearchResponse
	if _, err := d.client.getJSON(ctx, d.client.searchURL(cql, 1, 0, ""), &result); err != nil {
		d.log.Warn("title search failed", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}
	if len(result.Results) == 0 || result.Results[0].ID == "" {
		return "", false
	}
	return result.Results[0].ID, true
}

// fetchAttachments lists and downloads all attachments of a page,
// following list pagination. Individual download failures drop the
// attachment; a 404 is tolerated silently because pages commonly
// reference deleted attachments.
func (d *Driver) fetchAttachments(ctx context.Context, pageID string) []wikimeta.Attachment {
	var attachments []wikimeta.Attachment

	next := fmt.Sprintf("%s/content/%s/child/attachment?limit=%d&expand=version,metadata,extensions",
		d.client.apiBase, pageID, attachmentPerPage)

	for next != "" {
		var list apiAttachmentList
		if _, err := d.client.getJSON(ctx, next, &list); err != nil {
			d.log.Warn("failed to list attachments", zap.String("page_id", pageID), zap.Error(err))
			break
		}

		for i := range list.Results {
			if att, ok := d.processAttachment(ctx, &list.Results[i], pageID); ok {
				attachments = append(attachments, att)
			}
		}

		if link := list.Links.Next; link != "" {
			if strings.HasPrefix(link, "http") {
				next = link
			} else {
				next = strings.TrimRight(d.creds.BaseURL, "/") + link
			}
		} else {
			next = ""
		}
	}

	return attachments
}

func (d *Driver) processAttachment(ctx context.Context, att *apiAttachment, pageID string) (wikimeta.Attachment, bool) {
	if att.Links.Download == "" {
		return wikimeta.Attachment{}, false
	}
	downloadURL := d.client.absoluteURL(att.Links.Download)

	safeTitle := pathmap.SanitizeFilename(att.Title)
	localFilename := att.ID + "_" + safeTitle

	attachmentsDir := d.mapper.AttachmentsDir(pageID)
	if err := os.MkdirAll(attachmentsDir, 0o755); err != nil {
		d.log.Warn("failed to create attachments dir", zap.String("dir", attachmentsDir), zap.Error(err))
		return wikimeta.Attachment{}, false
	}
	localPath := path.Join(attachmentsDir, localFilename)

	file, err := os.Create(localPath)
	if err != nil {
		d.log.Warn("failed to create attachment file", zap.String("path", localPath), zap.Error(err))
		return wikimeta.Attachment{}, false
	}

	size, err := d.client.download(ctx, downloadURL, file)
	file.Close()
	if err != nil {
		os.Remove(localPath)
		var fetchErr *driver.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Kind == driver.KindNotFound {
			// Deleted attachments are still referenced by old pages.
			return wikimeta.Attachment{}, false
		}
		d.log.Warn("failed to download attachment",
			zap.String("title", att.Title), zap.Error(err))
		return wikimeta.Attachment{}, false
	}

	mediaType := att.Metadata.MediaType
	if mediaType == "" {
		mediaType = att.Extensions.MediaType
	}
	created := att.Created
	if created == "" {
		created = att.Metadata.Created
	}
	createdBy := att.Creator.DisplayName
	if createdBy == "" {
		createdBy = att.Metadata.Creator.DisplayName
	}
	comment := att.Metadata.Comment
	if comment == "" {
		comment = att.Extensions.Comment
	}

	relPath, err := filepath.Rel(d.cfg.Output.OutputDir, localPath)
	if err != nil {
		relPath = localPath
	}

	return wikimeta.Attachment{
		ID:            att.ID,
		Title:         att.Title,
		MediaType:     mediaType,
		FileSize:      att.Extensions.FileSize,
		FileSizeLocal: size,
		Version:       att.Version.Number,
		CreatedWhen:   created,
		CreatedBy:     createdBy,
		Comment:       comment,
		DownloadURL:   downloadURL,
		LocalPath:     filepath.ToSlash(relPath),
	}, true
}

// extractLinks unions page links found in the rendered body with child
// page links from the API response.
func (d *Driver) extractLinks(content *apiContent, htmlBody string) []string {
	seen := make(map[string]struct{})
	var links []string

	add := func(link string) {
		if link == "" || !d.linkValid(link) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	if htmlBody != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody)); err == nil {
			base := strings.TrimRight(d.creds.BaseURL, "/")
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, _ := sel.Attr("href")
				var full string
				switch {
				case strings.HasPrefix(href, "/"):
					full = base + href
				case strings.HasPrefix(href, "http"):
					full = href
				default:
					return
				}
				if isWikiPageURL(full) {
					add(full)
				}
			})
		}
	}

	for _, child := range content.Children.Page.Results {
		add(d.client.absoluteURL(child.Links.WebUI))
	}

	return links
}

// linkValid applies the domain and exclude filters. Valid-URL patterns
// are left to the engine-side admission check.
func (d *Driver) linkValid(link string) bool {
	if domain := d.cfg.Website.BaseDomain; domain != "" && !strings.Contains(link, domain) {
		return false
	}
	for _, re := range d.cfg.ExcludeRegexps() {
		if re.MatchString(link) {
			return false
		}
	}
	return true
}

func isWikiPageURL(rawURL string) bool {
	for _, re := range wikiPagePatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Save writes the per-page artifacts: rewritten HTML, optional
// Markdown, the raw API payload, the YAML metadata document, and the
// store-side metadata rows. Space indexes are a no-op.
func (d *Driver) Save(cleanURL string, outcome *driver.Outcome, localPath string) error {
	if outcome.IsIndex {
		return nil
	}

	pageDir := filepath.Dir(localPath)
	if err := os.MkdirAll(pageDir, 0o755); err != nil {
		return fmt.Errorf("failed to create page dir: %w", err)
	}

	htmlBody := RewriteAttachmentURLs(outcome.Body, outcome.Attachments)

	htmlPath := filepath.Join(pageDir, "index.html")
	if err := os.WriteFile(htmlPath, []byte(htmlBody), 0o644); err != nil {
		return fmt.Errorf("failed to write html artifact: %w", err)
	}

	var mdRel *string
	if d.cfg.Output.Format == config.FormatMarkdown {
		markdown, err := d.renderMarkdown(htmlBody, outcome.Metadata)
		if err != nil {
			return fmt.Errorf("failed to convert markdown: %w", err)
		}
		mdPath := filepath.Join(pageDir, "index.md")
		if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write markdown artifact: %w", err)
		}
		rel := path.Join(filepath.Base(pageDir), "index.md")
		mdRel = &rel
	}

	var jsonRel *string
	if d.saveJSON && len(outcome.RawPayload) > 0 {
		jsonPath := filepath.Join(pageDir, "index.json")
		if err := os.WriteFile(jsonPath, outcome.RawPayload, 0o644); err != nil {
			return fmt.Errorf("failed to write json artifact: %w", err)
		}
		rel := path.Join(filepath.Base(pageDir), "index.json")
		jsonRel = &rel
	}

	if d.saveYAML && outcome.Metadata != nil {
		var attachmentsDir *string
		if len(outcome.Attachments) > 0 {
			dir := "attachments"
			attachmentsDir = &dir
		}
		paths := wikimeta.Paths{
			Base:           pageDir,
			HTML:           path.Join(filepath.Base(pageDir), "index.html"),
			Markdown:       mdRel,
			JSON:           jsonRel,
			Metadata:       path.Join(filepath.Base(pageDir), "index.yml"),
			AttachmentsDir: attachmentsDir,
		}
		yamlContent, err := wikimeta.GenerateYAML(outcome.Metadata, outcome.Attachments, paths, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(pageDir, "index.yml"), []byte(yamlContent), 0o644); err != nil {
			return fmt.Errorf("failed to write yaml artifact: %w", err)
		}
	}

	if outcome.Metadata != nil {
		derived := wikimeta.DeriveStats(outcome.Metadata, outcome.Attachments, time.Now().UTC())
		if err := d.store.SaveWikiMetadata(cleanURL, outcome.Metadata, derived); err != nil {
			return err
		}
		if err := d.store.SaveWikiAttachments(outcome.PageID, outcome.Attachments); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) renderMarkdown(htmlBody string, meta *wikimeta.PageMetadata) (string, error) {
	body, err := htmltomarkdown.ConvertString(htmlBody)
	if err != nil {
		return "", err
	}

	title, spaceKey, spaceName, pageID, updated := "Wiki Page", "N/A", "N/A", "N/A", "N/A"
	if meta != nil {
		if meta.Title != "" {
			title = meta.Title
		}
		if meta.SpaceKey != "" {
			spaceKey = meta.SpaceKey
		}
		if meta.SpaceName != "" {
			spaceName = meta.SpaceName
		}
		if meta.ID != "" {
			pageID = meta.ID
		}
		if meta.Updated.When != "" {
			updated = meta.Updated.When
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "**Space:** %s - %s\n\n", spaceKey, spaceName)
	fmt.Fprintf(&sb, "**Page ID:** %s\n\n", pageID)
	fmt.Fprintf(&sb, "**Last Updated:** %s\n\n", updated)
	sb.WriteString("---\n\n")
	sb.WriteString(body)
	return sb.String(), nil
}

func extractMetadata(content *apiContent, requestURL string) *wikimeta.PageMetadata {
	ari := content.ARI
	if ari == "" {
		ari = content.Expandable.ARI
	}

	return &wikimeta.PageMetadata{
		ID:        content.ID,
		ARI:       ari,
		Type:      content.Type,
		Status:    content.Status,
		Title:     content.Title,
		SpaceKey:  content.Space.Key,
		SpaceName: content.Space.Name,
		Version: wikimeta.Version{
			Number: content.Version.Number,
			When:   content.Version.When,
			By: wikimeta.Actor{
				DisplayName: content.Version.By.DisplayName,
				Email:       content.Version.By.Email,
				AccountID:   content.Version.By.AccountID,
			},
			Message:   content.Version.Message,
			MinorEdit: content.Version.MinorEdit,
		},
		Created: wikimeta.HistoryEntry{
			When: content.History.CreatedDate,
			By: wikimeta.Actor{
				DisplayName: content.History.CreatedBy.DisplayName,
				Email:       content.History.CreatedBy.Email,
				AccountID:   content.History.CreatedBy.AccountID,
			},
		},
		Updated: wikimeta.HistoryEntry{
			When: content.History.LastUpdated.When,
			By: wikimeta.Actor{
				DisplayName: content.History.LastUpdated.By.DisplayName,
				Email:       content.History.LastUpdated.By.Email,
				AccountID:   content.History.LastUpdated.By.AccountID,
			},
		},
		Links: wikimeta.Links{
			Web:  content.Links.WebUI,
			Rest: content.Links.Self,
			Tiny: content.Links.TinyUI,
		},
		RequestURL: requestURL,
		Endpoint:   "/content/" + content.ID,
		Query:      "expand=" + contentExpand,
	}
}

func lastSegment(p string) string {
	segments := strings.Split(strings.TrimRight(p, "/"), "/")
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}
