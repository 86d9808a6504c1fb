// Package htmlsite implements the generic HTML site driver: pages are
// fetched over plain HTTP, links rewritten to their local targets, and
// the result saved as cleaned HTML or Markdown.
package htmlsite

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/site-mirror/sitemirror/internal/config"
	"github.com/site-mirror/sitemirror/internal/driver"
	"github.com/site-mirror/sitemirror/internal/pathmap"
	"github.com/site-mirror/sitemirror/internal/policy"
	"github.com/site-mirror/sitemirror/internal/storage"
	"github.com/site-mirror/sitemirror/internal/urlutil"
)

// Bodies shorter than this are treated as a login interstitial.
const authBodyMinBytes = 500

// defaultAuthMarkers are substrings whose presence in a 2xx body means
// the session is not authenticated.
var defaultAuthMarkers = []string{
	"Log in to continue",
	"login-form",
	"id=\"login\"",
	"atlassian-account",
}

// cdnImageHosts get their own subfolder inside the shared pool.
var cdnImageHosts = []string{
	"media-cdn.atlassian.com",
	"avatar-management--avatars.us-west-2.prod.public.atl-paas.net",
	"secure.gravatar.com",
}

// Driver is the generic HTML site driver.
type Driver struct {
	cfg    *config.Config
	mapper *pathmap.Mapper
	policy *policy.Policy
	store  *storage.Store
	log    *zap.Logger

	pageClient     *http.Client
	resourceClient *http.Client
	authMarkers    []string
	assetHosts     []string
	sharedDir      string

	// Per-resource dedup: reservation set plus the url -> local path
	// projection rebuilt from the store at startup.
	mu              sync.Mutex
	activeResources map[string]struct{}
	resourcePaths   map[string]string
}

// New creates an HTML driver. The cookie file is optional; a missing
// file is logged and crawling proceeds without session cookies.
func New(cfg *config.Config, pol *policy.Policy, store *storage.Store, log *zap.Logger) (*Driver, error) {
	cookies, err := LoadCookies(cfg.Files.CookiesFile)
	if err != nil {
		log.Warn("proceeding without cookies", zap.String("file", cfg.Files.CookiesFile), zap.Error(err))
	} else if len(cookies) > 0 {
		log.Info("loaded cookies", zap.Int("count", len(cookies)))
	}

	pageClient, resourceClient, err := newClients(cookies, cfg.Website.BaseURL, cfg.RequestTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to build http clients: %w", err)
	}

	resourcePaths, err := store.SharedResources()
	if err != nil {
		return nil, fmt.Errorf("failed to load shared resources: %w", err)
	}

	assetHosts := append([]string{}, cdnImageHosts...)
	if cfg.Website.BaseDomain != "" {
		assetHosts = append(assetHosts, cfg.Website.BaseDomain)
	}

	d := &Driver{
		cfg:             cfg,
		mapper:          pathmap.New(cfg.Output.OutputDir, cfg.Crawling.SpaceName, cfg.Output.Format),
		policy:          pol,
		store:           store,
		log:             log,
		pageClient:      pageClient,
		resourceClient:  resourceClient,
		authMarkers:     defaultAuthMarkers,
		assetHosts:      assetHosts,
		sharedDir:       path.Join(cfg.Output.OutputDir, cfg.Output.ResourcesDir),
		activeResources: make(map[string]struct{}),
		resourcePaths:   resourcePaths,
	}

	if err := os.MkdirAll(d.sharedDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shared resources dir: %w", err)
	}
	return d, nil
}

// PathFor returns the local artifact path a URL maps to.
func (d *Driver) PathFor(cleanURL string) string {
	return d.mapper.GenericPath(cleanURL)
}

// Fetch retrieves a page and extracts its admissible outbound links.
func (d *Driver) Fetch(ctx context.Context, cleanURL string, depth int) (*driver.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cleanURL, nil)
	if err != nil {
		return nil, driver.Errf(driver.KindUnexpected, "failed to build request: %v", err)
	}
	d.setHeaders(req)

	resp, err := d.pageClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, driver.Errf(driver.KindNotFound, "page not found: %s", cleanURL)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, driver.Errf(driver.KindAuth, "access denied (HTTP %d); renew your cookies file", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, driver.Errf(driver.KindProtocol, "unexpected status %d for %s", resp.StatusCode, cleanURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if kind := d.authSuspect(body); kind != "" {
		return nil, driver.Errf(driver.KindAuth,
			"authentication heuristic triggered (%s); cookies may have expired, export a fresh session from your browser", kind)
	}

	links, err := d.extractLinks(string(body), cleanURL, depth)
	if err != nil {
		return nil, driver.Errf(driver.KindParse, "failed to parse page: %v", err)
	}

	return &driver.Outcome{Body: string(body), Links: links}, nil
}

// Save rewrites links and resources, neutralizes scripts, converts to
// the configured output format, and writes the artifact.
func (d *Driver) Save(cleanURL string, outcome *driver.Outcome, localPath string) error {
	if outcome.IsIndex {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outcome.Body))
	if err != nil {
		return fmt.Errorf("failed to parse page for saving: %w", err)
	}

	d.rewriteLinks(doc, cleanURL, localPath)
	neutralizeScripts(doc)

	if d.cfg.Content.DownloadResources {
		d.downloadResources(doc, cleanURL, localPath)
	}

	var content string
	if d.cfg.Output.Format == config.FormatMarkdown {
		content, err = d.renderMarkdown(doc, cleanURL)
	} else {
		content, err = doc.Html()
	}
	if err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create page dir: %w", err)
	}
	if err := os.WriteFile(localPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write page: %w", err)
	}
	return nil
}

func (d *Driver) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", d.cfg.Advanced.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for key, value := range d.cfg.Advanced.Headers {
		req.Header.Set(key, value)
	}
}

// authSuspect applies the marker-substring and short-body heuristics.
// Returns a short reason string, or "" when the body looks authentic.
func (d *Driver) authSuspect(body []byte) string {
	if len(body) < authBodyMinBytes {
		return fmt.Sprintf("body only %d bytes", len(body))
	}
	text := string(body)
	for _, marker := range d.authMarkers {
		if strings.Contains(text, marker) {
			return "marker " + marker
		}
	}
	return ""
}

func (d *Driver) extractLinks(body, currentURL string, depth int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		absolute, err := urlutil.Resolve(currentURL, href)
		if err != nil {
			return
		}
		clean := urlutil.MustClean(absolute)
		if _, dup := seen[clean]; dup {
			return
		}
		if !d.policy.ShouldDownload(clean, depth+1) {
			return
		}
		seen[clean] = struct{}{}
		links = append(links, clean)
	})
	return links, nil
}

// rewriteLinks points every in-scope anchor at the relative local path
// its target will occupy. Out-of-scope targets keep their absolute URL.
func (d *Driver) rewriteLinks(doc *goquery.Document, currentURL, localPath string) {
	pageDir := filepath.Dir(localPath)
	ext := d.mapper.Ext()

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		absolute, err := urlutil.Resolve(currentURL, href)
		if err != nil {
			return
		}
		clean := urlutil.MustClean(absolute)
		if !urlutil.IsHTTP(clean) || !d.policy.Matches(clean) {
			return
		}

		target := d.mapper.GenericPath(clean)
		rel, err := filepath.Rel(pageDir, target)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if !strings.HasSuffix(rel, ".html") && !strings.HasSuffix(rel, ".md") {
			rel += ext
		}
		sel.SetAttr("href", rel)
	})
}

// neutralizeScripts removes script/noscript elements, meta refresh tags
// and inline on* event attributes.
func neutralizeScripts(doc *goquery.Document) {
	doc.Find("script, noscript").Remove()
	doc.Find("meta[http-equiv]").Each(func(_ int, sel *goquery.Selection) {
		if equiv, _ := sel.Attr("http-equiv"); strings.EqualFold(equiv, "refresh") {
			sel.Remove()
		}
	})
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if !strings.HasPrefix(strings.ToLower(attr.Key), "on") {
					kept = append(kept, attr)
				}
			}
			node.Attr = kept
		}
	})
}

// mainContentSelectors are tried in order when extracting the region
// converted to Markdown.
var mainContentSelectors = []string{"#main-content", ".wiki-content", "main", "article", ".content"}

// chromeSelectors are removed from the extracted region.
var chromeSelectors = []string{
	"nav", "header", "footer",
	".page-metadata", ".page-toolbar", ".breadcrumbs", ".space-tools-section", ".aui-toolbar",
}

func (d *Driver) renderMarkdown(doc *goquery.Document, currentURL string) (string, error) {
	main := doc.Selection
	for _, selector := range mainContentSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			main = sel.First()
			break
		}
	}
	if main == doc.Selection {
		if body := doc.Find("body"); body.Length() > 0 {
			main = body.First()
		}
	}

	for _, selector := range chromeSelectors {
		main.Find(selector).Remove()
	}

	fragment, err := goquery.OuterHtml(main)
	if err != nil {
		return "", err
	}

	markdown, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "Untitled Page"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "**Original URL:** %s\n\n", currentURL)
	sb.WriteString("---\n\n")
	sb.WriteString(markdown)
	return sb.String(), nil
}

// --- Resource downloads ---

// downloadResources fetches stylesheets and images matching the asset
// host rules into the shared pool and repoints the document at the
// local copies. Failures are logged and left as-is.
func (d *Driver) downloadResources(doc *goquery.Document, currentURL, localPath string) {
	pageDir := filepath.Dir(localPath)

	rewrite := func(sel *goquery.Selection, attr, resourceType string) {
		value, _ := sel.Attr(attr)
		if value == "" {
			return
		}
		absolute, err := urlutil.Resolve(currentURL, value)
		if err != nil || !d.isAssetURL(absolute) {
			return
		}
		local, err := d.downloadResource(absolute, resourceType, currentURL)
		if err != nil {
			d.log.Debug("resource download failed", zap.String("url", absolute), zap.Error(err))
			return
		}
		if rel, err := filepath.Rel(pageDir, local); err == nil {
			sel.SetAttr(attr, filepath.ToSlash(rel))
		}
	}

	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, sel *goquery.Selection) {
		rewrite(sel, "href", "css")
	})
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		rewrite(sel, "src", "image")
	})
}

func (d *Driver) isAssetURL(rawURL string) bool {
	for _, host := range d.assetHosts {
		if strings.Contains(rawURL, host) {
			return true
		}
	}
	return false
}

// downloadResource persists one asset at most once across the run. A
// prior download short-circuits to the known local path; a URL reserved
// by a concurrent download returns an error and is skipped.
func (d *Driver) downloadResource(rawURL, resourceType, referencedBy string) (string, error) {
	d.mu.Lock()
	if local, ok := d.resourcePaths[rawURL]; ok {
		d.mu.Unlock()
		return local, nil
	}
	if _, active := d.activeResources[rawURL]; active {
		d.mu.Unlock()
		return "", fmt.Errorf("resource %s is being downloaded elsewhere", rawURL)
	}
	d.activeResources[rawURL] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.activeResources, rawURL)
		d.mu.Unlock()
	}()

	targetDir := d.sharedDir
	for _, host := range cdnImageHosts {
		if strings.Contains(rawURL, host) {
			targetDir = path.Join(d.sharedDir, "cdn_images")
			break
		}
	}

	local := path.Join(targetDir, resourceFilename(rawURL, resourceType))

	resp, err := d.resourceClient.Get(rawURL)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", driver.Errf(driver.KindProtocol, "resource fetch returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(err)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", err
	}

	if err := d.store.AddResource(&storage.DownloadedResource{
		URL:          rawURL,
		LocalPath:    local,
		ResourceType: resourceType,
		FileSize:     int64(len(data)),
		ReferencedBy: referencedBy,
		IsShared:     true,
	}); err != nil {
		return "", err
	}

	d.mu.Lock()
	d.resourcePaths[rawURL] = local
	d.mu.Unlock()

	return local, nil
}

func resourceFilename(rawURL, resourceType string) string {
	name := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" || !strings.Contains(name, ".") {
		ext := ".png"
		if resourceType == "css" {
			ext = ".css"
		}
		sum := md5.Sum([]byte(rawURL))
		name = "resource_" + hex.EncodeToString(sum[:])[:8] + ext
	}
	return pathmap.SanitizeFilename(name)
}

func classifyTransportError(err error) *driver.FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return driver.Errf(driver.KindTimeout, "request timed out: %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return driver.Errf(driver.KindTimeout, "request timed out: %v", err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return driver.Errf(driver.KindTransport, "DNS error: %v", err)
	}
	return driver.Errf(driver.KindTransport, "request failed: %v", err)
}

