package wikiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/site-mirror/sitemirror/internal/creds"
	"github.com/site-mirror/sitemirror/internal/driver"
)

// Per-request-class read windows on top of a 5s connect timeout.
const (
	connectTimeout    = 5 * time.Second
	contentTimeout    = 15 * time.Second
	searchTimeout     = 30 * time.Second
	downloadTimeout   = 60 * time.Second
	attachmentPerPage = 200
	searchPageSize    = 100
)

// client wraps the REST content API with Basic auth.
type client struct {
	creds      *creds.Credentials
	apiBase    string
	httpClient *http.Client
	dlClient   *http.Client
}

func newClient(c *creds.Credentials) *client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		TLSHandshakeTimeout: connectTimeout,
	}

	return &client{
		creds:   c,
		apiBase: c.APIBaseURL(),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   connectTimeout + searchTimeout,
		},
		// Attachment downloads follow redirects to the CDN and may
		// stream large files.
		dlClient: &http.Client{
			Transport: transport,
			Timeout:   connectTimeout + downloadTimeout,
		},
	}
}

// getJSON performs an authenticated GET and decodes the JSON body. The
// raw bytes are returned alongside so callers can persist the payload
// verbatim.
func (c *client) getJSON(ctx context.Context, rawURL string, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, driver.Errf(driver.KindUnexpected, "failed to build request: %v", err)
	}
	req.SetBasicAuth(c.creds.Email, c.creds.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, driver.Errf(driver.KindAuth, "API returned %d; check CONFLUENCE_EMAIL and CONFLUENCE_TOKEN", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, driver.Errf(driver.KindNotFound, "API returned 404 for %s", rawURL)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, driver.Errf(driver.KindProtocol, "API request failed with status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, driver.Errf(driver.KindParse, "failed to decode API response: %v", err)
		}
	}
	return data, nil
}

// download streams a binary to the writer, following redirects. A 404
// is reported distinctly so callers can tolerate deleted attachments.
func (c *client) download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, driver.Errf(driver.KindUnexpected, "failed to build request: %v", err)
	}
	req.SetBasicAuth(c.creds.Email, c.creds.Token)

	resp, err := c.dlClient.Do(req)
	if err != nil {
		return 0, classifyError(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, driver.Errf(driver.KindNotFound, "attachment not found")
	case http.StatusUnauthorized, http.StatusForbidden:
		return 0, driver.Errf(driver.KindAuth, "attachment download denied (%d)", resp.StatusCode)
	default:
		return 0, driver.Errf(driver.KindProtocol, "attachment download failed with status %d", resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, classifyError(err)
	}
	return n, nil
}

// contentURL builds the content endpoint for a page id.
func (c *client) contentURL(pageID string) string {
	return fmt.Sprintf("%s/content/%s?%s", c.apiBase, pageID, url.Values{
		"expand": {contentExpand},
	}.Encode())
}

// searchURL builds a CQL search request.
func (c *client) searchURL(cql string, limit, start int, expand string) string {
	values := url.Values{
		"cql":   {cql},
		"limit": {fmt.Sprint(limit)},
	}
	if start > 0 {
		values.Set("start", fmt.Sprint(start))
	}
	if expand != "" {
		values.Set("expand", expand)
	}
	return c.apiBase + "/content/search?" + values.Encode()
}

// absoluteURL resolves an API-relative link against the site base,
// adding the /wiki prefix when the API omits it.
func (c *client) absoluteURL(link string) string {
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "http") {
		return link
	}
	base := strings.TrimRight(c.creds.BaseURL, "/")
	if strings.HasPrefix(link, "/wiki") {
		return base + link
	}
	return base + "/wiki" + link
}

func classifyError(err error) *driver.FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return driver.Errf(driver.KindTimeout, "request timeout: %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return driver.Errf(driver.KindTimeout, "request timeout: %v", err)
	}
	return driver.Errf(driver.KindTransport, "request error: %v", err)
}
