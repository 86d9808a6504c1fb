package htmlsite

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// Timeouts per request class: pages get the full read window, auxiliary
// resources a tighter one.
const (
	pageConnectTimeout     = 5 * time.Second
	pageReadTimeout        = 15 * time.Second
	resourceConnectTimeout = 3 * time.Second
	resourceReadTimeout    = 10 * time.Second
)

func newTransport(connectTimeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newClients builds the page and resource HTTP clients, sharing a
// cookie jar pre-loaded from the configured cookie file. The overall
// page deadline stretches to the configured request timeout when that
// is longer than the per-phase limits.
func newClients(cookies []*http.Cookie, baseURL string, requestTimeout time.Duration) (page, resource *http.Client, err error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}

	if len(cookies) > 0 && baseURL != "" {
		if u, parseErr := url.Parse(baseURL); parseErr == nil {
			jar.SetCookies(u, cookies)
		}
	}

	pageTimeout := pageConnectTimeout + pageReadTimeout
	if requestTimeout > pageTimeout {
		pageTimeout = requestTimeout
	}

	page = &http.Client{
		Transport: newTransport(pageConnectTimeout),
		Timeout:   pageTimeout,
		Jar:       jar,
	}
	resource = &http.Client{
		Transport: newTransport(resourceConnectTimeout),
		Timeout:   resourceConnectTimeout + resourceReadTimeout,
		Jar:       jar,
	}
	return page, resource, nil
}
