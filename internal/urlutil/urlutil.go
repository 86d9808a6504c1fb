// Package urlutil provides URL cleaning and resolution helpers.
//
// The clean form of a URL (scheme + authority + path + query, fragment
// dropped) is the dedup key used by the store, the frontier, and the
// path mapper. It must be computed identically everywhere.
package urlutil

import (
	"net/url"
	"strings"
)

// Clean normalizes a URL to its dedup form: scheme, authority, path and
// query are kept, the fragment is dropped. Returns an error for URLs
// that cannot be parsed.
func Clean(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// MustClean is Clean with the error discarded; the input is returned
// unchanged when it does not parse. Used where a malformed URL should
// fall through to the admission filter rather than abort processing.
func MustClean(rawURL string) string {
	clean, err := Clean(rawURL)
	if err != nil {
		return rawURL
	}
	return clean
}

// Resolve resolves a possibly relative reference against a base URL.
func Resolve(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// ExtractHost returns the lowercased host (with port, if any) of a URL.
func ExtractHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Host), nil
}

// IsHTTP reports whether the URL uses the http or https scheme.
func IsHTTP(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}
