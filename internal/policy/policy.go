// Package policy implements the URL admission filter.
package policy

import (
	"regexp"
	"strings"

	"github.com/site-mirror/sitemirror/internal/urlutil"
)

// SeenFunc reports whether a clean URL is already completed or in flight.
type SeenFunc func(cleanURL string) bool

// Policy decides whether a URL may enter the crawl.
type Policy struct {
	baseDomain      string
	maxDepth        int
	validPatterns   []*regexp.Regexp
	excludePatterns []*regexp.Regexp
	seen            SeenFunc
}

// New builds an admission policy. seen may be nil, in which case only
// the static rules apply.
func New(baseDomain string, maxDepth int, validPatterns, excludePatterns []*regexp.Regexp, seen SeenFunc) *Policy {
	return &Policy{
		baseDomain:      baseDomain,
		maxDepth:        maxDepth,
		validPatterns:   validPatterns,
		excludePatterns: excludePatterns,
		seen:            seen,
	}
}

// ShouldDownload reports whether a URL at the given depth is admissible.
// All of the following must hold: depth within bounds, not already seen,
// host within the base domain, no exclude pattern matches, and either no
// valid patterns are configured or at least one matches.
func (p *Policy) ShouldDownload(rawURL string, depth int) bool {
	if depth > p.maxDepth {
		return false
	}

	cleanURL, err := urlutil.Clean(rawURL)
	if err != nil {
		return false
	}

	if p.seen != nil && p.seen(cleanURL) {
		return false
	}

	return p.Matches(rawURL)
}

// Matches applies only the static rules: domain membership, exclude
// patterns and valid patterns. Used for link rewriting, where a target
// that is already downloaded must still be considered in scope.
func (p *Policy) Matches(rawURL string) bool {
	if p.baseDomain != "" {
		host, err := urlutil.ExtractHost(rawURL)
		if err != nil || !strings.Contains(host, p.baseDomain) {
			return false
		}
	}

	for _, re := range p.excludePatterns {
		if re.MatchString(rawURL) {
			return false
		}
	}

	if len(p.validPatterns) > 0 {
		matched := false
		for _, re := range p.validPatterns {
			if re.MatchString(rawURL) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// MaxDepth exposes the configured depth bound.
func (p *Policy) MaxDepth() int { return p.maxDepth }
