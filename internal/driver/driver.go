// Package driver defines the site driver boundary shared by the HTML
// and wiki-API acquisition modes.
package driver

import (
	"context"
	"fmt"

	"github.com/site-mirror/sitemirror/internal/wikimeta"
)

// ErrorKind classifies fetch failures for reporting and retry policy.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindTransport  ErrorKind = "transport"
	KindAuth       ErrorKind = "auth"
	KindProtocol   ErrorKind = "protocol"
	KindParse      ErrorKind = "parse"
	KindNotFound   ErrorKind = "not_found"
	KindUnexpected ErrorKind = "unexpected"
)

// FetchError is a classified fetch failure.
type FetchError struct {
	Kind    ErrorKind
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errf builds a FetchError with a formatted message.
func Errf(kind ErrorKind, format string, args ...any) *FetchError {
	return &FetchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Outcome is the result of a successful fetch.
type Outcome struct {
	// Body is the page HTML (body.view in wiki mode).
	Body string

	// StorageBody is the wiki storage-format body, when available.
	StorageBody string

	// Metadata is present only in wiki-API mode.
	Metadata *wikimeta.PageMetadata

	// Attachments downloaded alongside the page, wiki-API mode only.
	Attachments []wikimeta.Attachment

	// Links are the discovered outbound URLs. The HTML driver filters them
	// by full admission, the wiki driver by domain and exclude patterns
	// only; the engine re-checks admission before queuing them.
	Links []string

	// IsIndex marks a space-index fan-out: no artifact is persisted,
	// the links expand the space at depth 0.
	IsIndex bool

	// PageID is the extracted page identifier, when known.
	PageID string

	// RawPayload is the verbatim API response, wiki-API mode only.
	RawPayload []byte
}

// Driver encapsulates how a target site is fetched, parsed and
// serialized. Implementations must be safe for concurrent use.
type Driver interface {
	// Fetch retrieves the page at cleanURL. A nil error means the
	// outcome is complete; failures are *FetchError where possible.
	Fetch(ctx context.Context, cleanURL string, depth int) (*Outcome, error)

	// Save writes every artifact derived from the outcome rooted at
	// localPath. Index outcomes are a no-op.
	Save(cleanURL string, outcome *Outcome, localPath string) error
}
