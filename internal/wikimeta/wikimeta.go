// Package wikimeta holds wiki page metadata types, derived statistics
// and the structured YAML metadata document written next to each page.
package wikimeta

import (
	"strings"
	"time"
)

// Actor identifies a user in version or history records.
type Actor struct {
	DisplayName string
	Email       string
	AccountID   string
}

// Version describes the current version of a page.
type Version struct {
	Number    int
	When      string
	By        Actor
	Message   string
	MinorEdit bool
}

// HistoryEntry is one side (created or updated) of the page history.
type HistoryEntry struct {
	When string
	By   Actor
}

// Links holds the API-provided page links.
type Links struct {
	Web  string
	Rest string
	Tiny string
}

// PageMetadata is the full metadata extracted for one wiki page.
type PageMetadata struct {
	ID        string
	ARI       string
	Type      string
	Status    string
	Title     string
	SpaceKey  string
	SpaceName string
	Version   Version
	Created   HistoryEntry
	Updated   HistoryEntry
	Links     Links

	// Request provenance, recorded in the YAML source section.
	RequestURL string
	Endpoint   string
	Query      string

	// Content statistics filled in after the body is known.
	ContentCharCount int
	HasTables        bool
}

// Attachment describes one page attachment and its local copy.
type Attachment struct {
	ID            string
	Title         string
	MediaType     string
	FileSize      int64
	FileSizeLocal int64
	Version       int
	CreatedWhen   string
	CreatedBy     string
	Comment       string
	DownloadURL   string
	LocalPath     string
}

// Derived holds statistics computed from metadata and attachments.
type Derived struct {
	HasAttachments   bool
	AttachmentCount  int
	DaysSinceUpdate  *int
	ContentCharCount int
	HasTables        bool
}

// ContentStats extracts statistics from an HTML body.
func ContentStats(htmlBody string) (charCount int, hasTables bool) {
	return len(htmlBody), strings.Contains(strings.ToLower(htmlBody), "<table")
}

// DeriveStats computes the derived section from metadata and attachments.
// days_since_update stays nil when the update timestamp cannot be parsed.
func DeriveStats(meta *PageMetadata, attachments []Attachment, now time.Time) Derived {
	derived := Derived{
		HasAttachments:   len(attachments) > 0,
		AttachmentCount:  len(attachments),
		ContentCharCount: meta.ContentCharCount,
		HasTables:        meta.HasTables,
	}

	if meta.Updated.When != "" {
		if updated, err := parseAPITime(meta.Updated.When); err == nil {
			days := int(now.Sub(updated).Hours() / 24)
			derived.DaysSinceUpdate = &days
		}
	}
	return derived
}

func parseAPITime(value string) (time.Time, error) {
	// The API emits RFC3339 with milliseconds and a Z suffix.
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC3339, value)
}
