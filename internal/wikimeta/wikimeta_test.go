package wikimeta

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func samplePage() *PageMetadata {
	return &PageMetadata{
		ID:        "556040223",
		ARI:       "ari:cloud:confluence::page/556040223",
		Type:      "page",
		Status:    "current",
		Title:     "Architecture Overview",
		SpaceKey:  "AR",
		SpaceName: "Architecture",
		Version: Version{
			Number:  5,
			When:    "2025-10-20T10:30:00.000Z",
			By:      Actor{DisplayName: "John Doe", Email: "john@example.com", AccountID: "acc123"},
			Message: "Updated diagrams",
		},
		Created: HistoryEntry{
			When: "2025-01-15T08:00:00.000Z",
			By:   Actor{DisplayName: "Jane Smith"},
		},
		Updated: HistoryEntry{
			When: "2025-10-20T10:30:00.000Z",
			By:   Actor{DisplayName: "John Doe"},
		},
		Links: Links{
			Web:  "/wiki/spaces/AR/pages/556040223",
			Rest: "/rest/api/content/556040223",
			Tiny: "/x/abc",
		},
		RequestURL:       "https://host/wiki/spaces/AR/pages/556040223",
		Endpoint:         "/content/556040223",
		Query:            "expand=version",
		ContentCharCount: 2048,
		HasTables:        true,
	}
}

func TestContentStats(t *testing.T) {
	chars, tables := ContentStats("<p>hello</p><TABLE><tr></tr></TABLE>")
	assert.Equal(t, 36, chars)
	assert.True(t, tables)

	chars, tables = ContentStats("")
	assert.Zero(t, chars)
	assert.False(t, tables)
}

func TestDeriveStats(t *testing.T) {
	meta := samplePage()
	now := time.Date(2025, 10, 30, 10, 30, 0, 0, time.UTC)

	derived := DeriveStats(meta, []Attachment{{ID: "1"}}, now)
	assert.True(t, derived.HasAttachments)
	assert.Equal(t, 1, derived.AttachmentCount)
	require.NotNil(t, derived.DaysSinceUpdate)
	assert.Equal(t, 10, *derived.DaysSinceUpdate)
	assert.Equal(t, 2048, derived.ContentCharCount)
	assert.True(t, derived.HasTables)
}

func TestDeriveStatsUnparseableTimestamp(t *testing.T) {
	meta := samplePage()
	meta.Updated.When = "not-a-date"

	derived := DeriveStats(meta, nil, time.Now())
	assert.Nil(t, derived.DaysSinceUpdate, "days_since_update stays null when the timestamp cannot be parsed")
	assert.False(t, derived.HasAttachments)
}

func TestGenerateYAMLSections(t *testing.T) {
	meta := samplePage()
	mdPath := "556040223/index.md"
	attachmentsDir := "attachments"
	attachments := []Attachment{{
		ID:            "att1",
		Title:         "diagram.png",
		MediaType:     "image/png",
		FileSize:      45678,
		FileSizeLocal: 45678,
		Version:       2,
		CreatedWhen:   "2025-01-20T09:00:00.000Z",
		CreatedBy:     "John Doe",
		DownloadURL:   "https://host/wiki/download/attachments/556040223/diagram.png",
		LocalPath:     "spaces/AR/pages/556040223/attachments/att1_diagram.png",
	}}

	out, err := GenerateYAML(meta, attachments, Paths{
		Base:           "out/spaces/AR/pages/556040223",
		HTML:           "556040223/index.html",
		Markdown:       &mdPath,
		Metadata:       "556040223/index.yml",
		AttachmentsDir: &attachmentsDir,
	}, time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))

	for _, section := range []string{"source", "content", "history", "version", "derived", "paths", "attachments"} {
		assert.Contains(t, doc, section)
	}

	content := doc["content"].(map[string]any)
	assert.Equal(t, "556040223", content["id"])
	assert.Equal(t, "AR", content["space_key"])

	version := doc["version"].(map[string]any)
	assert.Equal(t, 5, version["number"])
	assert.Equal(t, "Updated diagrams", version["comment"])

	atts := doc["attachments"].(map[string]any)
	assert.Equal(t, 1, atts["count"])
	items := atts["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "att1", item["id"])
	assert.Equal(t, 45678, item["file_size_api"])

	derived := doc["derived"].(map[string]any)
	assert.Equal(t, true, derived["has_attachments"])
	assert.Equal(t, 4, derived["days_since_update"])
}

func TestGenerateYAMLIsDeterministic(t *testing.T) {
	meta := samplePage()
	now := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)

	first, err := GenerateYAML(meta, nil, Paths{HTML: "x/index.html", Metadata: "x/index.yml"}, now)
	require.NoError(t, err)
	second, err := GenerateYAML(meta, nil, Paths{HTML: "x/index.html", Metadata: "x/index.yml"}, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.True(t, strings.HasPrefix(first, "source:"), "section order is fixed, source first")
}
