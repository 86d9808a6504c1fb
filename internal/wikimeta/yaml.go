package wikimeta

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Paths lists the artifact locations recorded in the metadata document.
type Paths struct {
	Base           string  `yaml:"base"`
	HTML           string  `yaml:"html"`
	Markdown       *string `yaml:"markdown"`
	JSON           *string `yaml:"json"`
	Metadata       string  `yaml:"metadata"`
	AttachmentsDir *string `yaml:"attachments_dir"`
}

type yamlSource struct {
	Endpoint   string `yaml:"endpoint"`
	Query      string `yaml:"query"`
	RequestURL string `yaml:"request_url"`
	Rest       string `yaml:"rest"`
	Web        string `yaml:"web"`
	Tiny       string `yaml:"tiny"`
}

type yamlContent struct {
	ID        string `yaml:"id"`
	ARI       string `yaml:"ari"`
	Type      string `yaml:"type"`
	Status    string `yaml:"status"`
	SpaceKey  string `yaml:"space_key"`
	SpaceName string `yaml:"space_name"`
	Title     string `yaml:"title"`
}

type yamlHistoryEntry struct {
	When      string `yaml:"when"`
	By        string `yaml:"by"`
	ByEmail   string `yaml:"by_email"`
	ByAccount string `yaml:"by_account"`
}

type yamlHistory struct {
	Created yamlHistoryEntry `yaml:"created"`
	Updated yamlHistoryEntry `yaml:"updated"`
}

type yamlVersion struct {
	Number    int    `yaml:"number"`
	Minor     bool   `yaml:"minor"`
	By        string `yaml:"by"`
	ByEmail   string `yaml:"by_email"`
	ByAccount string `yaml:"by_account"`
	When      string `yaml:"when"`
	Comment   string `yaml:"comment"`
}

type yamlDerived struct {
	HasAttachments   bool `yaml:"has_attachments"`
	AttachmentCount  int  `yaml:"attachment_count"`
	DaysSinceUpdate  *int `yaml:"days_since_update"`
	ContentCharCount int  `yaml:"content_char_count"`
	HasTables        bool `yaml:"has_tables"`
}

type yamlAttachment struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	MediaType      string `yaml:"media_type"`
	Version        int    `yaml:"version"`
	FileSizeAPI    int64  `yaml:"file_size_api"`
	FileSizeLocal  int64  `yaml:"file_size_local"`
	Created        string `yaml:"created"`
	CreatedBy      string `yaml:"created_by"`
	Comment        string `yaml:"comment"`
	SourceDownload string `yaml:"source_download"`
	LocalPath      string `yaml:"local_path"`
}

type yamlAttachments struct {
	Count int              `yaml:"count"`
	Items []yamlAttachment `yaml:"items"`
}

type yamlDocument struct {
	Source      yamlSource      `yaml:"source"`
	Content     yamlContent     `yaml:"content"`
	History     yamlHistory     `yaml:"history"`
	Version     yamlVersion     `yaml:"version"`
	Derived     yamlDerived     `yaml:"derived"`
	Paths       Paths           `yaml:"paths"`
	Attachments yamlAttachments `yaml:"attachments"`
}

// GenerateYAML renders the structured metadata document for a page.
func GenerateYAML(meta *PageMetadata, attachments []Attachment, paths Paths, now time.Time) (string, error) {
	derived := DeriveStats(meta, attachments, now)

	doc := yamlDocument{
		Source: yamlSource{
			Endpoint:   meta.Endpoint,
			Query:      meta.Query,
			RequestURL: meta.RequestURL,
			Rest:       meta.Links.Rest,
			Web:        meta.Links.Web,
			Tiny:       meta.Links.Tiny,
		},
		Content: yamlContent{
			ID:        meta.ID,
			ARI:       meta.ARI,
			Type:      meta.Type,
			Status:    meta.Status,
			SpaceKey:  meta.SpaceKey,
			SpaceName: meta.SpaceName,
			Title:     meta.Title,
		},
		History: yamlHistory{
			Created: yamlHistoryEntry{
				When:      meta.Created.When,
				By:        meta.Created.By.DisplayName,
				ByEmail:   meta.Created.By.Email,
				ByAccount: meta.Created.By.AccountID,
			},
			Updated: yamlHistoryEntry{
				When:      meta.Updated.When,
				By:        meta.Updated.By.DisplayName,
				ByEmail:   meta.Updated.By.Email,
				ByAccount: meta.Updated.By.AccountID,
			},
		},
		Version: yamlVersion{
			Number:    meta.Version.Number,
			Minor:     meta.Version.MinorEdit,
			By:        meta.Version.By.DisplayName,
			ByEmail:   meta.Version.By.Email,
			ByAccount: meta.Version.By.AccountID,
			When:      meta.Version.When,
			Comment:   meta.Version.Message,
		},
		Derived: yamlDerived{
			HasAttachments:   derived.HasAttachments,
			AttachmentCount:  derived.AttachmentCount,
			DaysSinceUpdate:  derived.DaysSinceUpdate,
			ContentCharCount: derived.ContentCharCount,
			HasTables:        derived.HasTables,
		},
		Paths: paths,
		Attachments: yamlAttachments{
			Count: len(attachments),
			Items: make([]yamlAttachment, 0, len(attachments)),
		},
	}

	for _, att := range attachments {
		doc.Attachments.Items = append(doc.Attachments.Items, yamlAttachment{
			ID:             att.ID,
			Title:          att.Title,
			MediaType:      att.MediaType,
			Version:        att.Version,
			FileSizeAPI:    att.FileSize,
			FileSizeLocal:  att.FileSizeLocal,
			Created:        att.CreatedWhen,
			CreatedBy:      att.CreatedBy,
			Comment:        att.Comment,
			SourceDownload: att.DownloadURL,
			LocalPath:      att.LocalPath,
		})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata yaml: %w", err)
	}
	return string(out), nil
}
