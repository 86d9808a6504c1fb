package storage

import (
	"fmt"

	"github.com/site-mirror/sitemirror/internal/wikimeta"
)

// SaveWikiMetadata upserts the wiki page metadata bound to a clean URL.
func (s *Store) SaveWikiMetadata(cleanURL string, meta *wikimeta.PageMetadata, derived wikimeta.Derived) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO wiki_page_metadata (
			clean_url, page_id, ari, type, status, title, space_key, space_name,
			version_number, version_when, version_by, version_by_email, version_by_account,
			version_message, version_minor_edit,
			created_when, created_by, updated_when, updated_by,
			link_web, link_rest, link_tiny,
			days_since_update, has_attachments, attachment_count, content_char_count, has_tables
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(clean_url) DO UPDATE SET
			page_id = excluded.page_id,
			ari = excluded.ari,
			type = excluded.type,
			status = excluded.status,
			title = excluded.title,
			space_key = excluded.space_key,
			space_name = excluded.space_name,
			version_number = excluded.version_number,
			version_when = excluded.version_when,
			version_by = excluded.version_by,
			version_by_email = excluded.version_by_email,
			version_by_account = excluded.version_by_account,
			version_message = excluded.version_message,
			version_minor_edit = excluded.version_minor_edit,
			created_when = excluded.created_when,
			created_by = excluded.created_by,
			updated_when = excluded.updated_when,
			updated_by = excluded.updated_by,
			link_web = excluded.link_web,
			link_rest = excluded.link_rest,
			link_tiny = excluded.link_tiny,
			days_since_update = excluded.days_since_update,
			has_attachments = excluded.has_attachments,
			attachment_count = excluded.attachment_count,
			content_char_count = excluded.content_char_count,
			has_tables = excluded.has_tables
	`,
		cleanURL, meta.ID, meta.ARI, meta.Type, meta.Status, meta.Title, meta.SpaceKey, meta.SpaceName,
		meta.Version.Number, meta.Version.When, meta.Version.By.DisplayName, meta.Version.By.Email,
		meta.Version.By.AccountID, meta.Version.Message, meta.Version.MinorEdit,
		meta.Created.When, meta.Created.By.DisplayName, meta.Updated.When, meta.Updated.By.DisplayName,
		meta.Links.Web, meta.Links.Rest, meta.Links.Tiny,
		derivedDays(derived), derived.HasAttachments, derived.AttachmentCount,
		derived.ContentCharCount, derived.HasTables,
	)
	if err != nil {
		return fmt.Errorf("failed to save wiki metadata for %s: %w", cleanURL, err)
	}
	return nil
}

// SaveWikiAttachments upserts the attachment records for a page in one
// transaction.
func (s *Store) SaveWikiAttachments(pageID string, attachments []wikimeta.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO wiki_attachments (
			page_id, attachment_id, title, media_type, file_size, file_size_local,
			version, created_when, created_by, comment, download_url, local_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id, attachment_id) DO UPDATE SET
			title = excluded.title,
			media_type = excluded.media_type,
			file_size = excluded.file_size,
			file_size_local = excluded.file_size_local,
			version = excluded.version,
			local_path = excluded.local_path
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, att := range attachments {
		if _, err := stmt.Exec(pageID, att.ID, att.Title, att.MediaType, att.FileSize,
			att.FileSizeLocal, att.Version, att.CreatedWhen, att.CreatedBy,
			att.Comment, att.DownloadURL, att.LocalPath); err != nil {
			return fmt.Errorf("failed to save attachment %s: %w", att.ID, err)
		}
	}

	return tx.Commit()
}

func derivedDays(d wikimeta.Derived) any {
	if d.DaysSinceUpdate == nil {
		return nil
	}
	return *d.DaysSinceUpdate
}
