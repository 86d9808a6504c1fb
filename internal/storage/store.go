package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store handles all database operations for crawl progress tracking.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if necessary) the store at the given path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if _, err := s.db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- URL lifecycle ---

// Admit inserts a newly discovered URL as pending. The insert is
// idempotent on clean_url; it reports whether a new row was created.
func (s *Store) Admit(rawURL, cleanURL string, depth int, parentURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO discovered_urls (url, clean_url, depth, parent_clean_url, status)
		VALUES (?, ?, ?, ?, 'pending')
	`, rawURL, cleanURL, depth, nullable(parentURL))
	if err != nil {
		return false, fmt.Errorf("failed to admit url %s: %w", cleanURL, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AdmitBatch inserts multiple discovered URLs in one transaction and
// returns the number of new rows.
func (s *Store) AdmitBatch(reqs []AdmitRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO discovered_urls (url, clean_url, depth, parent_clean_url, status)
		VALUES (?, ?, ?, ?, 'pending')
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, req := range reqs {
		result, err := stmt.Exec(req.URL, req.CleanURL, req.Depth, nullable(req.ParentURL))
		if err != nil {
			return 0, err
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// MarkDownloading transitions a URL from pending to downloading. It
// reports false when the URL is not currently pending, which a caller
// must treat as "someone else owns this URL".
func (s *Store) MarkDownloading(cleanURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE discovered_urls SET status = 'downloading'
		WHERE clean_url = ? AND status = 'pending'
	`, cleanURL)
	if err != nil {
		return false, fmt.Errorf("failed to mark downloading %s: %w", cleanURL, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkCompleted atomically sets the URL status to completed, upserts the
// document record, and refreshes the URL mapping.
func (s *Store) MarkCompleted(cleanURL, localPath string, fileSize int64, downloadTime float64, linksExtracted, depth int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE discovered_urls SET status = 'completed', error_message = NULL
		WHERE clean_url = ?
	`, cleanURL); err != nil {
		return fmt.Errorf("failed to mark completed %s: %w", cleanURL, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO downloaded_documents (clean_url, local_path, file_size, download_time, depth, links_extracted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(clean_url) DO UPDATE SET
			local_path = excluded.local_path,
			file_size = excluded.file_size,
			download_time = excluded.download_time,
			depth = excluded.depth,
			links_extracted = excluded.links_extracted,
			downloaded_at = CURRENT_TIMESTAMP
	`, cleanURL, localPath, fileSize, downloadTime, depth, linksExtracted); err != nil {
		return fmt.Errorf("failed to record document %s: %w", cleanURL, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO url_mappings (clean_url, local_path)
		VALUES (?, ?)
		ON CONFLICT(clean_url) DO UPDATE SET local_path = excluded.local_path
	`, cleanURL, localPath); err != nil {
		return fmt.Errorf("failed to record mapping %s: %w", cleanURL, err)
	}

	return tx.Commit()
}

// MarkFailed sets the URL status to failed, records the error message
// and increments the retry counter.
func (s *Store) MarkFailed(cleanURL, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE discovered_urls
		SET status = 'failed', error_message = ?, retry_count = retry_count + 1
		WHERE clean_url = ?
	`, errorMessage, cleanURL)
	if err != nil {
		return fmt.Errorf("failed to mark failed %s: %w", cleanURL, err)
	}
	return nil
}

// ResetStale returns downloading URLs to pending. Called at startup so
// URLs orphaned by a crash are retried.
func (s *Store) ResetStale() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE discovered_urls SET status = 'pending' WHERE status = 'downloading'
	`)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// RequeueFailed returns failed URLs to pending, keeping their retry
// counts. Failed URLs are never retried within a run; a fresh run
// re-admits and re-attempts them.
func (s *Store) RequeueFailed() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE discovered_urls SET status = 'pending' WHERE status = 'failed'
	`)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// PendingURLs returns pending URLs ordered breadth-first: shallow depth
// first, then discovery order. limit <= 0 means no limit.
func (s *Store) PendingURLs(limit int) ([]PendingURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT clean_url, depth FROM discovered_urls
		WHERE status = 'pending'
		ORDER BY depth ASC, discovered_at ASC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingURL
	for rows.Next() {
		var p PendingURL
		if err := rows.Scan(&p.CleanURL, &p.Depth); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// URLsByStatus returns all discovered URLs with the given status.
func (s *Store) URLsByStatus(status string) ([]DiscoveredURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, url, clean_url, depth, discovered_at, COALESCE(parent_clean_url, ''), status, retry_count, COALESCE(error_message, '')
		FROM discovered_urls
		WHERE status = ?
		ORDER BY discovered_at ASC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var urls []DiscoveredURL
	for rows.Next() {
		var u DiscoveredURL
		if err := rows.Scan(&u.ID, &u.URL, &u.CleanURL, &u.Depth, &u.DiscoveredAt,
			&u.ParentCleanURL, &u.Status, &u.RetryCount, &u.ErrorMessage); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// --- Resources ---

// AddResource records a downloaded auxiliary asset. Upserts on URL so a
// resource is persisted only once across the whole run.
func (s *Store) AddResource(res *DownloadedResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO downloaded_resources (url, local_path, resource_type, file_size, referenced_by, is_shared)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			local_path = excluded.local_path,
			file_size = excluded.file_size
	`, res.URL, res.LocalPath, res.ResourceType, res.FileSize, nullable(res.ReferencedBy), res.IsShared)
	if err != nil {
		return fmt.Errorf("failed to record resource %s: %w", res.URL, err)
	}
	return nil
}

// --- Warm-cache queries ---

// DownloadedURLs returns the set of completed clean URLs.
func (s *Store) DownloadedURLs() (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT clean_url FROM downloaded_documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls[u] = struct{}{}
	}
	return urls, rows.Err()
}

// DownloadedResources returns the set of downloaded resource URLs.
func (s *Store) DownloadedResources() (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT url FROM downloaded_resources`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls[u] = struct{}{}
	}
	return urls, rows.Err()
}

// URLToPath returns the clean URL to local path mapping.
func (s *Store) URLToPath() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT clean_url, local_path FROM url_mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var u, p string
		if err := rows.Scan(&u, &p); err != nil {
			return nil, err
		}
		mapping[u] = p
	}
	return mapping, rows.Err()
}

// SharedResources returns the URL to local path mapping for assets in
// the shared pool.
func (s *Store) SharedResources() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT url, local_path FROM downloaded_resources WHERE is_shared = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var u, p string
		if err := rows.Scan(&u, &p); err != nil {
			return nil, err
		}
		mapping[u] = p
	}
	return mapping, rows.Err()
}

// --- Statistics ---

// GetCounts returns lifecycle counters for resume and reporting.
func (s *Store) GetCounts() (*Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &Counts{}
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM discovered_urls`, &counts.Discovered},
		{`SELECT COUNT(*) FROM discovered_urls WHERE status = 'completed'`, &counts.Completed},
		{`SELECT COUNT(*) FROM discovered_urls WHERE status = 'failed'`, &counts.Failed},
		{`SELECT COUNT(*) FROM discovered_urls WHERE status = 'pending'`, &counts.Pending},
		{`SELECT COUNT(*) FROM downloaded_documents`, &counts.Documents},
		{`SELECT COUNT(*) FROM downloaded_resources`, &counts.Resources},
	}
	for _, q := range queries {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// StatusCounts returns discovered URL counts grouped by status.
func (s *Store) StatusCounts() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM discovered_urls GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// SizeTotals returns the total bytes of downloaded documents and resources.
func (s *Store) SizeTotals() (documents, resources int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRow(`SELECT COALESCE(SUM(file_size), 0) FROM downloaded_documents`).Scan(&documents); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRow(`SELECT COALESCE(SUM(file_size), 0) FROM downloaded_resources`).Scan(&resources); err != nil {
		return 0, 0, err
	}
	return documents, resources, nil
}

// ResourceTypeTotals returns count and total size per resource type.
func (s *Store) ResourceTypeTotals() (map[string][2]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT resource_type, COUNT(*), COALESCE(SUM(file_size), 0)
		FROM downloaded_resources
		GROUP BY resource_type
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string][2]int64)
	for rows.Next() {
		var resourceType string
		var count, size int64
		if err := rows.Scan(&resourceType, &count, &size); err != nil {
			return nil, err
		}
		totals[resourceType] = [2]int64{count, size}
	}
	return totals, rows.Err()
}

// --- Maintenance ---

// ResetProgress truncates all lifecycle tables, keeping the schema.
func (s *Store) ResetProgress() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tables := []string{
		"discovered_urls", "downloaded_documents", "downloaded_resources",
		"url_mappings", "wiki_page_metadata", "wiki_attachments",
	}
	for _, table := range tables {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM sqlite_sequence WHERE name IN ('discovered_urls', 'downloaded_documents', 'downloaded_resources', 'url_mappings', 'wiki_page_metadata', 'wiki_attachments')`); err != nil {
		return fmt.Errorf("failed to reset sequences: %w", err)
	}

	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
