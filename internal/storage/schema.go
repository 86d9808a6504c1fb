package storage

// Schema contains SQL statements to create the crawl lifecycle tables.
const Schema = `
-- Discovered URLs: one row per unique clean URL, with lifecycle status
CREATE TABLE IF NOT EXISTS discovered_urls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL,
    clean_url TEXT NOT NULL UNIQUE,
    depth INTEGER NOT NULL DEFAULT 0,
    discovered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    parent_clean_url TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_discovered_urls_clean ON discovered_urls(clean_url);
CREATE INDEX IF NOT EXISTS idx_discovered_urls_status ON discovered_urls(status);
CREATE INDEX IF NOT EXISTS idx_discovered_urls_depth ON discovered_urls(depth);

-- Downloaded documents: exists iff the URL reached completed
CREATE TABLE IF NOT EXISTS downloaded_documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    clean_url TEXT NOT NULL UNIQUE,
    local_path TEXT NOT NULL,
    file_size INTEGER,
    download_time REAL,
    downloaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    depth INTEGER,
    links_extracted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_downloaded_documents_clean ON downloaded_documents(clean_url);
CREATE INDEX IF NOT EXISTS idx_downloaded_documents_at ON downloaded_documents(downloaded_at);

-- Downloaded resources: stylesheets, images, attachments
CREATE TABLE IF NOT EXISTS downloaded_resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    local_path TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    file_size INTEGER,
    downloaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    referenced_by TEXT,
    is_shared BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_downloaded_resources_url ON downloaded_resources(url);
CREATE INDEX IF NOT EXISTS idx_downloaded_resources_type ON downloaded_resources(resource_type);

-- URL mappings: denormalized clean_url -> local_path cache for link rewriting
CREATE TABLE IF NOT EXISTS url_mappings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    clean_url TEXT NOT NULL UNIQUE,
    local_path TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_url_mappings_clean ON url_mappings(clean_url);

-- Wiki page metadata: present only in wiki-API mode, 1:1 with a clean URL
CREATE TABLE IF NOT EXISTS wiki_page_metadata (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    clean_url TEXT NOT NULL UNIQUE,
    page_id TEXT NOT NULL,
    ari TEXT,
    type TEXT,
    status TEXT,
    title TEXT,
    space_key TEXT,
    space_name TEXT,
    version_number INTEGER,
    version_when TEXT,
    version_by TEXT,
    version_by_email TEXT,
    version_by_account TEXT,
    version_message TEXT,
    version_minor_edit BOOLEAN,
    created_when TEXT,
    created_by TEXT,
    updated_when TEXT,
    updated_by TEXT,
    link_web TEXT,
    link_rest TEXT,
    link_tiny TEXT,
    days_since_update INTEGER,
    has_attachments BOOLEAN,
    attachment_count INTEGER,
    content_char_count INTEGER,
    has_tables BOOLEAN
);

CREATE INDEX IF NOT EXISTS idx_wiki_page_metadata_page_id ON wiki_page_metadata(page_id);

-- Wiki attachments: one row per downloaded page attachment
CREATE TABLE IF NOT EXISTS wiki_attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_id TEXT NOT NULL,
    attachment_id TEXT NOT NULL,
    title TEXT,
    media_type TEXT,
    file_size INTEGER,
    file_size_local INTEGER,
    version INTEGER,
    created_when TEXT,
    created_by TEXT,
    comment TEXT,
    download_url TEXT,
    local_path TEXT,
    UNIQUE(page_id, attachment_id)
);

CREATE INDEX IF NOT EXISTS idx_wiki_attachments_page ON wiki_attachments(page_id);
`
