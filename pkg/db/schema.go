package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- One row per ingestion job. Timestamps are RFC3339 text.
CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    base_url TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    state TEXT NOT NULL,              -- running, completed, failed
    started_at TEXT NOT NULL,
    finished_at TEXT,
    pages_visited INTEGER DEFAULT 0,
    pages_failed INTEGER DEFAULT 0,
    text_assets INTEGER DEFAULT 0,
    images_found INTEGER DEFAULT 0,
    images_downloaded INTEGER DEFAULT 0,
    images_failed INTEGER DEFAULT 0,
    stop_reason TEXT,
    error TEXT,
    -- Top keywords as JSON array: ["word:count", ...]
    top_keywords TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id);
CREATE INDEX IF NOT EXISTS idx_jobs_started ON jobs(started_at);

-- Outcome of every page a job dequeued
CREATE TABLE IF NOT EXISTS job_pages (
    page_id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL REFERENCES jobs(job_id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    status TEXT NOT NULL,             -- stored, no_text, failed
    asset_id TEXT,
    links_found INTEGER DEFAULT 0,
    images_found INTEGER DEFAULT 0,
    rendered BOOLEAN DEFAULT 0,
    error TEXT,
    visited_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_pages_job ON job_pages(job_id);
`
