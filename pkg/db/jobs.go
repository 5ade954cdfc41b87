package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
)

// Page statuses recorded in job_pages.
const (
	PageStored = "stored"
	PageNoText = "no_text"
	PageFailed = "failed"
)

// Job is one row of the jobs table.
type Job struct {
	JobID            string     `json:"jobId"`
	BaseURL          string     `json:"baseUrl"`
	OwnerID          string     `json:"ownerId"`
	State            string     `json:"state"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	PagesVisited     int        `json:"pagesVisited"`
	PagesFailed      int        `json:"pagesFailed"`
	TextAssets       int        `json:"textAssetsCreated"`
	ImagesFound      int        `json:"imagesFound"`
	ImagesDownloaded int        `json:"imagesDownloaded"`
	ImagesFailed     int        `json:"imagesFailed"`
	StopReason       string     `json:"stopReason,omitempty"`
	Error            string     `json:"error,omitempty"`
	TopKeywords      []string   `json:"topKeywords,omitempty"`
}

// PageRecord is one row of the job_pages table.
type PageRecord struct {
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	AssetID     string    `json:"assetId,omitempty"`
	LinksFound  int       `json:"linksFound"`
	ImagesFound int       `json:"imagesFound"`
	Rendered    bool      `json:"rendered,omitempty"`
	Error       string    `json:"error,omitempty"`
	VisitedAt   time.Time `json:"visitedAt"`
}

// StartJob inserts a running job.
func (db *DB) StartJob(jobID, baseURL, ownerID string, startedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO jobs (job_id, base_url, owner_id, state, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, baseURL, ownerID, string(models.JobRunning), formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// RecordPage stores the outcome of one visited page.
func (db *DB) RecordPage(jobID string, p PageRecord) error {
	if p.VisitedAt.IsZero() {
		p.VisitedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO job_pages (job_id, url, status, asset_id, links_found, images_found, rendered, error, visited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, jobID, p.URL, p.Status, NewNullString(p.AssetID), p.LinksFound, p.ImagesFound, p.Rendered,
		NewNullString(p.Error), formatTime(p.VisitedAt))
	if err != nil {
		return fmt.Errorf("failed to record page: %w", err)
	}
	return nil
}

// FinishJob stores the final state. summary may be nil for failed jobs.
func (db *DB) FinishJob(jobID string, state models.JobState, summary *models.Summary, jobErr string) error {
	finished := time.Now()
	var s models.Summary
	if summary != nil {
		s = *summary
		finished = summary.FinishedAt
	}
	keywords, err := json.Marshal(s.TopKeywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	res, err := db.Exec(`
		UPDATE jobs SET
			state = ?, finished_at = ?, pages_visited = ?, pages_failed = ?, text_assets = ?,
			images_found = ?, images_downloaded = ?, images_failed = ?, stop_reason = ?,
			error = ?, top_keywords = ?
		WHERE job_id = ?
	`, string(state), formatTime(finished), s.PagesVisited, s.PagesFailed, s.TextAssetsCreated,
		s.ImagesFound, s.ImagesDownloaded, s.ImagesFailed, NewNullString(s.StopReason),
		NewNullString(jobErr), string(keywords), jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

const jobColumns = `job_id, base_url, owner_id, state, started_at, finished_at, pages_visited,
	pages_failed, text_assets, images_found, images_downloaded, images_failed,
	stop_reason, error, top_keywords`

// GetJob returns a job by id. ok is false when it does not exist.
func (db *DB) GetJob(jobID string) (*Job, bool, error) {
	row := db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// ListJobs returns the most recent jobs first, optionally for one owner.
func (db *DB) ListJobs(ownerID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetJobPages returns the pages of a job in visit order.
func (db *DB) GetJobPages(jobID string) ([]PageRecord, error) {
	rows, err := db.Query(`
		SELECT url, status, asset_id, links_found, images_found, rendered, error, visited_at
		FROM job_pages WHERE job_id = ? ORDER BY page_id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var p PageRecord
		var assetID, errMsg sql.NullString
		var visited string
		if err := rows.Scan(&p.URL, &p.Status, &assetID, &p.LinksFound, &p.ImagesFound, &p.Rendered, &errMsg, &visited); err != nil {
			return nil, fmt.Errorf("failed to scan job page: %w", err)
		}
		p.AssetID = assetID.String
		p.Error = errMsg.String
		p.VisitedAt = parseTime(visited)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var started string
	var finished, stopReason, errMsg, keywords sql.NullString
	err := row.Scan(&j.JobID, &j.BaseURL, &j.OwnerID, &j.State, &started, &finished,
		&j.PagesVisited, &j.PagesFailed, &j.TextAssets, &j.ImagesFound, &j.ImagesDownloaded,
		&j.ImagesFailed, &stopReason, &errMsg, &keywords)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	j.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		j.FinishedAt = &t
	}
	j.StopReason = stopReason.String
	j.Error = errMsg.String
	if keywords.Valid && keywords.String != "" {
		_ = json.Unmarshal([]byte(keywords.String), &j.TopKeywords)
	}
	return &j, nil
}

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// NewNullString converts empty strings to SQL NULL.
func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
