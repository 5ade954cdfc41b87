package models

import "time"

// JobState is the lifecycle of a crawl job.
type JobState string

const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Stop reasons recorded on a completed job.
const (
	StopQueueEmpty = "queue_empty"
	StopPageBudget = "page_budget"
)

// JobStatus is the persisted progress of the current (or last) crawl job.
// Counters are omitted while idle so pollers never see implied progress.
type JobStatus struct {
	JobID             string     `json:"jobId,omitempty"`
	State             JobState   `json:"state"`
	BaseURL           string     `json:"baseUrl,omitempty"`
	OwnerID           string     `json:"ownerId,omitempty"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	FinishTime        *time.Time `json:"finishTime,omitempty"`
	PagesVisited      int        `json:"pagesVisited,omitempty"`
	PagesFailed       int        `json:"pagesFailed,omitempty"`
	ImagesFound       int        `json:"imagesFound,omitempty"`
	ImagesDownloaded  int        `json:"imagesDownloaded,omitempty"`
	ImagesFailed      int        `json:"imagesFailed,omitempty"`
	TextAssetsCreated int        `json:"textAssetsCreated,omitempty"`
	InProgress        bool       `json:"inProgress"`
	Error             string     `json:"error,omitempty"`
	Message           string     `json:"message,omitempty"`
	Summary           *Summary   `json:"summary,omitempty"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

// Summary is returned by a finished ingestion and stored on the final status.
type Summary struct {
	JobID             string    `json:"jobId"`
	BaseURL           string    `json:"baseUrl"`
	OwnerID           string    `json:"ownerId"`
	PagesVisited      int       `json:"pagesVisited"`
	PagesFailed       int       `json:"pagesFailed"`
	TextAssetsCreated int       `json:"textAssetsCreated"`
	ImagesFound       int       `json:"imagesFound"`
	ImagesDownloaded  int       `json:"imagesDownloaded"`
	ImagesFailed      int       `json:"imagesFailed"`
	TopKeywords       []string  `json:"topKeywords,omitempty"`
	StopReason        string    `json:"stopReason"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	DurationSeconds   float64   `json:"durationSeconds"`
}
