// Package jobstatus holds the progress of the single in-flight crawl job and
// mirrors it to a JSON file that other processes poll.
package jobstatus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

const DefaultPath = "data/crawl_status.json"

var (
	ErrJobInProgress     = errors.New("a crawl job is already in progress")
	ErrStatusUnavailable = errors.New("crawl status unavailable")
)

// Tracker is safe for concurrent use. All counters only grow within a job.
type Tracker struct {
	mu      sync.Mutex
	path    string
	current models.JobStatus
	logger  *slog.Logger
	now     func() time.Time
}

// Idle is the status reported before any job has run.
func Idle() models.JobStatus {
	return models.JobStatus{State: models.JobIdle, Message: "no crawl job has run"}
}

// NewTracker loads the last persisted status. A job that was still marked in
// progress belonged to a process that died, so it is recorded as failed.
func NewTracker(path string, logger *slog.Logger) (*Tracker, error) {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{path: path, current: Idle(), logger: logger, now: time.Now}

	last, err := Read(path)
	switch {
	case errors.Is(err, ErrStatusUnavailable):
		logger.Warn("crawl status file unreadable, starting idle", "path", path, "error", err)
	case err != nil:
		return nil, err
	default:
		t.current = last
	}

	if t.current.InProgress {
		t.current.InProgress = false
		t.current.State = models.JobFailed
		t.current.Error = "interrupted: process exited while the job was running"
		t.stamp()
		if err := t.persist(); err != nil {
			return nil, err
		}
		logger.Warn("marked interrupted crawl job as failed", "job_id", t.current.JobID)
	}
	return t, nil
}

func (t *Tracker) Path() string {
	return t.path
}

// Begin starts a new job, replacing the previous terminal status.
func (t *Tracker) Begin(jobID, baseURL, ownerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.InProgress {
		return ErrJobInProgress
	}
	now := t.now().UTC()
	t.current = models.JobStatus{
		JobID:      jobID,
		State:      models.JobRunning,
		BaseURL:    baseURL,
		OwnerID:    ownerID,
		StartTime:  &now,
		InProgress: true,
	}
	t.stamp()
	if err := t.persist(); err != nil {
		// Keep the attempt visible as failed.
		t.current.State = models.JobFailed
		t.current.InProgress = false
		t.current.FinishTime = &now
		t.current.Error = err.Error()
		return err
	}
	return nil
}

// RecordPage counts one dequeued page.
func (t *Tracker) RecordPage(textCreated, failed bool) {
	t.update(func(s *models.JobStatus) {
		s.PagesVisited++
		if textCreated {
			s.TextAssetsCreated++
		}
		if failed {
			s.PagesFailed++
		}
	})
}

// AddImagesFound grows the discovered image count by n new images.
func (t *Tracker) AddImagesFound(n int) {
	if n <= 0 {
		return
	}
	t.update(func(s *models.JobStatus) { s.ImagesFound += n })
}

// RecordImage counts one finished image download.
func (t *Tracker) RecordImage(ok bool) {
	t.update(func(s *models.JobStatus) {
		if ok {
			s.ImagesDownloaded++
		} else {
			s.ImagesFailed++
		}
	})
}

// Complete finalizes the running job with its summary.
func (t *Tracker) Complete(summary *models.Summary) error {
	return t.finish(models.JobCompleted, "", summary)
}

// Fail finalizes the running job with err.
func (t *Tracker) Fail(jobErr error) error {
	msg := "unknown error"
	if jobErr != nil {
		msg = jobErr.Error()
	}
	return t.finish(models.JobFailed, msg, nil)
}

func (t *Tracker) finish(state models.JobState, msg string, summary *models.Summary) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.current.InProgress {
		return fmt.Errorf("no crawl job in progress")
	}
	now := t.now().UTC()
	t.current.State = state
	t.current.InProgress = false
	t.current.FinishTime = &now
	t.current.Error = msg
	t.current.Summary = summary
	t.stamp()
	return t.persist()
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() models.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.current
	if s.Summary != nil {
		sum := *s.Summary
		s.Summary = &sum
	}
	return s
}

// update applies fn to a running job and persists the result. Persist
// failures are logged; progress keeps counting in memory.
func (t *Tracker) update(fn func(*models.JobStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.InProgress {
		return
	}
	fn(&t.current)
	t.stamp()
	if err := t.persist(); err != nil {
		t.logger.Warn("failed to persist crawl status", "path", t.path, "error", err)
	}
}

func (t *Tracker) stamp() {
	now := t.now().UTC()
	t.current.UpdatedAt = &now
	t.current.Message = ""
}

func (t *Tracker) persist() error {
	data, err := json.MarshalIndent(t.current, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode crawl status: %w", err)
	}
	if err := storage.WriteFileAtomic(t.path, data); err != nil {
		return fmt.Errorf("failed to write crawl status: %w", err)
	}
	return nil
}

// Read loads a status file written by any process. A missing file reads as
// Idle; an unparsable one returns ErrStatusUnavailable.
func Read(path string) (models.JobStatus, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Idle(), nil
	}
	if err != nil {
		return models.JobStatus{}, fmt.Errorf("failed to read crawl status: %w", err)
	}
	var s models.JobStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return models.JobStatus{}, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}
	if s.State == "" {
		return models.JobStatus{}, fmt.Errorf("%w: missing state", ErrStatusUnavailable)
	}
	return s, nil
}
