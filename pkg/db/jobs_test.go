package db

import (
	"slices"
	"testing"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Use in-memory database for tests
	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = openDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func TestStartAndFinishJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	if err := db.StartJob("job-1", "https://example.com/", "alice", start); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}

	job, ok, err := db.GetJob("job-1")
	if err != nil || !ok {
		t.Fatalf("GetJob() = %v, %v", ok, err)
	}
	if job.State != string(models.JobRunning) || !job.StartedAt.Equal(start) || job.FinishedAt != nil {
		t.Errorf("running job = %+v", job)
	}

	summary := &models.Summary{
		JobID:             "job-1",
		PagesVisited:      5,
		PagesFailed:       1,
		TextAssetsCreated: 3,
		ImagesFound:       7,
		ImagesDownloaded:  6,
		ImagesFailed:      1,
		TopKeywords:       []string{"rope:4", "crag:2"},
		StopReason:        models.StopPageBudget,
		FinishedAt:        start.Add(time.Minute),
	}
	if err := db.FinishJob("job-1", models.JobCompleted, summary, ""); err != nil {
		t.Fatalf("FinishJob() error = %v", err)
	}

	job, _, err = db.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.State != string(models.JobCompleted) {
		t.Errorf("State = %q, want completed", job.State)
	}
	if job.PagesVisited != 5 || job.TextAssets != 3 || job.ImagesDownloaded != 6 || job.StopReason != models.StopPageBudget {
		t.Errorf("finished job = %+v", job)
	}
	if !slices.Equal(job.TopKeywords, summary.TopKeywords) {
		t.Errorf("TopKeywords = %v, want %v", job.TopKeywords, summary.TopKeywords)
	}
	if job.FinishedAt == nil || !job.FinishedAt.Equal(summary.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", job.FinishedAt, summary.FinishedAt)
	}
}

func TestFinishFailedJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := db.StartJob("job-f", "https://example.com/", "alice", time.Now()); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	if err := db.FinishJob("job-f", models.JobFailed, nil, "owner dir unwritable"); err != nil {
		t.Fatalf("FinishJob() error = %v", err)
	}
	job, _, err := db.GetJob("job-f")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.State != string(models.JobFailed) || job.Error != "owner dir unwritable" {
		t.Errorf("failed job = %+v", job)
	}
}

func TestFinishUnknownJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if err := db.FinishJob("nope", models.JobCompleted, nil, ""); err == nil {
		t.Error("FinishJob() on unknown job error = nil")
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	job, ok, err := db.GetJob("missing")
	if err != nil || ok || job != nil {
		t.Errorf("GetJob(missing) = %v, %v, %v; want nil, false, nil", job, ok, err)
	}
}

func TestRecordAndListPages(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := db.StartJob("job-1", "https://example.com/", "alice", time.Now()); err != nil {
		t.Fatalf("StartJob() error = %v", err)
	}
	pages := []PageRecord{
		{URL: "https://example.com/", Status: PageStored, AssetID: "a1", LinksFound: 4, ImagesFound: 2},
		{URL: "https://example.com/empty", Status: PageNoText},
		{URL: "https://example.com/broken", Status: PageFailed, Error: "status code: 500"},
	}
	for _, p := range pages {
		if err := db.RecordPage("job-1", p); err != nil {
			t.Fatalf("RecordPage() error = %v", err)
		}
	}

	got, err := db.GetJobPages("job-1")
	if err != nil {
		t.Fatalf("GetJobPages() error = %v", err)
	}
	if len(got) != len(pages) {
		t.Fatalf("GetJobPages() len = %d, want %d", len(got), len(pages))
	}
	for i := range pages {
		if got[i].URL != pages[i].URL || got[i].Status != pages[i].Status ||
			got[i].AssetID != pages[i].AssetID || got[i].Error != pages[i].Error {
			t.Errorf("page %d = %+v, want %+v", i, got[i], pages[i])
		}
		if got[i].VisitedAt.IsZero() {
			t.Errorf("page %d VisitedAt not set", i)
		}
	}
}

func TestRecordPageRequiresJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if err := db.RecordPage("ghost", PageRecord{URL: "https://example.com/", Status: PageStored}); err == nil {
		t.Error("RecordPage() for unknown job error = nil, want foreign key error")
	}
}

func TestListJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	jobs := []struct {
		id, owner string
		offset    time.Duration
	}{
		{"j1", "alice", 0},
		{"j2", "bob", time.Hour},
		{"j3", "alice", 2 * time.Hour},
	}
	for _, j := range jobs {
		if err := db.StartJob(j.id, "https://example.com/", j.owner, base.Add(j.offset)); err != nil {
			t.Fatalf("StartJob() error = %v", err)
		}
	}

	all, err := db.ListJobs("", 0)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(all) != 3 || all[0].JobID != "j3" || all[2].JobID != "j1" {
		t.Errorf("ListJobs() order = %v", jobIDs(all))
	}

	alice, err := db.ListJobs("alice", 1)
	if err != nil {
		t.Fatalf("ListJobs(alice) error = %v", err)
	}
	if len(alice) != 1 || alice[0].JobID != "j3" {
		t.Errorf("ListJobs(alice, 1) = %v", jobIDs(alice))
	}
}

func jobIDs(jobs []Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.JobID
	}
	return ids
}
