package crawl

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, &models.Summary{
		JobID:             "job-1",
		BaseURL:           "https://example.com/",
		OwnerID:           "alice",
		PagesVisited:      1200,
		PagesFailed:       3,
		TextAssetsCreated: 1100,
		ImagesFound:       40,
		ImagesDownloaded:  38,
		ImagesFailed:      2,
		TopKeywords:       []string{"garden", "tomato"},
		StopReason:        models.StopPageBudget,
		DurationSeconds:   1.5,
	})
	out := buf.String()
	for _, want := range []string{
		"Job job-1 completed in 1.5s (page_budget)",
		"1,200 visited, 3 failed",
		"Text assets: 1,100",
		"40 found, 38 downloaded, 2 failed",
		"Keywords:    garden, tomato",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("PrintSummary() output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		var buf bytes.Buffer
		PrintStatus(&buf, models.JobStatus{State: models.JobIdle})
		if got := buf.String(); got != "Crawl status: idle\n" {
			t.Errorf("PrintStatus(idle) = %q", got)
		}
	})

	t.Run("failed", func(t *testing.T) {
		start := time.Now().Add(-time.Minute)
		var buf bytes.Buffer
		PrintStatus(&buf, models.JobStatus{
			JobID:        "job-2",
			State:        models.JobFailed,
			BaseURL:      "https://example.com/",
			OwnerID:      "bob",
			StartTime:    &start,
			PagesVisited: 4,
			Error:        "crawl interrupted",
		})
		out := buf.String()
		for _, want := range []string{"Crawl status: failed", "Job:         job-2", "4 visited, 0 failed", "Error:       crawl interrupted", "minute ago"} {
			if !strings.Contains(out, want) {
				t.Errorf("PrintStatus(failed) output missing %q:\n%s", want, out)
			}
		}
	})
}
