package jobs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/common"
	dbpkg "github.com/dtnitsch/persona-ingest/pkg/db"
	"github.com/dtnitsch/persona-ingest/pkg/owner"
)

func ListAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	ownerID := ""
	if raw := c.String("owner"); raw != "" {
		if ownerID, err = owner.Canonical(raw); err != nil {
			return err
		}
	}
	jobs, err := database.ListJobs(ownerID, c.Int("limit"))
	if err != nil {
		return err
	}

	handled, err := common.WriteStructured(os.Stdout, c.String("format"), jobs)
	if handled || err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}
	PrintJobs(os.Stdout, jobs)
	fmt.Printf("\nTotal: %d jobs\n", len(jobs))
	fmt.Printf("\nTip: Use 'persona-ingest jobs show <id>' to see visited pages\n")
	return nil
}

// PrintJobs writes one line per job.
func PrintJobs(w io.Writer, jobs []dbpkg.Job) {
	fmt.Fprintf(w, "%-36s %-10s %-12s %-14s %-6s %-6s %-7s %s\n",
		"Job", "State", "Owner", "Started", "Pages", "Text", "Images", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, j := range jobs {
		fmt.Fprintf(w, "%-36s %-10s %-12s %-14s %-6d %-6d %-7s %s\n",
			j.JobID,
			j.State,
			j.OwnerID,
			humanize.Time(j.StartedAt),
			j.PagesVisited,
			j.TextAssets,
			fmt.Sprintf("%d/%d", j.ImagesDownloaded, j.ImagesFound),
			j.BaseURL,
		)
	}
}

func ShowAction(c *cli.Context) error {
	database, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer database.Close()

	jobID, err := GetJobIDOrLatest(c, database)
	if err != nil {
		return err
	}
	job, ok, err := database.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if !ok {
		return cli.Exit(fmt.Sprintf("Job %s not found", jobID), 1)
	}
	pages, err := database.GetJobPages(jobID)
	if err != nil {
		return err
	}

	detail := struct {
		*dbpkg.Job
		Pages []dbpkg.PageRecord `json:"pages"`
	}{job, pages}
	handled, err := common.WriteStructured(os.Stdout, c.String("format"), detail)
	if handled || err != nil {
		return err
	}
	PrintJob(os.Stdout, job, pages)
	return nil
}

// PrintJob writes a job and its page outcomes.
func PrintJob(w io.Writer, job *dbpkg.Job, pages []dbpkg.PageRecord) {
	fmt.Fprintf(w, "Job %s\n", job.JobID)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "State:       %s\n", job.State)
	fmt.Fprintf(w, "Site:        %s\n", job.BaseURL)
	fmt.Fprintf(w, "Owner:       %s\n", job.OwnerID)
	fmt.Fprintf(w, "Started:     %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
	if job.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:    %s (%s)\n", job.FinishedAt.Format("2006-01-02 15:04:05"), job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Pages:       %d visited, %d failed\n", job.PagesVisited, job.PagesFailed)
	fmt.Fprintf(w, "Text assets: %d\n", job.TextAssets)
	fmt.Fprintf(w, "Images:      %d found, %d downloaded, %d failed\n", job.ImagesFound, job.ImagesDownloaded, job.ImagesFailed)
	if job.StopReason != "" {
		fmt.Fprintf(w, "Stopped:     %s\n", job.StopReason)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", job.Error)
	}
	if len(job.TopKeywords) > 0 {
		fmt.Fprintf(w, "Keywords:    %s\n", strings.Join(job.TopKeywords, ", "))
	}

	if len(pages) == 0 {
		return
	}
	fmt.Fprintf(w, "\nPages (%d):\n", len(pages))
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for i, p := range pages {
		fmt.Fprintf(w, "%2d. [%s] %s\n", i+1, p.Status, p.URL)
		switch {
		case p.Error != "":
			fmt.Fprintf(w, "    Error: %s\n", p.Error)
		case p.AssetID != "":
			fmt.Fprintf(w, "    Asset: %s | Links: %d | Images: %d\n", p.AssetID, p.LinksFound, p.ImagesFound)
		}
	}
}
