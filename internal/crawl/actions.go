package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/app"
	"github.com/dtnitsch/persona-ingest/internal/common"
	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/jobstatus"
)

// IngestAction crawls one site in the foreground and prints the summary.
func IngestAction(c *cli.Context) error {
	if c.String("url") == "" || c.String("owner") == "" {
		fmt.Fprintln(os.Stderr, "Error: --url and --owner are required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, `  persona-ingest ingest --url "https://example.com" --owner alice`)
		return cli.Exit("", 1)
	}

	a, err := app.FromCLI(c)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	if c.IsSet("max-pages") {
		a.Config.Crawl.MaxPages = c.Int("max-pages")
	}
	if err := a.InitPipeline(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := a.Pipeline.Ingest(ctx, c.String("url"), c.String("owner"))
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	handled, err := common.WriteStructured(os.Stdout, c.String("format"), summary)
	if handled || err != nil {
		return err
	}
	PrintSummary(os.Stdout, summary)
	return nil
}

// StatusAction prints the current or last crawl job. It only reads the
// status file, so it is safe to run next to a serving process.
func StatusAction(c *cli.Context) error {
	cfg, _, err := app.LoadConfig(c)
	if err != nil {
		return err
	}

	status, err := jobstatus.Read(cfg.Storage.StatusPath)
	if errors.Is(err, jobstatus.ErrStatusUnavailable) {
		unavailable := map[string]any{"state": "unavailable", "inProgress": false}
		handled, werr := common.WriteStructured(os.Stdout, c.String("format"), unavailable)
		if !handled && werr == nil {
			fmt.Println("Crawl status: unavailable")
		}
		return werr
	}
	if err != nil {
		return err
	}

	handled, err := common.WriteStructured(os.Stdout, c.String("format"), status)
	if handled || err != nil {
		return err
	}
	PrintStatus(os.Stdout, status)
	return nil
}

// PrintSummary writes a short human readable job summary.
func PrintSummary(w io.Writer, s *models.Summary) {
	fmt.Fprintf(w, "Job %s completed in %s (%s)\n", s.JobID,
		time.Duration(s.DurationSeconds*float64(time.Second)).Round(time.Millisecond), s.StopReason)
	fmt.Fprintf(w, "  Site:        %s\n", s.BaseURL)
	fmt.Fprintf(w, "  Owner:       %s\n", s.OwnerID)
	fmt.Fprintf(w, "  Pages:       %s visited, %s failed\n", humanize.Comma(int64(s.PagesVisited)), humanize.Comma(int64(s.PagesFailed)))
	fmt.Fprintf(w, "  Text assets: %s\n", humanize.Comma(int64(s.TextAssetsCreated)))
	fmt.Fprintf(w, "  Images:      %s found, %s downloaded, %s failed\n",
		humanize.Comma(int64(s.ImagesFound)), humanize.Comma(int64(s.ImagesDownloaded)), humanize.Comma(int64(s.ImagesFailed)))
	if len(s.TopKeywords) > 0 {
		fmt.Fprintf(w, "  Keywords:    %s\n", strings.Join(s.TopKeywords, ", "))
	}
}

// PrintStatus writes the tracker state for humans.
func PrintStatus(w io.Writer, s models.JobStatus) {
	fmt.Fprintf(w, "Crawl status: %s\n", s.State)
	if s.State == models.JobIdle {
		if s.Message != "" {
			fmt.Fprintf(w, "  %s\n", s.Message)
		}
		return
	}
	fmt.Fprintf(w, "  Job:         %s\n", s.JobID)
	fmt.Fprintf(w, "  Site:        %s\n", s.BaseURL)
	fmt.Fprintf(w, "  Owner:       %s\n", s.OwnerID)
	if s.StartTime != nil {
		fmt.Fprintf(w, "  Started:     %s (%s)\n", s.StartTime.Format(time.RFC3339), humanize.Time(*s.StartTime))
	}
	if s.FinishTime != nil {
		fmt.Fprintf(w, "  Finished:    %s (%s)\n", s.FinishTime.Format(time.RFC3339), humanize.Time(*s.FinishTime))
	}
	fmt.Fprintf(w, "  Pages:       %d visited, %d failed\n", s.PagesVisited, s.PagesFailed)
	fmt.Fprintf(w, "  Text assets: %d\n", s.TextAssetsCreated)
	fmt.Fprintf(w, "  Images:      %d found, %d downloaded, %d failed\n", s.ImagesFound, s.ImagesDownloaded, s.ImagesFailed)
	if s.Error != "" {
		fmt.Fprintf(w, "  Error:       %s\n", s.Error)
	}
}
