package jobs

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/app"
	dbpkg "github.com/dtnitsch/persona-ingest/pkg/db"
)

// openDatabase opens the history database named by the configuration.
func openDatabase(c *cli.Context) (*dbpkg.DB, error) {
	cfg, _, err := app.LoadConfig(c)
	if err != nil {
		return nil, err
	}
	database, err := dbpkg.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// GetJobIDOrLatest returns the job id from args, or the latest job if not provided.
func GetJobIDOrLatest(c *cli.Context, database *dbpkg.DB) (string, error) {
	if c.NArg() > 0 {
		return c.Args().First(), nil
	}
	jobs, err := database.ListJobs("", 1)
	if err != nil {
		return "", fmt.Errorf("failed to get latest job: %w", err)
	}
	if len(jobs) == 0 {
		return "", fmt.Errorf("no jobs found. Run 'persona-ingest ingest --url \"...\" --owner <id>' first")
	}
	return jobs[0].JobID, nil
}
