package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/app"
	"github.com/dtnitsch/persona-ingest/internal/assets"
	"github.com/dtnitsch/persona-ingest/internal/crawl"
	"github.com/dtnitsch/persona-ingest/internal/jobs"
	"github.com/dtnitsch/persona-ingest/internal/serve"
	"github.com/dtnitsch/persona-ingest/pkg/help"
)

var formatFlag = &cli.StringFlag{
	Name:  "format",
	Value: "text",
	Usage: "Output format: text, json, yaml",
}

func main() {
	cliApp := &cli.App{
		Name:  "persona-ingest",
		Usage: "Crawl websites and uploads into a per-owner asset store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   app.DefaultConfigPath,
				Usage:   "Path to the YAML config file (optional unless set)",
				EnvVars: []string{"PERSONA_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve.ServeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address (overrides server.addr)"},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Crawl a site in the foreground and store its text and images",
				Action: crawl.IngestAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Seed URL"},
					&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner id the assets belong to"},
					&cli.IntFlag{Name: "max-pages", Usage: "Page budget (overrides crawl.max_pages)"},
					formatFlag,
				},
			},
			{
				Name:   "status",
				Usage:  "Show the current or last crawl job",
				Action: crawl.StatusAction,
				Flags:  []cli.Flag{formatFlag},
			},
			{
				Name:  "assets",
				Usage: "Inspect and manage stored assets",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List assets, optionally for one owner",
						Action: assets.ListAction,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Filter by owner id"},
							formatFlag,
						},
					},
					{
						Name:      "show",
						Usage:     "Show one asset",
						ArgsUsage: "<id>",
						Action:    assets.ShowAction,
						Flags:     []cli.Flag{formatFlag},
					},
					{
						Name:      "delete",
						Usage:     "Delete an asset and its file",
						ArgsUsage: "<id>",
						Action:    assets.DeleteAction,
					},
					{
						Name:   "add",
						Usage:  "Store a local file for an owner",
						Action: assets.AddAction,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Path of the file to add"},
							&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owner id"},
							&cli.StringFlag{Name: "mime-type", Usage: "Declared MIME type (default: from extension)"},
							&cli.BoolFlag{Name: "move", Usage: "Move the file into the store instead of copying"},
							formatFlag,
						},
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "Browse crawl job history",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List recent jobs",
						Action: jobs.ListAction,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Filter by owner id"},
							&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum jobs to show"},
							formatFlag,
						},
					},
					{
						Name:      "show",
						Usage:     "Show a job and its pages (latest when no id is given)",
						ArgsUsage: "[id]",
						Action:    jobs.ShowAction,
						Flags:     []cli.Flag{formatFlag},
					},
				},
			},
			{
				Name:  "quickstart",
				Usage: "Print example commands",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
