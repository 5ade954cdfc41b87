// Package app builds the ingestion components from configuration. CLI actions
// and the HTTP server share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/persona-ingest/internal/common"
	"github.com/dtnitsch/persona-ingest/internal/config"
	"github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/db"
	"github.com/dtnitsch/persona-ingest/pkg/detector"
	"github.com/dtnitsch/persona-ingest/pkg/extractor"
	"github.com/dtnitsch/persona-ingest/pkg/fetcher"
	"github.com/dtnitsch/persona-ingest/pkg/filelock"
	"github.com/dtnitsch/persona-ingest/pkg/ingest"
	"github.com/dtnitsch/persona-ingest/pkg/jobstatus"
	"github.com/dtnitsch/persona-ingest/pkg/registry"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
	"github.com/dtnitsch/persona-ingest/pkg/telemetry"
)

// DefaultConfigPath is read when --config is not given; it may be absent.
const DefaultConfigPath = "persona-ingest.yaml"

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *storage.Store
	Registry *registry.Registry
	Assets   *assets.Service
	Tracker  *jobstatus.Tracker
	History  *db.DB
	Pipeline *ingest.Pipeline

	shutdownTelemetry func(context.Context) error
}

// LoadConfig reads the file named by the --config flag and builds the logger.
func LoadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	path := c.String("config")
	optional := !c.IsSet("config")
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, nil, err
	}
	logger := common.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Structured, c.Bool("quiet"))
	return cfg, logger, nil
}

// FromCLI loads configuration and builds the app.
func FromCLI(c *cli.Context) (*App, error) {
	cfg, logger, err := LoadConfig(c)
	if err != nil {
		return nil, err
	}
	return New(c.Context, cfg, logger)
}

// New opens storage, the registry and the history database. The crawl
// pipeline is built separately by InitPipeline.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	store, err := storage.NewStore(cfg.Storage.UploadsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset store: %w", err)
	}
	reg := registry.New(cfg.Storage.RegistryPath,
		registry.WithLogger(logger),
		registry.WithFileRemover(store),
		registry.WithLockOptions(filelock.Options{
			Timeout:       cfg.Lock.Timeout.Duration,
			RetryInterval: cfg.Lock.RetryInterval.Duration,
			StaleAfter:    cfg.Lock.StaleAfter.Duration,
		}),
	)
	history, err := db.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:            cfg,
		Logger:            logger,
		Store:             store,
		Registry:          reg,
		Assets:            assets.NewService(store, reg, logger),
		History:           history,
		shutdownTelemetry: shutdown,
	}
	return a, nil
}

// InitPipeline takes ownership of the status file and builds the crawl
// pipeline. Only processes that run crawls call it: loading the tracker
// finalizes a job left running by a dead process.
func (a *App) InitPipeline() error {
	if a.Pipeline != nil {
		return nil
	}
	tracker, err := jobstatus.NewTracker(a.Config.Storage.StatusPath, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to load crawl status: %w", err)
	}
	a.Tracker = tracker
	a.Pipeline = ingest.NewPipeline(a.pipelineDeps(), ingest.Options{
		MaxPages:         a.Config.Crawl.MaxPages,
		ImageConcurrency: a.Config.Images.Concurrency,
		ImageTimeout:     a.Config.Images.Timeout.Duration,
		TopKeywords:      a.Config.Crawl.TopKeywords,
	})
	return nil
}

func (a *App) pipelineDeps() ingest.Deps {
	cfg := a.Config
	limiter := fetcher.NewDomainLimiter(cfg.Crawl.PerDomainDelay.Duration, fetcher.RateLimit{
		Requests: cfg.Crawl.RateLimitPerDomain.Requests,
		Window:   cfg.Crawl.RateLimitPerDomain.Window.Duration,
	})
	pages := fetcher.NewFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		Limiter:      limiter,
		Logger:       a.Logger,
	})
	// Images share the politeness limiter but not the body cap.
	imgs := fetcher.NewFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Images.Timeout.Duration,
		MaxBodyBytes: cfg.Images.MaxSizeBytes,
		Limiter:      limiter,
		Logger:       a.Logger,
	})

	deps := ingest.Deps{
		Fetcher:   pages,
		Images:    imgs,
		Extractor: extractor.New(a.Logger),
		Assets:    a.Assets,
		Store:     a.Store,
		Tracker:   a.Tracker,
		History:   a.History,
		Logger:    a.Logger,
	}
	if cfg.Crawl.DetectLanguage {
		deps.Detector = detector.New()
	}
	if cfg.Rendering.Enabled {
		deps.Renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
			Timeout:         cfg.Rendering.Timeout.Duration,
			WaitForSelector: cfg.Rendering.WaitForSelector,
			CaptureDelay:    cfg.Rendering.CaptureDelay.Duration,
			UserAgent:       cfg.Crawl.UserAgent,
			MaxBodyBytes:    cfg.Crawl.MaxBodyBytes,
			Concurrency:     cfg.Rendering.ConcurrentSessions,
			Logger:          a.Logger,
		})
	}
	return deps
}

// Close releases the database and flushes pending spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}
