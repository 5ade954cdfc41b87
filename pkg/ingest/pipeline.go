// Package ingest runs crawl jobs: it walks a site from a seed URL, stores the
// text of every page and then downloads the images it found.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dtnitsch/persona-ingest/internal/common"
	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/analytics"
	"github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/db"
	"github.com/dtnitsch/persona-ingest/pkg/detector"
	"github.com/dtnitsch/persona-ingest/pkg/extractor"
	"github.com/dtnitsch/persona-ingest/pkg/fetcher"
	"github.com/dtnitsch/persona-ingest/pkg/frontier"
	"github.com/dtnitsch/persona-ingest/pkg/images"
	"github.com/dtnitsch/persona-ingest/pkg/jobstatus"
	"github.com/dtnitsch/persona-ingest/pkg/mapreduce"
	"github.com/dtnitsch/persona-ingest/pkg/owner"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
	"github.com/dtnitsch/persona-ingest/pkg/telemetry"
	"github.com/dtnitsch/persona-ingest/pkg/urlnorm"
)

const (
	DefaultMaxPages    = 50
	DefaultTopKeywords = 10
)

var ErrInvalidURL = errors.New("url must be an absolute http(s) URL")

// PageFetcher retrieves HTML documents.
type PageFetcher interface {
	GetHtmlBytes(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// History records finished work outside the status file. Errors are logged,
// never fatal to a job.
type History interface {
	StartJob(jobID, baseURL, ownerID string, startedAt time.Time) error
	RecordPage(jobID string, p db.PageRecord) error
	FinishJob(jobID string, state models.JobState, summary *models.Summary, jobErr string) error
}

// Deps are the collaborators of a Pipeline. Renderer, History and Detector
// are optional.
type Deps struct {
	Fetcher   PageFetcher
	Images    images.Getter
	Renderer  fetcher.Renderer
	Extractor *extractor.Extractor
	Assets    *assets.Service
	Store     *storage.Store
	Tracker   *jobstatus.Tracker
	History   History
	Detector  *detector.Detector
	Logger    *slog.Logger
}

// Options tune a crawl.
type Options struct {
	MaxPages         int
	ImageConcurrency int
	ImageTimeout     time.Duration
	TopKeywords      int
}

// Pipeline runs one job at a time; the tracker enforces that.
type Pipeline struct {
	deps      Deps
	opts      Options
	logger    *slog.Logger
	analytics *analytics.Analytics
	tracer    trace.Tracer
	now       func() time.Time
}

func NewPipeline(deps Deps, opts Options) *Pipeline {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.TopKeywords <= 0 {
		opts.TopKeywords = DefaultTopKeywords
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:      deps,
		opts:      opts,
		logger:    logger,
		analytics: &analytics.Analytics{},
		tracer:    telemetry.Tracer(),
		now:       time.Now,
	}
}

// job is the state of one running crawl.
type job struct {
	id        string
	seed      string
	ownerID   string
	startedAt time.Time
}

// Request validates a raw URL and owner, returning their normalized forms.
func Request(rawURL, rawOwner string) (seed, ownerID string, err error) {
	cleaned, ok := common.ValidateURL(rawURL)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	seed, err = urlnorm.Normalize(cleaned)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	ownerID, err = owner.Canonical(rawOwner)
	if err != nil {
		return "", "", err
	}
	return seed, ownerID, nil
}

// Ingest crawls rawURL for ownerID and returns the summary of the finished
// job. Page and image failures are counted, not returned.
func (p *Pipeline) Ingest(ctx context.Context, rawURL, ownerID string) (*models.Summary, error) {
	j, err := p.begin(rawURL, ownerID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, j)
}

// begin validates input and claims the tracker for a new job.
func (p *Pipeline) begin(rawURL, rawOwner string) (*job, error) {
	seed, ownerID, err := Request(rawURL, rawOwner)
	if err != nil {
		return nil, err
	}
	j := &job{
		id:        uuid.NewString(),
		seed:      seed,
		ownerID:   ownerID,
		startedAt: p.now().UTC(),
	}
	if err := p.deps.Tracker.Begin(j.id, seed, ownerID); err != nil {
		if !errors.Is(err, jobstatus.ErrJobInProgress) {
			p.logger.Error("failed to start crawl job", "job_id", j.id, "url", seed, "error", err)
			p.recordStartFailure(j, err)
		}
		return nil, err
	}
	if p.deps.History != nil {
		if err := p.deps.History.StartJob(j.id, seed, ownerID, j.startedAt); err != nil {
			p.logger.Warn("failed to record job start", "job_id", j.id, "error", err)
		}
	}
	p.logger.Info("crawl job started", "job_id", j.id, "url", seed, "owner_id", ownerID, "max_pages", p.opts.MaxPages)
	return j, nil
}

func (p *Pipeline) recordStartFailure(j *job, jobErr error) {
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.StartJob(j.id, j.seed, j.ownerID, j.startedAt); err != nil {
		p.logger.Warn("failed to record job start", "job_id", j.id, "error", err)
		return
	}
	if err := p.deps.History.FinishJob(j.id, models.JobFailed, nil, jobErr.Error()); err != nil {
		p.logger.Warn("failed to record job failure", "job_id", j.id, "error", err)
	}
}

func (p *Pipeline) run(ctx context.Context, j *job) (*models.Summary, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.job", trace.WithAttributes(
		attribute.String("job.id", j.id),
		attribute.String("job.url", j.seed),
		attribute.String("job.owner_id", j.ownerID),
	))
	defer span.End()

	if _, err := p.deps.Store.EnsureOwnerDir(j.ownerID); err != nil {
		return nil, p.fail(span, j, fmt.Errorf("failed to prepare owner storage: %w", err))
	}

	state := frontier.New(j.seed, p.opts.MaxPages)
	found := frontier.NewURLSet()
	imagePages := make(map[string]string)
	keywords := mapreduce.NewAccumulator()

	for {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(span, j, fmt.Errorf("crawl interrupted: %w", err))
		}
		pageURL, ok := state.Next()
		if !ok {
			break
		}
		page := p.crawlPage(ctx, j, pageURL, keywords)
		if page == nil {
			continue
		}
		if final, err := urlnorm.Normalize(page.URL); err == nil && final != pageURL {
			state.MarkVisited(final)
		}

		var sameSite []string
		for _, link := range page.Links {
			if urlnorm.SameSite(j.seed, link) {
				sameSite = append(sameSite, link)
			}
		}
		state.Enqueue(sameSite...)

		if added := found.Add(page.Images...); added > 0 {
			for _, img := range page.Images {
				if _, seen := imagePages[img]; !seen {
					imagePages[img] = pageURL
				}
			}
			p.deps.Tracker.AddImagesFound(added)
		}
	}

	stopReason := models.StopQueueEmpty
	if state.BudgetSpent() && state.Pending() > 0 {
		stopReason = models.StopPageBudget
	}
	p.logger.Info("crawl phase finished", "job_id", j.id, "pages", state.Dequeued(), "stop_reason", stopReason, "images_found", found.Len())

	items := make([]images.Item, 0, found.Len())
	for _, img := range found.Items() {
		items = append(items, images.Item{URL: img, SourcePage: imagePages[img]})
	}
	downloader := images.NewDownloader(p.deps.Images, p.deps.Assets, images.Options{
		Concurrency: p.opts.ImageConcurrency,
		Timeout:     p.opts.ImageTimeout,
		OnResult:    p.deps.Tracker.RecordImage,
	}, p.logger)
	imgResult := downloader.Download(ctx, images.Batch{JobID: j.id, OwnerID: j.ownerID, Items: items})

	finished := p.now().UTC()
	snap := p.deps.Tracker.Snapshot()
	summary := &models.Summary{
		JobID:             j.id,
		BaseURL:           j.seed,
		OwnerID:           j.ownerID,
		PagesVisited:      snap.PagesVisited,
		PagesFailed:       snap.PagesFailed,
		TextAssetsCreated: snap.TextAssetsCreated,
		ImagesFound:       found.Len(),
		ImagesDownloaded:  imgResult.Downloaded,
		ImagesFailed:      imgResult.Failed,
		TopKeywords:       keywords.Top(p.opts.TopKeywords),
		StopReason:        stopReason,
		StartedAt:         j.startedAt,
		FinishedAt:        finished,
		DurationSeconds:   finished.Sub(j.startedAt).Seconds(),
	}

	if err := p.deps.Tracker.Complete(summary); err != nil {
		p.logger.Error("failed to persist final crawl status", "job_id", j.id, "error", err)
	}
	if p.deps.History != nil {
		if err := p.deps.History.FinishJob(j.id, models.JobCompleted, summary, ""); err != nil {
			p.logger.Warn("failed to record job result", "job_id", j.id, "error", err)
		}
	}
	span.SetAttributes(
		attribute.Int("job.pages_visited", summary.PagesVisited),
		attribute.Int("job.text_assets", summary.TextAssetsCreated),
		attribute.Int("job.images_downloaded", summary.ImagesDownloaded),
	)
	p.logger.Info("crawl job completed",
		"job_id", j.id,
		"pages_visited", summary.PagesVisited,
		"pages_failed", summary.PagesFailed,
		"text_assets", summary.TextAssetsCreated,
		"images_downloaded", summary.ImagesDownloaded,
		"images_failed", summary.ImagesFailed,
		"duration_s", summary.DurationSeconds,
	)
	return summary, nil
}

func (p *Pipeline) fail(span trace.Span, j *job, jobErr error) error {
	span.RecordError(jobErr)
	span.SetStatus(codes.Error, jobErr.Error())
	p.logger.Error("crawl job failed", "job_id", j.id, "url", j.seed, "error", jobErr)
	if err := p.deps.Tracker.Fail(jobErr); err != nil {
		p.logger.Error("failed to persist crawl failure", "job_id", j.id, "error", err)
	}
	if p.deps.History != nil {
		if err := p.deps.History.FinishJob(j.id, models.JobFailed, nil, jobErr.Error()); err != nil {
			p.logger.Warn("failed to record job failure", "job_id", j.id, "error", err)
		}
	}
	return jobErr
}

// crawlPage fetches, extracts and stores one page. It returns nil when the
// page could not be fetched or parsed; the failure is already recorded.
func (p *Pipeline) crawlPage(ctx context.Context, j *job, pageURL string, keywords *mapreduce.Accumulator) *models.Page {
	ctx, span := p.tracer.Start(ctx, "ingest.page", trace.WithAttributes(attribute.String("page.url", pageURL)))
	defer span.End()

	record := db.PageRecord{URL: pageURL, VisitedAt: p.now().UTC()}
	failed := func(err error) *models.Page {
		span.RecordError(err)
		p.logger.Warn("page skipped", "job_id", j.id, "url", pageURL, "error", err)
		p.deps.Tracker.RecordPage(false, true)
		record.Status = db.PageFailed
		record.Error = err.Error()
		p.recordPage(j, record)
		return nil
	}

	resp, err := p.deps.Fetcher.GetHtmlBytes(ctx, pageURL)
	if err != nil {
		return failed(err)
	}
	page, err := p.deps.Extractor.Extract(resp.FinalURL, resp.Body)
	if err != nil {
		return failed(fmt.Errorf("failed to extract page: %w", err))
	}

	if !page.HasText() && p.deps.Renderer != nil {
		if rendered := p.render(ctx, pageURL); rendered != nil {
			rendered.Links = append(page.Links, rendered.Links...)
			rendered.Images = append(page.Images, rendered.Images...)
			page = rendered
			record.Rendered = true
		}
	}
	record.LinksFound = len(page.Links)
	record.ImagesFound = len(page.Images)

	created := false
	if page.HasText() {
		asset, err := p.commitText(ctx, j, pageURL, page, keywords)
		if err != nil {
			return failed(fmt.Errorf("failed to store page text: %w", err))
		}
		created = true
		record.Status = db.PageStored
		record.AssetID = asset.ID
	} else {
		record.Status = db.PageNoText
		p.logger.Debug("page has no usable text", "job_id", j.id, "url", pageURL, "chars", len([]rune(page.Text)))
	}

	p.deps.Tracker.RecordPage(created, false)
	p.recordPage(j, record)
	return page
}

// render re-fetches a page through the browser and returns its extraction
// only when that produced text.
func (p *Pipeline) render(ctx context.Context, pageURL string) *models.Page {
	resp, err := p.deps.Renderer.Render(ctx, pageURL)
	if err != nil {
		p.logger.Warn("render fallback failed", "url", pageURL, "error", err)
		return nil
	}
	page, err := p.deps.Extractor.Extract(resp.FinalURL, resp.Body)
	if err != nil || !page.HasText() {
		return nil
	}
	page.TextSource = "rendered:" + page.TextSource
	return page
}

func (p *Pipeline) commitText(ctx context.Context, j *job, pageURL string, page *models.Page, keywords *mapreduce.Accumulator) (models.Asset, error) {
	counts := mapreduce.Map(page.Text, p.analytics)
	keywords.Add(counts)

	meta := map[string]any{
		models.MetaSource:       models.SourceCrawl,
		models.MetaSourceURL:    pageURL,
		models.MetaCrawlContext: j.seed,
		models.MetaJobID:        j.id,
		models.MetaWordCount:    page.WordCount(),
		models.MetaDomainType:   detector.DomainType(pageURL),
	}
	if page.Title != "" {
		meta[models.MetaTitle] = page.Title
	}
	if top := mapreduce.TopKeywords(counts, p.opts.TopKeywords); len(top) > 0 {
		meta[models.MetaTopKeywords] = top
	}
	if p.deps.Detector != nil {
		if lang, ok := p.deps.Detector.Language(page.Text); ok {
			meta[models.MetaLanguage] = lang.Code
			meta[models.MetaLanguageConfidence] = lang.Confidence
		}
	}

	return p.deps.Assets.Commit(ctx, assets.CommitRequest{
		OwnerID:          j.ownerID,
		OriginalName:     pageFileName(pageURL, page.Title),
		MimeType:         "text/plain",
		Ext:              ".txt",
		Source:           storage.Bytes{Data: []byte(page.Text)},
		ExtractedContent: page.Text,
		Metadata:         meta,
	})
}

func (p *Pipeline) recordPage(j *job, record db.PageRecord) {
	if p.deps.History == nil {
		return
	}
	if err := p.deps.History.RecordPage(j.id, record); err != nil {
		p.logger.Warn("failed to record page", "job_id", j.id, "url", record.URL, "error", err)
	}
}

// pageFileName names a text asset after the page title, falling back to the
// URL host and path.
func pageFileName(pageURL, title string) string {
	name := strings.TrimSpace(strings.NewReplacer("/", " ", `\`, " ").Replace(title))
	if name == "" {
		if u, err := url.Parse(pageURL); err == nil {
			name = u.Hostname()
			if p := strings.Trim(u.Path, "/"); p != "" {
				name += "_" + strings.ReplaceAll(strings.TrimSuffix(p, path.Ext(p)), "/", "_")
			}
		}
	}
	if name == "" {
		name = "page"
	}
	if len([]rune(name)) > 80 {
		name = string([]rune(name)[:80])
	}
	return name + ".txt"
}
