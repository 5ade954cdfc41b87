package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer produces the DOM of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (*Response, error)
}

// RenderOptions configures headless Chrome rendering.
type RenderOptions struct {
	Timeout         time.Duration
	WaitForSelector string
	CaptureDelay    time.Duration
	UserAgent       string
	MaxBodyBytes    int64
	Concurrency     int
	Logger          *slog.Logger
}

// ChromedpRenderer renders pages in headless Chrome with bounded sessions.
type ChromedpRenderer struct {
	opts      RenderOptions
	semaphore chan struct{}
	logger    *slog.Logger
}

func NewChromedpRenderer(opts RenderOptions) *ChromedpRenderer {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.CaptureDelay <= 0 {
		opts.CaptureDelay = 1500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpRenderer{
		opts:      opts,
		semaphore: make(chan struct{}, opts.Concurrency),
		logger:    logger,
	}
}

// Render navigates to rawURL and returns the outer HTML of the final DOM.
func (r *ChromedpRenderer) Render(parent context.Context, rawURL string) (*Response, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-parent.Done():
		return nil, parent.Err()
	}

	ctx, cancel := context.WithTimeout(parent, r.opts.Timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(r.opts.UserAgent),
	)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	actions := []chromedp.Action{chromedp.Navigate(rawURL)}
	if sel := strings.TrimSpace(r.opts.WaitForSelector); sel != "" {
		actions = append(actions, chromedp.WaitReady(sel, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(r.opts.CaptureDelay))
	}

	var markup, finalURL string
	actions = append(actions,
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	start := time.Now()
	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if int64(len(markup)) > r.opts.MaxBodyBytes {
		markup = markup[:r.opts.MaxBodyBytes]
	}
	if finalURL == "" {
		finalURL = rawURL
	}

	r.logger.Debug("rendered", "url", rawURL, "final_url", finalURL,
		"html_bytes", len(markup), "latency_ms", time.Since(start).Milliseconds())

	return &Response{
		URL:         rawURL,
		FinalURL:    finalURL,
		Body:        []byte(markup),
		ContentType: "text/html; charset=utf-8",
		StatusCode:  200,
		Rendered:    true,
	}, nil
}
