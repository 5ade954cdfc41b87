package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

const (
	DefaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 10 << 20

	acceptHTML  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptImage = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

var (
	ErrNotHTML      = errors.New("response is not HTML")
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)

// Options configures a Fetcher.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	Limiter      *DomainLimiter
	Logger       *slog.Logger
}

// Response is a fetched document.
type Response struct {
	URL         string
	FinalURL    string
	Body        []byte
	ContentType string
	StatusCode  int
	Rendered    bool
}

type Fetcher struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

func NewFetcher(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		// Timeouts are applied per request through the context.
		client: &http.Client{},
		opts:   opts,
		logger: logger,
	}
}

// GetHtmlBytes fetches a page and fails unless it is a 200 HTML response.
func (f *Fetcher) GetHtmlBytes(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := f.get(ctx, rawURL, acceptHTML, f.opts.Timeout)
	if err != nil {
		return nil, err
	}
	if !isHTML(resp.ContentType) {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, resp.ContentType)
	}
	return resp, nil
}

// GetBytes fetches any resource with its own timeout. Zero uses the default.
func (f *Fetcher) GetBytes(ctx context.Context, rawURL string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = f.opts.Timeout
	}
	return f.get(ctx, rawURL, acceptImage, timeout)
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept string, timeout time.Duration) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if err := f.opts.Limiter.Wait(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to fetch %s, status code: %d", rawURL, resp.StatusCode)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	f.logger.Debug("fetched", "url", rawURL, "final_url", finalURL,
		"status", resp.StatusCode, "bytes", len(body), "latency_ms", time.Since(start).Milliseconds())

	return &Response{
		URL:         rawURL,
		FinalURL:    finalURL,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	var closer io.Closer

	// The transport only decodes gzip transparently when it set the header itself.
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader, closer = gz, gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader, closer = fl, fl
	}
	if closer != nil {
		defer closer.Close()
	}

	body, err := io.ReadAll(io.LimitReader(reader, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.opts.MaxBodyBytes)
	}
	return body, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" {
		return true
	}
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
