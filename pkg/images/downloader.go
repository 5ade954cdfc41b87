// Package images downloads the images a crawl discovered and commits each one
// as an asset. Individual failures are logged and skipped.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/fetcher"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

const (
	DefaultConcurrency = 5
	DefaultTimeout     = 15 * time.Second
)

var ErrNotImage = errors.New("not an image")

// Getter fetches raw bytes; *fetcher.Fetcher satisfies it.
type Getter interface {
	GetBytes(ctx context.Context, rawURL string, timeout time.Duration) (*fetcher.Response, error)
}

// Committer stores an asset; *assets.Service satisfies it.
type Committer interface {
	Commit(ctx context.Context, req assets.CommitRequest) (models.Asset, error)
}

// Item is one image and the page it was found on.
type Item struct {
	URL        string
	SourcePage string
}

// Batch is the set of images one job found.
type Batch struct {
	JobID   string
	OwnerID string
	Items   []Item
}

// Result counts outcomes for a batch.
type Result struct {
	Downloaded int
	Failed     int
	AssetIDs   []string
}

type Options struct {
	Concurrency int
	Timeout     time.Duration
	// OnResult is called after every image, success or not.
	OnResult func(ok bool)
}

type Downloader struct {
	getter    Getter
	committer Committer
	opts      Options
	logger    *slog.Logger
}

func NewDownloader(getter Getter, committer Committer, opts Options, logger *slog.Logger) *Downloader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{getter: getter, committer: committer, opts: opts, logger: logger}
}

// Download fetches every URL in the batch with at most Concurrency in flight.
func (d *Downloader) Download(ctx context.Context, batch Batch) Result {
	var (
		mu  sync.Mutex
		res Result
		g   errgroup.Group
	)
	g.SetLimit(d.opts.Concurrency)

	for _, item := range batch.Items {
		g.Go(func() error {
			asset, err := d.one(ctx, batch, item)

			mu.Lock()
			if err != nil {
				res.Failed++
			} else {
				res.Downloaded++
				res.AssetIDs = append(res.AssetIDs, asset.ID)
			}
			mu.Unlock()

			if err != nil {
				d.logger.Warn("image download failed", "url", item.URL, "owner_id", batch.OwnerID, "error", err)
			}
			if d.opts.OnResult != nil {
				d.opts.OnResult(err == nil)
			}
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("image batch finished", "job_id", batch.JobID, "owner_id", batch.OwnerID,
		"downloaded", res.Downloaded, "failed", res.Failed)
	return res
}

func (d *Downloader) one(ctx context.Context, batch Batch, item Item) (models.Asset, error) {
	if err := ctx.Err(); err != nil {
		return models.Asset{}, err
	}
	resp, err := d.getter.GetBytes(ctx, item.URL, d.opts.Timeout)
	if err != nil {
		return models.Asset{}, err
	}

	mimeType := detectMimeType(resp.ContentType, resp.Body)
	if !strings.HasPrefix(mimeType, "image/") {
		return models.Asset{}, fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}

	name := imageName(item.URL)
	meta := map[string]any{
		models.MetaSource:     models.SourceCrawl,
		models.MetaSourceURL:  item.URL,
		models.MetaSourcePage: item.SourcePage,
		models.MetaJobID:      batch.JobID,
	}
	if w, h, ok := Dimensions(resp.Body); ok {
		meta[models.MetaWidth] = w
		meta[models.MetaHeight] = h
	}

	return d.committer.Commit(ctx, assets.CommitRequest{
		OwnerID:      batch.OwnerID,
		OriginalName: name,
		MimeType:     mimeType,
		Ext:          pickExtension(name, mimeType),
		Source:       storage.Bytes{Data: resp.Body},
		Metadata:     meta,
	})
}

// Dimensions decodes only the image header. ok is false for formats that
// cannot be decoded (svg, avif, ico).
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

func detectMimeType(header string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	if sniffed == "text/xml" && bytes.Contains(body[:min(len(body), 512)], []byte("<svg")) {
		return "image/svg+xml"
	}
	return sniffed
}

// imageName is the last path segment of the image URL.
func imageName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "image"
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}

func pickExtension(name, mimeType string) string {
	if ext := storage.Extension(name); ext != "" {
		return ext
	}
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
