package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/fetcher"
	"github.com/dtnitsch/persona-ingest/pkg/filelock"
	"github.com/dtnitsch/persona-ingest/pkg/registry"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func setupTestDownloader(t *testing.T, opts Options) (*Downloader, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	reg := registry.New(filepath.Join(dir, "assets.json"),
		registry.WithLogger(logger),
		registry.WithLockOptions(filelock.Options{Timeout: 5 * time.Second, RetryInterval: time.Millisecond}))
	svc := assets.NewService(store, reg, logger)
	return NewDownloader(fetcher.NewFetcher(fetcher.Options{}), svc, opts, logger), reg
}

func TestDownloadCommitsImagesAndSkipsFailures(t *testing.T) {
	pic := pngBytes(t, 3, 2)
	mux := http.NewServeMux()
	mux.HandleFunc("/img/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pic)
	})
	mux.HandleFunc("/img/noext", func(w http.ResponseWriter, r *http.Request) {
		// No content type: the body is sniffed.
		w.Header().Set("Content-Type", "")
		_, _ = w.Write(pic)
	})
	mux.HandleFunc("/img/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var callbacks atomic.Int32
	d, reg := setupTestDownloader(t, Options{OnResult: func(bool) { callbacks.Add(1) }})

	var items []Item
	for _, p := range []string{"/img/logo.png", "/img/missing.png", "/img/page.html", "/img/noext"} {
		items = append(items, Item{URL: srv.URL + p, SourcePage: srv.URL + "/"})
	}
	res := d.Download(context.Background(), Batch{JobID: "job-1", OwnerID: "alice", Items: items})

	if res.Downloaded != 2 || res.Failed != 2 {
		t.Errorf("Download() = %+v, want 2 downloaded and 2 failed", res)
	}
	if callbacks.Load() != 4 {
		t.Errorf("OnResult called %d times, want 4", callbacks.Load())
	}

	all, err := reg.FindAll("alice")
	if err != nil {
		t.Fatalf("FindAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("registry has %d assets, want 2", len(all))
	}
	for _, a := range all {
		if a.Type() != models.AssetTypeImage {
			t.Errorf("asset %s type = %v, want image", a.ID, a.Type())
		}
		if a.MetaString(models.MetaSourcePage) != srv.URL+"/" {
			t.Errorf("sourcePage = %q", a.MetaString(models.MetaSourcePage))
		}
		if a.Metadata[models.MetaWidth] != float64(3) || a.Metadata[models.MetaHeight] != float64(2) {
			t.Errorf("dimensions = %v x %v, want 3 x 2", a.Metadata[models.MetaWidth], a.Metadata[models.MetaHeight])
		}
		if filepath.Ext(a.StoredRelativePath) != ".png" {
			t.Errorf("StoredRelativePath = %q, want .png", a.StoredRelativePath)
		}
	}
}

func TestDownloadRespectsConcurrencyLimit(t *testing.T) {
	pic := pngBytes(t, 1, 1)
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pic)
	}))
	defer srv.Close()

	d, _ := setupTestDownloader(t, Options{Concurrency: 5})
	items := make([]Item, 17)
	for i := range items {
		items[i] = Item{URL: fmt.Sprintf("%s/img/%d.png", srv.URL, i)}
	}

	res := d.Download(context.Background(), Batch{OwnerID: "bob", Items: items})
	if res.Downloaded != len(items) {
		t.Errorf("Downloaded = %d, want %d (failed %d)", res.Downloaded, len(items), res.Failed)
	}
	if p := peak.Load(); p > 5 {
		t.Errorf("peak concurrency = %d, want <= 5", p)
	}
}

func TestDimensions(t *testing.T) {
	w, h, ok := Dimensions(pngBytes(t, 7, 4))
	if !ok || w != 7 || h != 4 {
		t.Errorf("Dimensions() = %d, %d, %v; want 7, 4, true", w, h, ok)
	}
	if _, _, ok := Dimensions([]byte("<svg></svg>")); ok {
		t.Error("Dimensions() ok = true for svg")
	}
}

func TestImageNameAndExtension(t *testing.T) {
	tests := []struct {
		url      string
		mime     string
		wantName string
		wantExt  string
	}{
		{"https://example.com/a/photo.JPG?w=200", "image/jpeg", "photo.JPG", ".jpg"},
		{"https://example.com/a/photo", "image/jpeg", "photo", ".jpg"},
		{"https://example.com/", "image/png", "image", ".png"},
		{"https://example.com/icons/logo", "image/svg+xml", "logo", ".svg"},
		{"https://example.com/my%20pic.webp", "image/webp", "my pic.webp", ".webp"},
	}
	for _, tt := range tests {
		name := imageName(tt.url)
		if name != tt.wantName {
			t.Errorf("imageName(%q) = %q, want %q", tt.url, name, tt.wantName)
		}
		if ext := pickExtension(name, tt.mime); ext != tt.wantExt {
			t.Errorf("pickExtension(%q, %q) = %q, want %q", name, tt.mime, ext, tt.wantExt)
		}
	}
}
