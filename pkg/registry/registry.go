// Package registry persists asset records in a single JSON document guarded by
// an advisory lock file. Every mutation is a whole-document read, modify and
// atomic replace while the lock is held.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/filelock"
	"github.com/dtnitsch/persona-ingest/pkg/owner"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

const DefaultPath = "data/assets.json"

// ErrLockTimeout is returned when the registry lock could not be taken in time.
var ErrLockTimeout = filelock.ErrLockTimeout

// FileRemover deletes the file behind an asset. A missing file must not be an error.
type FileRemover interface {
	Remove(relPath string) error
}

// Registry is the shared asset index.
type Registry struct {
	path   string
	lock   string
	opts   filelock.Options
	files  FileRemover
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithLockOptions(opts filelock.Options) Option {
	return func(r *Registry) { r.opts = opts }
}

// WithFileRemover lets Remove delete backing files.
func WithFileRemover(files FileRemover) Option {
	return func(r *Registry) { r.files = files }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New returns a registry stored at path. The file is created lazily.
func New(path string, options ...Option) *Registry {
	if path == "" {
		path = DefaultPath
	}
	r := &Registry{
		path:   path,
		lock:   path + ".lock",
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

func (r *Registry) Path() string {
	return r.path
}

// Append adds a record. A record with the same id is replaced and a warning logged.
func (r *Registry) Append(ctx context.Context, asset models.Asset) error {
	return r.mutate(ctx, func(assets []models.Asset) ([]models.Asset, error) {
		for i := range assets {
			if assets[i].ID == asset.ID {
				r.logger.Warn("asset id collision, replacing existing record",
					"asset_id", asset.ID, "owner_id", asset.OwnerID)
				assets[i] = asset
				return assets, nil
			}
		}
		return append(assets, asset), nil
	})
}

// Remove deletes the record with id and, best effort, its backing file.
// It reports false when no such record exists.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	var removed *models.Asset
	err := r.mutate(ctx, func(assets []models.Asset) ([]models.Asset, error) {
		for i := range assets {
			if assets[i].ID == id {
				rec := assets[i]
				removed = &rec
				return append(assets[:i], assets[i+1:]...), nil
			}
		}
		return nil, errUnchanged
	})
	if err != nil {
		return false, err
	}
	if removed == nil {
		return false, nil
	}

	if r.files != nil && removed.StoredRelativePath != "" {
		if err := r.files.Remove(removed.StoredRelativePath); err != nil {
			r.logger.Warn("failed to delete asset file", "asset_id", id,
				"path", removed.StoredRelativePath, "error", err)
		}
	}
	return true, nil
}

// FindByID returns the record with id, if any.
func (r *Registry) FindByID(id string) (models.Asset, bool, error) {
	assets, err := r.load()
	if err != nil {
		return models.Asset{}, false, err
	}
	for _, a := range assets {
		if a.ID == id {
			return a, true, nil
		}
	}
	return models.Asset{}, false, nil
}

// FindAll returns records ordered text, image, other and newest first within
// each group. A non-empty ownerID filters on the canonical or raw owner id.
func (r *Registry) FindAll(ownerID string) ([]models.Asset, error) {
	assets, err := r.load()
	if err != nil {
		return nil, err
	}

	if ownerID != "" {
		filtered := assets[:0]
		for _, a := range assets {
			if owner.Matches(a.OwnerID, ownerID) {
				filtered = append(filtered, a)
			}
		}
		assets = filtered
	}

	Sort(assets)
	return assets, nil
}

// Sort orders assets by type group, then by createdAt descending, then by id.
func Sort(assets []models.Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		ti, tj := assets[i].Type(), assets[j].Type()
		if ti != tj {
			return ti < tj
		}
		ci, cj := assets[i].CreatedAt(), assets[j].CreatedAt()
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return assets[i].ID < assets[j].ID
	})
}

var errUnchanged = errors.New("registry unchanged")

func (r *Registry) mutate(ctx context.Context, fn func([]models.Asset) ([]models.Asset, error)) error {
	// The lock file lives next to the registry, so its directory must exist first.
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	err := filelock.WithLock(ctx, r.lock, r.opts, func() error {
		assets, err := r.loadForWrite()
		if err != nil {
			return err
		}
		next, err := fn(assets)
		if err != nil {
			return err
		}
		return r.write(next)
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if errors.Is(err, filelock.ErrLockTimeout) {
		return fmt.Errorf("registry %s: %w", r.path, err)
	}
	return err
}

// load reads the registry for queries. Corruption reads as empty; the backup
// is taken by the next mutation, which holds the lock.
func (r *Registry) load() ([]models.Asset, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Asset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	assets, err := decode(data)
	if err != nil {
		r.logger.Warn("registry unreadable, treating as empty", "path", r.path, "error", err)
		return []models.Asset{}, nil
	}
	return assets, nil
}

func (r *Registry) loadForWrite() ([]models.Asset, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Asset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	assets, err := decode(data)
	if err == nil {
		return assets, nil
	}

	backup := fmt.Sprintf("%s.corrupt-%s", r.path, r.now().UTC().Format("20060102T150405.000Z"))
	if rerr := os.Rename(r.path, backup); rerr != nil {
		return nil, fmt.Errorf("failed to back up corrupt registry: %w", rerr)
	}
	r.logger.Warn("registry corrupt, backed up and reset", "path", r.path, "backup", backup, "error", err)
	return []models.Asset{}, nil
}

func decode(data []byte) ([]models.Asset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Asset{}, nil
	}
	var assets []models.Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	if assets == nil {
		// "null" is valid JSON but not a collection.
		return nil, errors.New("registry document is not an array")
	}
	return assets, nil
}

func (r *Registry) write(assets []models.Asset) error {
	data, err := json.MarshalIndent(assets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	if err := storage.WriteFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}
