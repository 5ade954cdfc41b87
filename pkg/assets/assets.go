// Package assets is the single write path into the asset store and registry.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/owner"
	"github.com/dtnitsch/persona-ingest/pkg/registry"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

// maxInlineText caps how much of a text file is copied into extractedContent.
const maxInlineText = 1 << 20

// CommitRequest describes one asset to store. OwnerID may be raw; it is
// canonicalized before use.
type CommitRequest struct {
	OwnerID          string
	OriginalName     string
	MimeType         string
	Ext              string
	Source           storage.Source
	ExtractedContent string
	Metadata         map[string]any
}

// Service writes files into the store and records them in the registry.
type Service struct {
	store    *storage.Store
	registry *registry.Registry
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

func NewService(store *storage.Store, reg *registry.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		registry: reg,
		logger:   logger,
		newID:    NewID,
		now:      time.Now,
	}
}

// NewID returns a random (v4) asset id.
func NewID() string {
	return uuid.NewString()
}

// Commit stores the payload and appends its record. If the registry write
// fails the stored file is removed again.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (models.Asset, error) {
	if req.Source == nil {
		return models.Asset{}, fmt.Errorf("commit %q: no source", req.OriginalName)
	}
	ownerID, err := owner.Canonical(req.OwnerID)
	if err != nil {
		return models.Asset{}, fmt.Errorf("commit %q: %w", req.OriginalName, err)
	}
	if _, err := s.store.EnsureOwnerDir(ownerID); err != nil {
		return models.Asset{}, err
	}

	id := s.newID()
	relPath := storage.RelativePath(ownerID, req.OriginalName, id, req.Ext)
	size, err := s.store.Put(ctx, req.Source, relPath)
	if err != nil {
		return models.Asset{}, fmt.Errorf("failed to store asset: %w", err)
	}

	mimeType := resolveMimeType(req.MimeType, relPath)
	asset := models.Asset{
		ID:                 id,
		OwnerID:            ownerID,
		OriginalName:       req.OriginalName,
		StoredRelativePath: relPath,
		MimeType:           mimeType,
		SizeBytes:          size,
		Metadata:           s.metadata(req, ownerID),
	}
	asset.ExtractedContent = s.extractedContent(req, &asset)
	asset.ExtractedContentLength = utf8.RuneCountInString(asset.ExtractedContent)

	if err := s.registry.Append(ctx, asset); err != nil {
		if rerr := s.store.Remove(relPath); rerr != nil {
			s.logger.Warn("failed to roll back stored file", "path", relPath, "error", rerr)
		}
		return models.Asset{}, fmt.Errorf("failed to register asset: %w", err)
	}

	s.logger.Debug("asset committed", "asset_id", id, "owner_id", ownerID,
		"path", relPath, "mime_type", mimeType, "size_bytes", size)
	return asset, nil
}

// Delete removes the record and its file. It reports false for unknown ids.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.registry.Remove(ctx, id)
}

func (s *Service) List(ownerID string) ([]models.Asset, error) {
	return s.registry.FindAll(ownerID)
}

func (s *Service) Get(id string) (models.Asset, bool, error) {
	return s.registry.FindByID(id)
}

func (s *Service) metadata(req CommitRequest, ownerID string) map[string]any {
	meta := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[models.MetaCreatedAt] = s.now().UTC().Format(time.RFC3339Nano)
	meta[models.MetaOwnerID] = ownerID
	if _, ok := meta[models.MetaSource]; !ok {
		meta[models.MetaSource] = models.SourceUpload
	}
	return meta
}

func (s *Service) extractedContent(req CommitRequest, asset *models.Asset) string {
	if req.ExtractedContent != "" {
		return req.ExtractedContent
	}
	switch asset.Type() {
	case models.AssetTypeImage:
		return fmt.Sprintf("[Image: %s]", asset.OriginalName)
	case models.AssetTypeText:
		data, err := s.store.ReadFile(asset.StoredRelativePath)
		if err != nil {
			s.logger.Warn("failed to read text asset for content", "asset_id", asset.ID, "error", err)
			return ""
		}
		if len(data) > maxInlineText {
			data = data[:maxInlineText]
		}
		return strings.ToValidUTF8(string(data), "")
	default:
		return fmt.Sprintf("[File: %s]", asset.OriginalName)
	}
}

func resolveMimeType(declared, relPath string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if ext := storage.Extension(relPath); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if base, _, err := mime.ParseMediaType(mt); err == nil {
				return base
			}
		}
	}
	return "application/octet-stream"
}
