package models

import (
	"strings"
	"time"
)

// AssetType groups assets for ordering: text first, then images, then everything else.
type AssetType int

const (
	AssetTypeText AssetType = iota
	AssetTypeImage
	AssetTypeOther
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeText:
		return "text"
	case AssetTypeImage:
		return "image"
	default:
		return "other"
	}
}

// Metadata keys written by the ingestion pipeline.
const (
	MetaCreatedAt          = "createdAt"
	MetaOwnerID            = "ownerId"
	MetaSource             = "source"
	MetaSourceURL          = "sourceUrl"
	MetaSourcePage         = "sourcePage"
	MetaCrawlContext       = "crawlContext"
	MetaTitle              = "title"
	MetaWordCount          = "wordCount"
	MetaTopKeywords        = "topKeywords"
	MetaLanguage           = "language"
	MetaLanguageConfidence = "languageConfidence"
	MetaDomainType         = "domainType"
	MetaWidth              = "width"
	MetaHeight             = "height"
	MetaJobID              = "jobId"
)

const (
	SourceCrawl  = "crawl"
	SourceUpload = "upload"
)

// Asset is one record in the registry. Field names match the on-disk JSON
// document that other tools read.
type Asset struct {
	ID                     string         `json:"id"`
	OwnerID                string         `json:"ownerId"`
	OriginalName           string         `json:"originalName"`
	StoredRelativePath     string         `json:"storedRelativePath"`
	MimeType               string         `json:"mimeType"`
	SizeBytes              int64          `json:"sizeBytes"`
	Metadata               map[string]any `json:"metadata,omitempty"`
	ExtractedContent       string         `json:"extractedContent"`
	ExtractedContentLength int            `json:"extractedContentLength"`
}

// Type classifies the asset by mime type.
func (a *Asset) Type() AssetType {
	mt := strings.ToLower(strings.TrimSpace(a.MimeType))
	switch {
	case strings.HasPrefix(mt, "text/"), strings.HasPrefix(mt, "application/json"):
		return AssetTypeText
	case strings.HasPrefix(mt, "image/"):
		return AssetTypeImage
	default:
		return AssetTypeOther
	}
}

// CreatedAt returns metadata.createdAt, or the zero unix time when it is
// missing or unparsable.
func (a *Asset) CreatedAt() time.Time {
	if a.Metadata == nil {
		return time.Unix(0, 0).UTC()
	}
	raw, ok := a.Metadata[MetaCreatedAt].(string)
	if !ok || raw == "" {
		return time.Unix(0, 0).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Unix(0, 0).UTC()
}

// MetaString reads a string metadata value.
func (a *Asset) MetaString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	s, _ := a.Metadata[key].(string)
	return s
}
