package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultRoot     = "uploads"
	maxNameLength   = 100
	maxExtLength    = 10
	fallbackName    = "file"
	dirPermissions  = 0750
	filePermissions = 0600
)

// Source is where committed bytes come from. The set is closed: Bytes or File.
type Source interface {
	isSource()
}

// Bytes commits an in-memory payload.
type Bytes struct {
	Data []byte
}

// File commits a file already on disk. The file is moved into the store
// unless Keep is set, in which case it is copied.
type File struct {
	Path string
	Keep bool
}

func (Bytes) isSource() {}
func (File) isSource()  {}

// Store lays files out as <root>/<owner>/<name>_<id><ext>.
type Store struct {
	root string
}

// FileStats holds metadata about a file without reading its contents.
type FileStats struct {
	SizeBytes int64
	ModTime   time.Time
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// EnsureOwnerDir creates the owner's directory and returns its path.
func (s *Store) EnsureOwnerDir(ownerID string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, `/\`) || ownerID == "." || ownerID == ".." {
		return "", fmt.Errorf("invalid owner directory %q", ownerID)
	}
	dir := filepath.Join(s.root, ownerID)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return "", fmt.Errorf("failed to create owner directory: %w", err)
	}
	return dir, nil
}

var invalidFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9\-_.]+`)
var invalidExtChar = regexp.MustCompile(`[^a-z0-9.]`)

// SanitizeFilename makes the stem of an original file name safe for the
// filesystem. The extension is not included.
func SanitizeFilename(originalName string) string {
	base := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = invalidFilenameChar.ReplaceAllString(stem, "_")
	stem = strings.Trim(stem, "_.")
	if len(stem) > maxNameLength {
		stem = strings.TrimRight(stem[:maxNameLength], "_.")
	}
	if stem == "" {
		return fallbackName
	}
	return stem
}

// Extension returns the lowercased extension of name, or "" when it is
// missing or not a plausible extension.
func Extension(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, `\`, "/"))))
	if len(ext) < 2 || len(ext) > maxExtLength || invalidExtChar.MatchString(ext) {
		return ""
	}
	return ext
}

// RelativePath builds the forward-slash path of an asset relative to the root.
// ext overrides the extension taken from originalName when non-empty.
func RelativePath(ownerID, originalName, assetID, ext string) string {
	if ext == "" {
		ext = Extension(originalName)
	}
	return path.Join(ownerID, fmt.Sprintf("%s_%s%s", SanitizeFilename(originalName), assetID, ext))
}

// AbsPath resolves a stored relative path against the root.
func (s *Store) AbsPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Put writes src to relPath and returns the stored size.
func (s *Store) Put(ctx context.Context, src Source, relPath string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dest := s.AbsPath(relPath)
	if err := os.MkdirAll(filepath.Dir(dest), dirPermissions); err != nil {
		return 0, fmt.Errorf("failed to create asset directory: %w", err)
	}

	switch src := src.(type) {
	case Bytes:
		if err := os.WriteFile(dest, src.Data, filePermissions); err != nil {
			return 0, fmt.Errorf("error saving file: %w", err)
		}
	case File:
		if err := placeFile(src, dest); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unsupported source %T", src)
	}

	stats, err := s.GetFileStats(dest)
	if err != nil {
		return 0, err
	}
	return stats.SizeBytes, nil
}

func placeFile(src File, dest string) error {
	if !src.Keep {
		if err := os.Rename(src.Path, dest); err == nil {
			return nil
		}
		// Rename fails across filesystems; fall back to copy and remove.
	}
	if err := copyFile(src.Path, dest); err != nil {
		return err
	}
	if !src.Keep {
		if err := os.Remove(src.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove source file: %w", err)
		}
	}
	return nil
}

func copyFile(from, to string) error {
	in, err := os.Open(filepath.Clean(from))
	if err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("error saving file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("error copying file: %w", err)
	}
	return out.Close()
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (s *Store) Remove(relPath string) error {
	if err := os.Remove(s.AbsPath(relPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing file: %w", err)
	}
	return nil
}

// ReadFile returns the contents of a stored file.
func (s *Store) ReadFile(relPath string) ([]byte, error) {
	data, err := os.ReadFile(s.AbsPath(relPath))
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	return data, nil
}

func (s *Store) HasFile(relPath string) bool {
	_, err := os.Stat(s.AbsPath(relPath))
	return err == nil
}

// GetFileStats returns metadata about a file using os.Stat (no I/O overhead).
func (s *Store) GetFileStats(filePath string) (*FileStats, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error getting file stats: %w", err)
	}

	return &FileStats{
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}, nil
}
