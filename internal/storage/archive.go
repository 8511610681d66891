// Package storage keeps a filesystem archive of rendered notifications.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/welldanyogia/timecapsule-backend/internal/validator"
)

// Archive errors
var (
	ErrPathTraversal  = errors.New("path traversal detected")
	ErrFileNotFound   = errors.New("file not found")
	ErrFileTooLarge   = errors.New("file exceeds size limit")
	ErrUnsupportedExt = errors.New("file extension is not archivable")
)

// MaxArchiveSize bounds a single archived notification (10 MB)
const MaxArchiveSize = 10 * 1024 * 1024

// ArchiveExtension is the only extension the archive accepts
const ArchiveExtension = ".eml"

// Archive stores rendered notifications and returns a relative reference to each.
type Archive interface {
	Save(name string, content io.Reader) (string, error)
	Get(ref string) (io.ReadCloser, error)
	Delete(ref string) error
}

// localArchive implements Archive on the local filesystem
type localArchive struct {
	basePath string
	now      func() time.Time
}

// NewLocalArchive creates the archive directory if needed
func NewLocalArchive(basePath string) (Archive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &localArchive{basePath: basePath, now: time.Now}, nil
}

// validatePath ensures path is within basePath (prevents traversal)
func (s *localArchive) validatePath(ref string) (string, error) {
	cleanPath := filepath.Clean(ref)

	if filepath.IsAbs(cleanPath) || strings.Contains(cleanPath, ":") {
		return "", ErrPathTraversal
	}
	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}

	fullPath := filepath.Join(s.basePath, cleanPath)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid archive path: %w", err)
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) &&
		absPath != absBase {
		return "", ErrPathTraversal
	}

	return absPath, nil
}

// ValidateArchiveName checks that name is an .eml file
func ValidateArchiveName(name string) error {
	if strings.ToLower(filepath.Ext(name)) != ArchiveExtension {
		return ErrUnsupportedExt
	}
	return nil
}

// Save writes content under a dated directory (YYYY/MM/DD) and returns the
// relative reference. A short random suffix keeps repeated sends of the same
// message apart.
func (s *localArchive) Save(name string, content io.Reader) (string, error) {
	if err := ValidateArchiveName(name); err != nil {
		return "", err
	}

	base := validator.SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name)))
	uniqueName := fmt.Sprintf("%s-%s%s", base, uuid.New().String()[:8], ArchiveExtension)

	subDir := s.now().UTC().Format("2006/01/02")
	if err := os.MkdirAll(filepath.Join(s.basePath, subDir), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive subdirectory: %w", err)
	}

	ref := filepath.ToSlash(filepath.Join(subDir, uniqueName))
	fullPath := filepath.Join(s.basePath, subDir, uniqueName)

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, io.LimitReader(content, MaxArchiveSize+1))
	if err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	if n > MaxArchiveSize {
		os.Remove(fullPath)
		return "", ErrFileTooLarge
	}

	return ref, nil
}

// Get opens an archived notification by reference
func (s *localArchive) Get(ref string) (io.ReadCloser, error) {
	fullPath, err := s.validatePath(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}

	return file, nil
}

// Delete removes an archived notification. Missing files are not an error.
func (s *localArchive) Delete(ref string) error {
	fullPath, err := s.validatePath(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete archive file: %w", err)
	}

	return nil
}
