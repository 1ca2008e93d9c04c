package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/docutag/linker/models"
	"github.com/docutag/linker/slug"
)

// Config contains filesystem storage configuration
type Config struct {
	BasePath string // Base directory for archived revisions
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage archives article bodies on the local filesystem
type Storage struct {
	config Config
	now    func() time.Time
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
		now:    time.Now,
	}, nil
}

// revisionKey builds revisions/YYYY/MM/{slug}/{runID}.html
func revisionKey(now time.Time, article models.Article, runID string) string {
	name := slug.GenerateWithFallback(article.Slug, fmt.Sprintf("article-%d", article.ID))
	if runID == "" {
		runID = now.UTC().Format("20060102T150405Z")
	}
	return path.Join(
		"revisions",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		name,
		runID+".html",
	)
}

// SaveRevision writes the body of article as it was before a linking run.
// Returns the key relative to the base directory.
func (s *Storage) SaveRevision(ctx context.Context, article models.Article, runID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := revisionKey(s.now(), article, runID)
	fullPath := filepath.Join(s.config.BasePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create revision directory: %w", err)
	}

	if err := os.WriteFile(fullPath, []byte(article.Body), 0644); err != nil {
		return "", fmt.Errorf("failed to write revision file: %w", err)
	}

	return key, nil
}

// ReadRevision reads an archived body back
func (s *Storage) ReadRevision(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read revision file: %w", err)
	}

	return string(data), nil
}

// DeleteRevision removes an archived body; missing files are not an error
func (s *Storage) DeleteRevision(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete revision file: %w", err)
	}

	return nil
}

// resolve maps a key to a path, refusing keys that escape the base directory
func (s *Storage) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid revision key: %q", key)
	}
	return filepath.Join(s.config.BasePath, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
