// Package local implements a catalog store on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/clew-freshness/internal/catalog"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// Path is the catalog JSON document.
	Path string `mapstructure:"path" yaml:"path"`
}

// Store reads and writes a catalog document on disk.
type Store struct {
	path string
}

// New creates a filesystem-backed catalog store.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}
	return &Store{path: filepath.Clean(cfg.Path)}, nil
}

// Load reads and decodes the catalog. A missing file yields
// catalog.ErrNotFound.
func (s *Store) Load(_ context.Context) (*catalog.Catalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", s.path, catalog.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return c, nil
}

// Save replaces the document atomically: it writes a sibling temp file and
// renames it over the target.
func (s *Store) Save(_ context.Context, c *catalog.Catalog) error {
	data, err := catalog.Encode(c)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		closeErr := tmp.Close()
		_ = os.Remove(tmpName)
		if closeErr != nil {
			return fmt.Errorf("write temp file: %w (close: %v)", err, closeErr)
		}
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
