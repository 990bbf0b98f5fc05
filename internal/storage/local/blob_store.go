// Package local implements the batch workspace on an afero filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrPathTraversal is returned for paths that resolve outside the base dir.
var ErrPathTraversal = errors.New("path traversal detected")

// Config captures the parameters for the workspace.
type Config struct {
	// BaseDir is the root under which batch directories are created.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore creates and removes batch and word directories and writes icon
// files beneath BaseDir.
type BlobStore struct {
	fs      afero.Fs
	baseDir string
}

// New creates a workspace rooted at cfg.BaseDir on fs, creating the
// directory when missing and verifying it is writable.
func New(fs afero.Fs, cfg Config) (*BlobStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	baseDir := filepath.Clean(cfg.BaseDir)

	info, err := fs.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := fs.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, errors.New("base directory path is not a directory")
	}

	testFile := filepath.Join(baseDir, ".writable_test")
	if err := afero.WriteFile(fs, testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := fs.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{
		fs:      fs,
		baseDir: baseDir,
	}, nil
}

// Path resolves a workspace-relative path, rejecting anything that escapes
// the base directory.
func (s *BlobStore) Path(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", errors.New("path is required")
	}
	full := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(rel)))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return full, nil
}

// MakeDir creates dir and any missing parents.
func (s *BlobStore) MakeDir(_ context.Context, dir string) error {
	full, err := s.Path(dir)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(full, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// RemoveDir deletes dir recursively. Removing a missing directory succeeds.
func (s *BlobStore) RemoveDir(_ context.Context, dir string) error {
	full, err := s.Path(dir)
	if err != nil {
		return err
	}
	if err := s.fs.RemoveAll(full); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	return nil
}

// PutObject writes data to path and returns a file:// URI. The parent
// directory must already exist, so a write can never resurrect a directory
// that was rolled back.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	full, err := s.Path(path)
	if err != nil {
		return "", err
	}
	info, err := s.fs.Stat(filepath.Dir(full))
	if err != nil {
		return "", fmt.Errorf("failed to stat parent directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("parent of %s is not a directory", path)
	}
	if err := afero.WriteFile(s.fs, full, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "file://" + filepath.ToSlash(full), nil
}
