// Package local writes capture artifacts to a directory on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the output directory; relative paths resolve against the
	// working directory.
	BaseDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// BlobStore writes artifacts under one base directory.
type BlobStore struct {
	fs      afero.Fs
	baseDir string
}

// New creates the base directory if needed on the OS filesystem.
func New(cfg Config) (*BlobStore, error) {
	return NewWithFs(afero.NewOsFs(), cfg)
}

// NewWithFs is New over an arbitrary afero filesystem. The base directory
// must exist or be creatable, and must be writable.
func NewWithFs(fs afero.Fs, cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	baseDir := cfg.BaseDir
	if _, ok := fs.(*afero.OsFs); ok {
		abs, err := filepath.Abs(baseDir)
		if err != nil {
			return nil, fmt.Errorf("resolve base directory: %w", err)
		}
		baseDir = abs
	}

	info, err := fs.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := fs.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory %s: %w", baseDir, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory %s: %w", baseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory %s is not a directory", baseDir)
	}

	testFile := filepath.Join(baseDir, ".writable_test")
	if err := afero.WriteFile(fs, testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory %s is not writable: %w", baseDir, err)
	}
	if err := fs.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up writability check: %w", err)
	}

	return &BlobStore{
		fs:      fs,
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the resolved output directory.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// PutObject writes data to path under the base directory, replacing any
// existing file, and returns a file:// URI. Readers never observe a partial
// file: data lands in a temp file that is renamed over the target.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Join(s.baseDir, path)
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q", path)
	}
	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	if err := s.writeAtomic(fullPath, data); err != nil {
		return "", err
	}

	return fmt.Sprintf("file://%s", fullPath), nil
}

func (s *BlobStore) writeAtomic(fullPath string, data io.Reader) error {
	dir, base := filepath.Split(fullPath)
	tmp, err := afero.TempFile(s.fs, dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = s.fs.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, fullPath); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
