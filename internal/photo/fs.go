package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

var _ domain.PhotoStore = (*FSStore)(nil)

// FSStore keeps photos under a root directory, one file per key.
type FSStore struct {
	root string
	log  *logger.Logger
}

// NewFSStore creates root if needed.
func NewFSStore(root string, log *logger.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: photo dir required for fs driver", domain.ErrValidation)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving photo dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating photo dir: %w", err)
	}
	return &FSStore{root: abs, log: log}, nil
}

// Put writes r to key atomically and returns the file's absolute path.
func (s *FSStore) Put(_ context.Context, key string, r io.Reader, _ string) (string, error) {
	dst, err := s.resolve(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating photo dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp photo: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("placing photo: %w", err)
	}

	s.log.Debug("photo: wrote %s (%d bytes)", dst, n)
	return dst, nil
}

// Delete removes the file at path. Missing files are ignored.
func (s *FSStore) Delete(_ context.Context, path string) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing photo: %w", err)
	}
	// Drop the per-recipe directory once it is empty.
	if dir := filepath.Dir(p); dir != s.root {
		_ = os.Remove(dir)
	}
	return nil
}

// Exists reports whether the file at path is present.
func (s *FSStore) Exists(_ context.Context, path string) (bool, error) {
	p, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// resolve rejects paths that escape the root.
func (s *FSStore) resolve(path string) (string, error) {
	p := filepath.Clean(path)
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: photo path %q outside %s", domain.ErrValidation, path, s.root)
	}
	return p, nil
}
