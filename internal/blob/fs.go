package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FSStorage implements Storage on a local directory tree. Used for local
// runs and tests; keys map directly to file paths under the root.
type FSStorage struct {
	root string
}

// NewFS creates a filesystem storage rooted at dir, creating it if needed.
func NewFS(dir string) (*FSStorage, error) {
	if dir == "" {
		return nil, eris.New("fs: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fs: create root %s", dir)
	}
	return &FSStorage{root: dir}, nil
}

func (f *FSStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", eris.Errorf("fs: invalid key %q", key)
	}
	return filepath.Join(f.root, clean), nil
}

func (f *FSStorage) Upload(_ context.Context, key string, data []byte, _ string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "fs: create dir for %s", key)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "fs: write %s", key)
	}
	return nil
}

func (f *FSStorage) Download(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fs: read %s", key)
	}
	return data, nil
}

func (f *FSStorage) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "fs: delete %s", key)
	}
	return nil
}
