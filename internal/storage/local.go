package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// LocalStorage implements ObjectStorage on a filesystem. Tests use an
// in-memory afero filesystem.
type LocalStorage struct {
	fs       afero.Fs
	basePath string
}

// NewLocalStorage creates a storage rooted at basePath on fs.
func NewLocalStorage(fs afero.Fs, basePath string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local storage: base path is required")
	}
	if err := fs.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		fs:       fs,
		basePath: basePath,
	}, nil
}

// Put writes data through a temporary file and a rename, so readers never
// see a partial object.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest := l.fullPath(key)
	if err := l.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return objectError(apperrors.CodeUploadFailed, key, err)
	}

	tmp := dest + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(l.fs, tmp, data, 0644); err != nil {
		return objectError(apperrors.CodeUploadFailed, key, err)
	}
	if err := l.fs.Rename(tmp, dest); err != nil {
		_ = l.fs.Remove(tmp)
		return objectError(apperrors.CodeUploadFailed, key, err)
	}
	return nil
}

// Get reads an object.
func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(l.fs, l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, objectError(apperrors.CodeObjectNotFound, key, nil)
		}
		return nil, objectError(apperrors.CodeDownloadFailed, key, err)
	}
	return data, nil
}

// Delete removes an object from local storage.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.fs.Remove(l.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return objectError(apperrors.CodeDeleteFailed, key, err)
	}
	return nil
}

// Exists checks if an object exists in local storage.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(l.fs, l.fullPath(key))
}

// List returns all keys under prefix.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := afero.Walk(l.fs, l.basePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.Contains(info.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, objectError(apperrors.CodeDownloadFailed, prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStorage) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(path.Clean("/"+key)))
}
