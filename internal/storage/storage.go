// Package storage provides the object storage that schema snapshots are
// exported to: a local directory (through afero) or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/arkilian/spacemeta/internal/config"
	apperrors "github.com/arkilian/spacemeta/internal/errors"
	"github.com/spf13/afero"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

var codeSentinels = map[string]error{
	apperrors.CodeObjectNotFound: ErrObjectNotFound,
	apperrors.CodeUploadFailed:   ErrUploadFailed,
	apperrors.CodeDownloadFailed: ErrDownloadFailed,
	apperrors.CodeDeleteFailed:   ErrDeleteFailed,
}

// objectError reports a failed operation on key as a STORAGE error whose
// chain matches the sentinel for code. Errors that are already structured
// pass through.
func objectError(code, key string, cause error) error {
	var e *apperrors.Error
	if errors.As(cause, &e) {
		return cause
	}
	err := codeSentinels[code]
	if cause != nil {
		err = fmt.Errorf("%w: %v", err, cause)
	}
	return apperrors.NewStorageError(code, "object "+key, err)
}

// ObjectStorage stores small immutable objects by key. Keys use forward
// slashes on every backend.
type ObjectStorage interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key, or an error matching
	// ErrObjectNotFound. Failures are *errors.Error values of the STORAGE
	// category.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys starting with prefix, in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the storage selected by cfg.
func New(ctx context.Context, cfg config.SnapshotConfig) (ObjectStorage, error) {
	switch cfg.Storage {
	case "", "local":
		return NewLocalStorage(afero.NewOsFs(), cfg.Path)
	case "s3":
		s3cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3cfg.Region = cfg.S3.Region
		}
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.UsePathStyle = cfg.S3.UsePathStyle
		return NewS3Storage(ctx, cfg.S3.Bucket, s3cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage)
	}
}
