// Package storage archives run reports in a local directory or a COS bucket.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
)

// Storage is an object store addressed by slash-separated keys.
type Storage interface {
	// Put stores everything read from r under key.
	Put(ctx context.Context, key string, r io.Reader) error

	// PutFile stores the contents of a local file under key.
	PutFile(ctx context.Context, key string, localPath string) error

	// Get opens the object at key. A missing object is a NotFound error.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns where the object at key can be fetched from.
	URL(key string) string
}

// Type names a storage backend.
type Type string

const (
	TypeLocal Type = "local"
	TypeCOS   Type = "cos"
)

// New builds the backend cfg names.
func New(cfg *config.StorageConfig) (Storage, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	switch Type(cfg.Type) {
	case TypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// Validate checks that cfg names a known backend with its required fields.
// An empty type means local.
func Validate(cfg *config.StorageConfig) error {
	if cfg == nil {
		return errors.New(errors.CodeConfigError, "storage config is nil")
	}

	switch Type(cfg.Type) {
	case "", TypeLocal:
		if cfg.LocalPath == "" {
			return errors.New(errors.CodeConfigError, "local storage path is required")
		}
	case TypeCOS:
		if cfg.Bucket == "" {
			return errors.New(errors.CodeConfigError, "COS bucket is required")
		}
		if cfg.Region == "" {
			return errors.New(errors.CodeConfigError, "COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return errors.New(errors.CodeConfigError, "COS credentials are required")
		}
	default:
		return errors.Newf(errors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}
	return nil
}

// ReportKey is the key a run's report file is archived under.
func ReportKey(runID, fileName string) string {
	return path.Join("runs", runID, fileName)
}

// Archive uploads each local file under ReportKey(runID, base name) and
// returns the URLs in the same order. It stops at the first failure.
func Archive(ctx context.Context, s Storage, runID string, files ...string) ([]string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return nil, errors.Newf(errors.CodeInvalidInput, "invalid run id %q", runID)
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		key := ReportKey(runID, filepath.Base(f))
		if err := s.PutFile(ctx, key, f); err != nil {
			return urls, err
		}
		urls = append(urls, s.URL(key))
	}
	return urls, nil
}
