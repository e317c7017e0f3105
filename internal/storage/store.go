// Package storage persists document bytes keyed by document key. Two
// backends are provided: a flat directory on the local filesystem and an
// S3-compatible bucket reached through MinIO's client.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

var (
	ErrNotFound       = errors.New("document not found in store")
	ErrInvalidKey     = errors.New("invalid document key")
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Store holds the bytes of every uploaded document. Put replaces content
// atomically: a concurrent Get sees either the old or the new bytes.
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// ValidateKey rejects keys that could escape the store's namespace. Keys
// produced by document.SecureFilename always pass.
func ValidateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q is hidden", ErrInvalidKey, key)
	case strings.ContainsAny(key, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}
	return nil
}

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case config.StorageLocal, "":
		s, err := NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMinio:
		s, err := NewObjectStore(ctx, cfg.Minio, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
}
