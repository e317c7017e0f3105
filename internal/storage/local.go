package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
)

const lockFileName = ".docsearch.lock"

// ErrDirLocked is returned when another process already owns the upload
// directory.
var ErrDirLocked = errors.New("upload directory is locked by another process")

// LocalStore keeps each document as a file in one flat directory.
type LocalStore struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewLocalStore creates dir if needed and takes an exclusive lock on it so
// two servers never share an upload directory.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking upload directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrDirLocked, dir)
	}
	return &LocalStore{
		dir:    dir,
		lock:   lock,
		logger: slog.Default().With("component", "local-store", "dir", dir),
	}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key), nil
}

// Put writes content to a temporary file in the same directory, syncs it and
// renames it over the old file.
func (s *LocalStore) Put(ctx context.Context, key string, content []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := renameio.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	s.logger.Debug("document written", "key", key, "size", len(content))
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// List returns every stored key in lexical order. Hidden files, including
// the lock file and renameio's temporaries, are skipped.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing upload directory: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("upload directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("upload directory %s is not a directory", s.dir)
	}
	return nil
}

// Close releases the directory lock.
func (s *LocalStore) Close() error {
	return s.lock.Unlock()
}
