// Package catalog records where each document is in its lifecycle: stored,
// indexed, or failed to index. The catalog is bookkeeping only; the
// document store stays the authority for what exists.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/database"
)

var (
	ErrNotFound       = errors.New("catalog entry not found")
	ErrUnknownBackend = errors.New("unknown catalog backend")
)

type Status string

const (
	StatusStored  Status = "STORED"
	StatusIndexed Status = "INDEXED"
	StatusFailed  Status = "FAILED"
)

type Entry struct {
	Key       string     `json:"key"`
	Size      int64      `json:"size"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	StoredAt  time.Time  `json:"stored_at"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Catalog is safe for concurrent use. MarkIndexed and MarkFailed only touch
// existing entries, so a late task for a deleted key does not resurrect it.
type Catalog interface {
	MarkStored(ctx context.Context, key string, size int64) error
	MarkIndexed(ctx context.Context, key string) error
	MarkFailed(ctx context.Context, key string, cause error) error
	Remove(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// New opens the backend selected by cfg.Catalog.Backend.
func New(ctx context.Context, cfg *config.Config) (Catalog, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogMemory:
		return NewMemory(), nil
	case config.CatalogSQLite, config.CatalogPostgres:
		var db *database.Client
		var err error
		if cfg.Catalog.Backend == config.CatalogSQLite {
			db, err = database.NewSQLite(ctx, cfg.Catalog.SQLitePath)
		} else {
			db, err = database.NewPostgres(ctx, cfg.Postgres)
		}
		if err != nil {
			return nil, err
		}
		c, err := NewSQL(ctx, db)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Catalog.Backend)
	}
}

// maxErrorText bounds the stored last_error, in bytes.
const maxErrorText = 1024

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToValidUTF8(err.Error(), "")
	if len(msg) <= maxErrorText {
		return msg
	}
	cut := maxErrorText
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
