package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/database"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	doc_key    TEXT PRIMARY KEY,
	size       BIGINT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	stored_at  TIMESTAMP NOT NULL,
	indexed_at TIMESTAMP NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQL is a Catalog kept in a `documents` table. Queries are written with
// PostgreSQL placeholders and rebound for SQLite.
type SQL struct {
	db     *database.Client
	logger *slog.Logger
}

// NewSQL creates the documents table if needed.
func NewSQL(ctx context.Context, db *database.Client) (*SQL, error) {
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}
	return &SQL{
		db:     db,
		logger: slog.Default().With("component", "catalog", "dialect", db.Dialect),
	}, nil
}

func (c *SQL) MarkStored(ctx context.Context, key string, size int64) error {
	now := time.Now().UTC()
	_, err := c.db.DB.ExecContext(ctx, c.db.Rebind(`
		INSERT INTO documents (doc_key, size, status, error, stored_at, indexed_at, updated_at)
		VALUES ($1, $2, $3, '', $4, NULL, $4)
		ON CONFLICT (doc_key) DO UPDATE SET
			size = excluded.size,
			status = excluded.status,
			error = '',
			stored_at = excluded.stored_at,
			indexed_at = NULL,
			updated_at = excluded.updated_at`),
		key, size, string(StatusStored), now,
	)
	if err != nil {
		return fmt.Errorf("marking %s stored: %w", key, err)
	}
	return nil
}

func (c *SQL) MarkIndexed(ctx context.Context, key string) error {
	now := time.Now().UTC()
	_, err := c.db.DB.ExecContext(ctx, c.db.Rebind(
		`UPDATE documents SET status = $1, error = '', indexed_at = $2, updated_at = $2 WHERE doc_key = $3`),
		string(StatusIndexed), now, key,
	)
	if err != nil {
		return fmt.Errorf("marking %s indexed: %w", key, err)
	}
	return nil
}

func (c *SQL) MarkFailed(ctx context.Context, key string, cause error) error {
	_, err := c.db.DB.ExecContext(ctx, c.db.Rebind(
		`UPDATE documents SET status = $1, error = $2, updated_at = $3 WHERE doc_key = $4`),
		string(StatusFailed), errorText(cause), time.Now().UTC(), key,
	)
	if err != nil {
		return fmt.Errorf("marking %s failed: %w", key, err)
	}
	return nil
}

func (c *SQL) Remove(ctx context.Context, key string) error {
	_, err := c.db.DB.ExecContext(ctx, c.db.Rebind(`DELETE FROM documents WHERE doc_key = $1`), key)
	if err != nil {
		return fmt.Errorf("removing %s from catalog: %w", key, err)
	}
	return nil
}

func (c *SQL) Get(ctx context.Context, key string) (*Entry, error) {
	var (
		e         Entry
		status    string
		indexedAt sql.NullTime
	)
	err := c.db.DB.QueryRowContext(ctx, c.db.Rebind(`
		SELECT doc_key, size, status, error, stored_at, indexed_at, updated_at
		FROM documents WHERE doc_key = $1`), key,
	).Scan(&e.Key, &e.Size, &status, &e.Error, &e.StoredAt, &indexedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog entry %s: %w", key, err)
	}
	e.Status = Status(status)
	if indexedAt.Valid {
		t := indexedAt.Time.UTC()
		e.IndexedAt = &t
	}
	e.StoredAt = e.StoredAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (c *SQL) Ping(ctx context.Context) error {
	return c.db.Ping(ctx)
}

func (c *SQL) Close() error {
	return c.db.Close()
}
