package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	sqlite := &Client{Dialect: SQLite}
	pg := &Client{Dialect: Postgres}

	q := "UPDATE documents SET status = $1 WHERE doc_key = $12 AND note = '$'"
	assert.Equal(t, "UPDATE documents SET status = ?1 WHERE doc_key = ?12 AND note = '$'", sqlite.Rebind(q))
	assert.Equal(t, q, pg.Rebind(q))
}

func TestSQLite_InTx(t *testing.T) {
	ctx := context.Background()
	c, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.DB.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	errRollback := errors.New("rollback")
	err = c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, c.Rebind("INSERT INTO kv (k, v) VALUES ($1, $2)"), "a", "1"); err != nil {
			return err
		}
		return errRollback
	})
	assert.ErrorIs(t, err, errRollback)

	err = c.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.Rebind("INSERT INTO kv (k, v) VALUES ($1, $2)"), "b", "2")
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, c.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&n))
	assert.Equal(t, 1, n)
	assert.NoError(t, c.Ping(ctx))
}
