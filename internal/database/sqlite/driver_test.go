package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/database/sqlite"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	require.NoError(t, fixture.Ecommerce(context.Background(), path))
	return path
}

func TestOpen_ListTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, database.DefaultConfig(shopDB(t)))
	require.NoError(t, err)
	defer db.Close()

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixture.EcommerceTables, tables)

	ok, err := db.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TableExists(ctx, "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_QueryTypes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, database.DefaultConfig(shopDB(t)))
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(ctx, `SELECT id, product_name, price, NULL AS nothing FROM orders WHERE id = ?`, 1)
	require.NoError(t, err)

	rs, err := database.ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, []any{int64(1), "Laptop", 999.99, nil}, rs.Rows[0].Values())
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, database.DefaultConfig(shopDB(t)))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(ctx, `DELETE FROM orders`)
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err), "got %v", err)
}

func TestOpen_ReadWriteExec(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := database.DefaultConfig(shopDB(t))
	cfg.ReadOnly = false
	db, err := sqlite.Open(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	n, err := db.Exec(ctx, `UPDATE orders SET quantity = quantity + 1 WHERE user_id = ?`, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOpen_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("missing file in read-only mode", func(t *testing.T) {
		_, err := sqlite.Open(ctx, database.DefaultConfig(filepath.Join(dir, "absent.db")))
		require.Error(t, err)
		assert.True(t, errs.IsConnectionFailed(err), "got %v", err)
	})

	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite, just some text that is long enough to have a header"), 0o644))
		_, err := sqlite.Open(ctx, database.DefaultConfig(path))
		require.Error(t, err)
		assert.True(t, errs.IsConnectionFailed(err), "got %v", err)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := sqlite.Open(ctx, database.DefaultConfig(""))
		assert.True(t, errs.IsInvalidInput(err))
	})
}

func TestQuery_SyntaxErrorIsSourceError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, database.DefaultConfig(shopDB(t)))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Query(ctx, `SELECT * FROM no_such_table`)
	require.Error(t, err)
	assert.True(t, errs.IsSourceError(err))
}

func TestQueryRow_NoRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, database.DefaultConfig(shopDB(t)))
	require.NoError(t, err)
	defer db.Close()

	var id int64
	err = db.QueryRow(ctx, `SELECT id FROM users WHERE id = 999`).Scan(&id)
	assert.True(t, errs.IsNotFound(err))
}
