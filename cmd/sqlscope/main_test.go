package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/koustreak/sqlscope/internal/config"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/stats"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(42), "42"},
		{2.5, "2.5"},
		{"héllo", "héllo"},
		{[]byte("hi\n"), "aGkK"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.in))
	}
}

func TestRenderRows(t *testing.T) {
	t.Parallel()

	cols := []string{"id", "name"}
	var buf bytes.Buffer
	renderRows(&buf, cols, []database.Row{
		database.NewRow(cols, []any{int64(1), "Alice"}),
		database.NewRow(cols, []any{int64(2), nil}),
	})
	out := buf.String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "NULL")
}

func TestRenderColumnStats_KeepsColumnOrder(t *testing.T) {
	t.Parallel()

	avg := 20.0
	var buf bytes.Buffer
	renderColumnStats(&buf, []string{"b", "a"}, map[string]stats.ColumnStatistics{
		"a": {Column: "a", DeclaredType: "TEXT", TotalCount: 3},
		"b": {Column: "b", DeclaredType: "INTEGER", TotalCount: 3, Numeric: &stats.NumericSummary{Count: 3, Avg: &avg}},
	})
	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("INTEGER")), bytes.Index(buf.Bytes(), []byte("TEXT")))
	assert.Contains(t, out, "20")
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("policy", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--db", "shop.db", "--policy", "denylist"}))

	cfg := config.Default()
	require.NoError(t, applyFlags(cfg, flags))
	assert.Equal(t, "shop.db", cfg.Database.Path)
	assert.Equal(t, "denylist", cfg.Database.Policy)
	assert.Equal(t, "info", cfg.Log.Level, "unset flags keep the configured value")

	require.NoError(t, flags.Set("policy", "anything"))
	assert.Error(t, applyFlags(cfg, flags))
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "shop.db")

	out, err := execute(t, "seed", db)
	require.NoError(t, err)
	assert.Contains(t, out, "orders")

	out, err = execute(t, "tables", "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE users")

	out, err = execute(t, "query", "--db", db, "--log-level", "error", "SELECT name FROM users ORDER BY id LIMIT 1")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice Johnson")
	assert.Contains(t, out, "1 rows")

	_, err = execute(t, "query", "--db", db, "--log-level", "error", "DROP TABLE users")
	assert.Error(t, err)

	out, err = execute(t, "stats", "--db", db, "--log-level", "error", "users")
	require.NoError(t, err)
	assert.Contains(t, out, "users: 5 rows")

	out, err = execute(t, "export", "--db", db, "--log-level", "error", "--export-dir", dir, "SELECT * FROM orders", "orders.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 8 rows")
	_, err = os.Stat(filepath.Join(dir, "orders.csv"))
	require.NoError(t, err)

	_, err = execute(t, "tables", "--log-level", "error")
	assert.ErrorContains(t, err, "no database given")
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlscope dev")
}
