package schema

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/koustreak/sqlscope/internal/connection"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/fixture"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInspector(t *testing.T, path string) (*Inspector, *connection.Manager) {
	t.Helper()

	m, err := connection.NewManager(connection.Config{
		Logger: logger.Nop(),
		Opener: connection.SQLiteOpener(database.DefaultConfig("")),
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	if path != "" {
		_, err = m.Connect(context.Background(), path)
		require.NoError(t, err)
	}

	i, err := NewInspector(Config{Logger: logger.Nop(), Connections: m})
	require.NoError(t, err)
	return i, m
}

func shop(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	require.NoError(t, fixture.Ecommerce(context.Background(), path))
	return path
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	require.ErrorContains(t, cfg.Validate(), "logger is required")
	cfg.Logger = logger.Nop()
	require.ErrorContains(t, cfg.Validate(), "connection manager is required")
}

func TestInspector_ListTables(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, shop(t))
	tables, err := i.ListTables(context.Background())
	require.NoError(t, err)

	require.Len(t, tables, 2)
	assert.Equal(t, "orders", tables[0].Name)
	assert.Equal(t, "users", tables[1].Name)
	assert.Contains(t, tables[1].CreateSQL, "CREATE TABLE users")
}

func TestInspector_ListTablesNoConnection(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, "")
	_, err := i.ListTables(context.Background())
	assert.True(t, errs.IsNoConnection(err))
}

func TestInspector_DescribeUsers(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, shop(t))
	users, err := i.DescribeTable(context.Background(), "users")
	require.NoError(t, err)

	assert.Equal(t, "users", users.Name)
	assert.Equal(t, []string{"id", "name", "email", "age", "created_at"}, users.ColumnNames())
	assert.Equal(t, []string{"id"}, users.PrimaryKey())
	assert.Empty(t, users.ForeignKeys)

	name, ok := users.Column("name")
	require.True(t, ok)
	assert.Equal(t, "VARCHAR", name.Type)
	assert.False(t, name.Nullable)
	assert.Nil(t, name.DefaultValue)

	age, _ := users.Column("age")
	assert.True(t, age.Nullable)
	assert.Equal(t, "INTEGER", age.Type)
}

func TestInspector_DescribeOrders(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, shop(t))
	orders, err := i.DescribeTable(context.Background(), "orders")
	require.NoError(t, err)

	qty, ok := orders.Column("quantity")
	require.True(t, ok)
	require.NotNil(t, qty.DefaultValue)
	assert.Equal(t, "1", *qty.DefaultValue)

	assert.Equal(t, []ForeignKey{{Column: "user_id", RefTable: "users", RefColumn: "id"}}, orders.ForeignKeys)
}

func TestInspector_ImplicitForeignKeyTarget(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fk.db")
	require.NoError(t, fixture.Exec(context.Background(), path,
		`CREATE TABLE parent (code TEXT, id INTEGER, PRIMARY KEY (id))`,
		`CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent)`,
	))

	i, _ := newInspector(t, path)
	child, err := i.DescribeTable(context.Background(), "child")
	require.NoError(t, err)
	assert.Equal(t, []ForeignKey{{Column: "parent_id", RefTable: "parent", RefColumn: "id"}}, child.ForeignKeys)
}

func TestInspector_TableNotFound(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, shop(t))
	_, err := i.DescribeTable(context.Background(), "ghosts")
	require.Error(t, err)
	assert.True(t, errs.IsTableNotFound(err))

	_, err = i.DescribeTable(context.Background(), "")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestInspector_CacheKeyedByRevision(t *testing.T) {
	t.Parallel()

	i, m := newInspector(t, shop(t))
	ctx := context.Background()

	first, err := i.DescribeTable(ctx, "users")
	require.NoError(t, err)
	again, err := i.DescribeTable(ctx, "users")
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, m.WithWrite(ctx, func(*connection.Connection) error { return nil }))

	fresh, err := i.DescribeTable(ctx, "users")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
	assert.Equal(t, first, fresh)
}

func TestInspector_IndexCount(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, shop(t))
	ctx := context.Background()

	n := i.IndexCount(ctx, "users")
	require.NotNil(t, n)
	assert.Equal(t, 1, *n, "the UNIQUE email constraint carries an automatic index")

	n = i.IndexCount(ctx, "orders")
	require.NotNil(t, n)
	assert.Equal(t, 0, *n)
}

func TestInspector_TableSizeBestEffort(t *testing.T) {
	t.Parallel()

	i, _ := newInspector(t, shop(t))
	if size := i.TableSizeBytes(context.Background(), "users"); size != nil {
		assert.Positive(t, *size)
	}

	none, _ := newInspector(t, "")
	assert.Nil(t, none.TableSizeBytes(context.Background(), "users"))
	assert.Nil(t, none.IndexCount(context.Background(), "users"))
}
