package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/koustreak/sqlscope/internal/config"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/fixture"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, tune func(*config.Config)) (*Service, string) {
	t.Helper()

	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	if tune != nil {
		tune(cfg)
	}
	require.NoError(t, cfg.Validate())

	svc, err := Build(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, cfg.Export.Dir
}

func shopPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	require.NoError(t, fixture.Ecommerce(context.Background(), path))
	return path
}

func toJSON(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	require.ErrorContains(t, cfg.Validate(), "logger is required")
	cfg.Logger = logger.Nop()
	require.ErrorContains(t, cfg.Validate(), "connection manager is required")
}

func TestService_NoConnection(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	ctx := context.Background()
	assert.False(t, svc.Connected())

	_, err := svc.ListTables(ctx)
	assert.True(t, errs.IsNoConnection(err))
	_, err = svc.ExecuteQuery(ctx, "SELECT 1")
	assert.True(t, errs.IsNoConnection(err))
	_, err = svc.TableStats(ctx, "users")
	assert.True(t, errs.IsNoConnection(err))

	f := toJSON(t, Envelope(svc.ListTables(ctx)))
	assert.Equal(t, false, f["success"])
	assert.Equal(t, "no_connection", f["error_kind"])
	assert.Contains(t, f["error"], "connect_db")
}

func TestService_ConnectAndListTables(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	ctx := context.Background()
	path := shopPath(t)

	res, err := svc.Connect(ctx, path)
	require.NoError(t, err)
	assert.True(t, svc.Connected())
	assert.Equal(t, path, res.DatabasePath)
	assert.Equal(t, fixture.EcommerceTables, res.Tables)
	assert.Equal(t, 2, res.TablesCount)

	tables, err := svc.ListTables(ctx)
	require.NoError(t, err)
	m := toJSON(t, tables)
	assert.Equal(t, true, m["success"])
	assert.EqualValues(t, 2, m["table_count"])
	first := m["tables"].([]any)[0].(map[string]any)
	assert.Equal(t, "orders", first["name"])
	assert.Contains(t, first["create_sql"], "CREATE TABLE orders")
}

func TestService_ConnectMissingFile(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)
	_, err := svc.Connect(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	assert.True(t, errs.IsNotFound(err))

	f := Fail(err)
	assert.False(t, f.Success)
	assert.Equal(t, "not_found", f.ErrorKind)
	assert.NotEmpty(t, f.Error)
}

func TestService_BuildConnectsConfiguredPath(t *testing.T) {
	t.Parallel()

	path := shopPath(t)
	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = path })
	assert.True(t, svc.Connected())
}

func TestService_ExecuteQueryRead(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	res, err := svc.ExecuteQuery(context.Background(), "SELECT name, age FROM users WHERE age > 30 ORDER BY age")
	require.NoError(t, err)
	require.NotNil(t, res.Read)
	assert.Nil(t, res.Write)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"results":[{"name":"Bob Smith","age":35},{"name":"Edward Davis","age":45}]`)

	m := toJSON(t, res)
	assert.Equal(t, true, m["success"])
	assert.EqualValues(t, 2, m["row_count"])
	assert.Equal(t, []any{"name", "age"}, m["columns"])
	assert.Contains(t, m, "execution_time_seconds")
	assert.NotContains(t, m, "rows_affected")
}

func TestService_ExecuteQueryEmptyResult(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	res, err := svc.ExecuteQuery(context.Background(), "SELECT * FROM users WHERE id < 0")
	require.NoError(t, err)

	m := toJSON(t, res)
	assert.Equal(t, []any{}, m["results"])
	assert.EqualValues(t, 0, m["row_count"])
}

func TestService_ExecuteQueryRejected(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	_, err := svc.ExecuteQuery(context.Background(), "DROP TABLE users")
	require.Error(t, err)

	f := Fail(err)
	assert.Equal(t, "guard_rejected", f.ErrorKind)
	assert.Contains(t, f.Error, "only SELECT statements are allowed")
}

func TestService_ExecuteQueryWriteUnderDenylist(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) {
		cfg.Database.Path = shopPath(t)
		cfg.Database.Policy = "denylist"
	})
	ctx := context.Background()

	res, err := svc.ExecuteQuery(ctx, "UPDATE orders SET quantity = quantity + 1 WHERE user_id = 1")
	require.NoError(t, err)
	require.NotNil(t, res.Write)

	m := toJSON(t, res)
	assert.EqualValues(t, 2, m["rows_affected"])
	assert.NotContains(t, m, "results")

	_, err = svc.ExecuteQuery(ctx, "DELETE FROM orders")
	assert.True(t, errs.IsGuardRejected(err))
}

func TestService_ExecuteQuerySourceError(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	_, err := svc.ExecuteQuery(context.Background(), "SELECT nope FROM users")
	assert.Equal(t, "source_error", Fail(err).ErrorKind)
}

func TestService_ExportToCSV(t *testing.T) {
	t.Parallel()

	svc, dir := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	res, err := svc.ExportToCSV(context.Background(), "SELECT * FROM orders", "orders.csv")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, filepath.Join(dir, "orders.csv"), res.Filename)
	assert.Equal(t, fixture.EcommerceOrders, res.RowCount)
	assert.Equal(t, 6, res.ColumnCount)
	assert.Empty(t, res.ObjectKey)

	_, err = os.Stat(res.Filename)
	require.NoError(t, err)
	assert.NotContains(t, toJSON(t, res), "object_key")
}

func TestService_TableSchema(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	ctx := context.Background()

	res, err := svc.TableSchema(ctx, "orders")
	require.NoError(t, err)
	m := toJSON(t, res)
	assert.Equal(t, "orders", m["table_name"])
	assert.EqualValues(t, 6, m["column_count"])

	cols := m["columns"].([]any)
	id := cols[0].(map[string]any)
	assert.Equal(t, map[string]any{
		"name": "id", "type": "INTEGER", "nullable": false, "default_value": nil, "primary_key": true,
	}, id)

	fks := m["foreign_keys"].([]any)
	require.Len(t, fks, 1)
	assert.Equal(t, map[string]any{
		"column": "user_id", "referenced_table": "users", "referenced_column": "id",
	}, fks[0])

	_, err = svc.TableSchema(ctx, "ghosts")
	assert.Equal(t, ResourceFailure{Error: Fail(err).Error, ErrorKind: "table_not_found"}, FailResource(err))
}

func TestService_TableData(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	ctx := context.Background()

	res, err := svc.TableData(ctx, "users", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, fixture.EcommerceUsers, res.SampleSize)
	assert.False(t, res.HasMore)

	m := toJSON(t, res)
	assert.Nil(t, m["next_offset"])
	assert.Contains(t, m, "next_offset", "next_offset is null, not absent")
	st := m["statistics"].(map[string]any)
	age := st["age"].(map[string]any)
	assert.EqualValues(t, 0, age["null_count"])
	assert.EqualValues(t, 5, age["non_null_count"])

	res, err = svc.TableData(ctx, "orders", 3, 3)
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	require.NotNil(t, res.NextOffset)
	assert.Equal(t, 6, *res.NextOffset)
}

func TestService_TableStats(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(cfg *config.Config) { cfg.Database.Path = shopPath(t) })
	res, err := svc.TableStats(context.Background(), "orders")
	require.NoError(t, err)

	assert.Equal(t, int64(fixture.EcommerceOrders), res.TotalRows)
	assert.Equal(t, 6, res.ColumnCount)
	assert.False(t, res.Sampled)

	qty := res.ColumnStatistics["quantity"]
	require.NotNil(t, qty.Numeric)
	assert.InDelta(t, 11.0/8.0, *qty.Numeric.Avg, 1e-9)

	product := res.ColumnStatistics["product_name"]
	require.NotNil(t, product.Text)
	assert.Equal(t, int64(8), product.UniqueCount)
}

func TestEnvelope(t *testing.T) {
	t.Parallel()

	ok := Envelope(&ConnectResult{Success: true}, nil)
	assert.IsType(t, &ConnectResult{}, ok)

	f := Envelope[*ConnectResult](nil, errors.New("boom"))
	assert.Equal(t, Failure{Success: false, Error: "boom", ErrorKind: "unknown"}, f)
}
