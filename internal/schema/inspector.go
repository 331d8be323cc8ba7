package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/koustreak/sqlscope/internal/connection"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/logger"
)

const defaultCacheTTL = 30 * time.Second

type Config struct {
	Logger      *logger.Logger
	Connections *connection.Manager
	CacheTTL    time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errs.New(errs.ErrKindInvalidInput, "logger is required")
	}
	if cfg.Connections == nil {
		return errs.New(errs.ErrKindInvalidInput, "connection manager is required")
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return nil
}

// Inspector reads the SQLite catalog of the bound connection.
//
// Described tables are cached per connection generation and write revision,
// so a reconnect or any write statement bypasses earlier entries.
type Inspector struct {
	log   *logger.Logger
	conns *connection.Manager

	cache   *ttlcache.Cache[string, *Table]
	cacheMu sync.RWMutex
}

var _ Reader = (*Inspector)(nil)

func NewInspector(cfg Config) (*Inspector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Inspector{
		log:   cfg.Logger.Component("schema"),
		conns: cfg.Connections,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Table](cfg.CacheTTL),
		),
	}, nil
}

func (i *Inspector) ListTables(ctx context.Context) ([]TableSummary, error) {
	const q = `
		SELECT name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`

	tables := make([]TableSummary, 0)
	err := i.conns.WithConn(ctx, func(c *connection.Connection) error {
		rows, err := c.DB.Query(ctx, q)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t TableSummary
			if err := rows.Scan(&t.Name, &t.CreateSQL); err != nil {
				return errs.Wrap(errs.ErrKindSourceError, "scan table summary", err)
			}
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (i *Inspector) DescribeTable(ctx context.Context, table string) (*Table, error) {
	if table == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "table name must not be empty")
	}

	var out *Table
	err := i.conns.WithConn(ctx, func(c *connection.Connection) error {
		key := fmt.Sprintf("%d/%d/%s", c.Generation, c.Revision(), table)

		i.cacheMu.RLock()
		item := i.cache.Get(key)
		i.cacheMu.RUnlock()
		if item != nil {
			out = item.Value()
			return nil
		}

		t, err := describe(ctx, c.DB, table)
		if err != nil {
			return err
		}

		i.cacheMu.Lock()
		i.cache.Set(key, t, ttlcache.DefaultTTL)
		i.cacheMu.Unlock()

		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func describe(ctx context.Context, db database.DB, table string) (*Table, error) {
	ok, err := db.TableExists(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("table exists check: %w", err)
	}
	if !ok {
		return nil, errs.Newf(errs.ErrKindTableNotFound, "table %q does not exist", table)
	}

	cols, err := fetchColumns(ctx, db, table)
	if err != nil {
		return nil, err
	}
	fks, err := fetchForeignKeys(ctx, db, table)
	if err != nil {
		return nil, err
	}

	return &Table{Name: table, Columns: cols, ForeignKeys: fks}, nil
}

func fetchColumns(ctx context.Context, db database.DB, table string) ([]Column, error) {
	const q = `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	rows, err := db.Query(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("fetch columns: %w", err)
	}
	defer rows.Close()

	cols := make([]Column, 0)
	for rows.Next() {
		var (
			c       Column
			notNull int64
			dflt    sql.NullString
			pk      int64
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, errs.Wrap(errs.ErrKindSourceError, "scan column info", err)
		}
		c.Nullable = notNull == 0
		if dflt.Valid {
			c.DefaultValue = &dflt.String
		}
		c.PrimaryKey = pk > 0
		c.PKOrdinal = int(pk)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func fetchForeignKeys(ctx context.Context, db database.DB, table string) ([]ForeignKey, error) {
	const q = `
		SELECT "from", "table", "to"
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	rows, err := db.Query(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("fetch foreign keys: %w", err)
	}

	fks := make([]ForeignKey, 0)
	var implicit []int
	for rows.Next() {
		var (
			fk ForeignKey
			to sql.NullString
		)
		if err := rows.Scan(&fk.Column, &fk.RefTable, &to); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.ErrKindSourceError, "scan foreign key", err)
		}
		if to.Valid {
			fk.RefColumn = to.String
		} else {
			implicit = append(implicit, len(fks))
		}
		fks = append(fks, fk)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// "REFERENCES t" without a column list points at t's primary key.
	for _, idx := range implicit {
		refCols, err := fetchColumns(ctx, db, fks[idx].RefTable)
		if err != nil {
			return nil, err
		}
		ref := &Table{Columns: refCols}
		if pk := ref.PrimaryKey(); len(pk) > 0 {
			fks[idx].RefColumn = pk[0]
		}
	}
	return fks, nil
}

func (i *Inspector) IndexCount(ctx context.Context, table string) *int {
	var n int
	err := i.conns.WithConn(ctx, func(c *connection.Connection) error {
		return c.DB.QueryRow(ctx, `SELECT COUNT(*) FROM pragma_index_list(?)`, table).Scan(&n)
	})
	if err != nil {
		i.log.DebugWith("index count unavailable", map[string]interface{}{"table": table, "error": err.Error()})
		return nil
	}
	return &n
}

// TableSizeBytes sums the table's pages through the dbstat virtual table,
// which not every SQLite build carries.
func (i *Inspector) TableSizeBytes(ctx context.Context, table string) *int64 {
	var size sql.NullInt64
	err := i.conns.WithConn(ctx, func(c *connection.Connection) error {
		return c.DB.QueryRow(ctx, `SELECT SUM(pgsize) FROM dbstat WHERE name = ?`, table).Scan(&size)
	})
	if err != nil || !size.Valid {
		if err != nil {
			i.log.DebugWith("table size unavailable", map[string]interface{}{"table": table, "error": err.Error()})
		}
		return nil
	}
	return &size.Int64
}
