package stats

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/koustreak/sqlscope/internal/connection"
	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/koustreak/sqlscope/internal/schema"
)

const (
	defaultWorkers    = 4
	defaultLimit      = 10
	defaultMaxLimit   = 1000
	defaultSampleSize = 1000
)

type Config struct {
	Logger      *logger.Logger
	Connections *connection.Manager
	Schema      schema.Reader

	// Workers bounds how many column scans run at once.
	Workers int

	// DefaultLimit applies when SampleRows is called with limit 0.
	DefaultLimit int
	MaxLimit     int

	// Tables with more rows than FullScanRowLimit are summarized from their
	// first SampleSize rows instead of a full scan. 0 disables the limit.
	FullScanRowLimit int64
	SampleSize       int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errs.New(errs.ErrKindInvalidInput, "logger is required")
	}
	if cfg.Connections == nil {
		return errs.New(errs.ErrKindInvalidInput, "connection manager is required")
	}
	if cfg.Schema == nil {
		return errs.New(errs.ErrKindInvalidInput, "schema reader is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaultMaxLimit
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = defaultSampleSize
	}
	if cfg.FullScanRowLimit < 0 {
		return errs.New(errs.ErrKindInvalidInput, "full scan row limit must not be negative")
	}
	return nil
}

// PageResult is one page of a table in stable order, with statistics
// computed over that page only.
type PageResult struct {
	Table      string
	Columns    []string
	Rows       []database.Row
	TotalRows  int64
	Limit      int
	Offset     int
	HasMore    bool
	NextOffset *int
	Statistics []ColumnStatistics
}

// FullTableStats summarizes a whole table. When Sampled is set the column
// statistics cover only the first SampledRows rows.
type FullTableStats struct {
	Table            string
	TotalRows        int64
	Columns          []string
	ColumnStatistics []ColumnStatistics
	TableSizeBytes   *int64
	IndexCount       *int
	Sampled          bool
	SampledRows      int
}

type Engine struct {
	log    *logger.Logger
	conns  *connection.Manager
	schema schema.Reader
	cfg    Config

	pool pond.ResultPool[ColumnStatistics]
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:    cfg.Logger.Component("stats"),
		conns:  cfg.Connections,
		schema: cfg.Schema,
		cfg:    cfg,
		pool:   pond.NewResultPool[ColumnStatistics](cfg.Workers),
	}, nil
}

// Close waits for running column scans and stops the worker pool.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// SampleRows returns limit rows of table starting at offset. Rows are ordered
// by the primary key columns in key order, or by rowid (insertion order) when
// the table declares no primary key, so consecutive pages never overlap.
func (e *Engine) SampleRows(ctx context.Context, table string, limit, offset int) (*PageResult, error) {
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit < 1 || limit > e.cfg.MaxLimit {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "limit must be between 1 and %d, got %d", e.cfg.MaxLimit, limit)
	}
	if offset < 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "offset must not be negative, got %d", offset)
	}

	t, err := e.schema.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}

	var (
		total int64
		rs    *database.ResultSet
	)
	err = e.conns.WithConn(ctx, func(c *connection.Connection) error {
		if err := c.DB.QueryRow(ctx, database.CountRows(table)).Scan(&total); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		rs, err = fetchPage(ctx, c.DB, t, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &PageResult{
		Table:      table,
		Columns:    rs.Columns,
		Rows:       rs.Rows,
		TotalRows:  total,
		Limit:      limit,
		Offset:     offset,
		Statistics: Compute(rs.Columns, declaredTypes(t), rs.Rows),
	}
	if end := offset + len(rs.Rows); int64(end) < total {
		page.HasMore = true
		page.NextOffset = &end
	}
	return page, nil
}

func fetchPage(ctx context.Context, db database.DB, t *schema.Table, limit, offset int) (*database.ResultSet, error) {
	b := database.Select(t.Name).Limit(limit).Offset(offset)
	if pk := t.PrimaryKey(); len(pk) > 0 {
		b.OrderBy(pk...)
	} else {
		b.OrderByRowID()
	}
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	return database.ScanRows(rows)
}

// TableStatistics computes column statistics over the whole table, one
// full scan per column on the worker pool. This costs O(columns × rows);
// tables over the configured FullScanRowLimit are sampled instead. Writes
// wait until the pass is finished.
func (e *Engine) TableStatistics(ctx context.Context, table string) (*FullTableStats, error) {
	release := e.conns.BeginScan()
	defer release()

	t, err := e.schema.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}

	var (
		total int64
		gen   uint64
	)
	err = e.conns.WithConn(ctx, func(c *connection.Connection) error {
		gen = c.Generation
		if err := c.DB.QueryRow(ctx, database.CountRows(table)).Scan(&total); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := e.log.With().Str("table", table).Uint64("generation", gen).Logger()

	out := &FullTableStats{
		Table:     table,
		TotalRows: total,
		Columns:   t.ColumnNames(),
	}

	if e.cfg.FullScanRowLimit > 0 && total > e.cfg.FullScanRowLimit {
		log.InfoWith("table over full scan limit, sampling", map[string]interface{}{
			"rows":        total,
			"limit":       e.cfg.FullScanRowLimit,
			"sample_size": e.cfg.SampleSize,
		})
		var rs *database.ResultSet
		err = e.conns.WithConn(ctx, func(c *connection.Connection) error {
			if c.Generation != gen {
				return errReplaced()
			}
			rs, err = fetchPage(ctx, c.DB, t, e.cfg.SampleSize, 0)
			return err
		})
		if err != nil {
			return nil, err
		}
		out.ColumnStatistics = Compute(rs.Columns, declaredTypes(t), rs.Rows)
		out.Sampled = true
		out.SampledRows = len(rs.Rows)
	} else {
		group := e.pool.NewGroupContext(ctx)
		for _, col := range t.Columns {
			col := col
			group.SubmitErr(func() (ColumnStatistics, error) {
				return e.scanColumn(ctx, gen, table, col, total)
			})
		}
		results, err := group.Wait()
		if err != nil {
			return nil, fmt.Errorf("column statistics for %q: %w", table, err)
		}
		out.ColumnStatistics = results
	}

	out.IndexCount = e.schema.IndexCount(ctx, table)
	out.TableSizeBytes = e.schema.TableSizeBytes(ctx, table)

	log.DebugWith("statistics pass finished", map[string]interface{}{
		"rows":    total,
		"columns": len(out.ColumnStatistics),
		"sampled": out.Sampled,
	})
	return out, nil
}

// scanColumn runs the full-scan queries for one column, holding the
// connection only for their duration.
func (e *Engine) scanColumn(ctx context.Context, gen uint64, table string, col schema.Column, total int64) (ColumnStatistics, error) {
	tbl := database.QuoteIdent(table)
	c := database.QuoteIdent(col.Name)

	cs := ColumnStatistics{Column: col.Name, DeclaredType: col.Type, TotalCount: total}

	err := e.conns.WithConn(ctx, func(conn *connection.Connection) error {
		if conn.Generation != gen {
			return errReplaced()
		}
		db := conn.DB

		var nonNull, distinct int64
		q := fmt.Sprintf(`SELECT COUNT(%s), COUNT(DISTINCT %s) FROM %s`, c, c, tbl)
		if err := db.QueryRow(ctx, q).Scan(&nonNull, &distinct); err != nil {
			return fmt.Errorf("count column %q: %w", col.Name, err)
		}
		cs.NonNullCount = nonNull
		cs.NullCount = total - nonNull
		cs.NullPercentage = NullPercentage(cs.NullCount, total)
		cs.UniqueCount = distinct

		switch AggregateFor(col.Type) {
		case AggregateNumeric:
			var (
				n           int64
				lo, hi, avg sql.NullFloat64
			)
			q := fmt.Sprintf(`SELECT COUNT(%[1]s), MIN(%[1]s), MAX(%[1]s), AVG(%[1]s) FROM %[2]s WHERE typeof(%[1]s) IN ('integer', 'real')`, c, tbl)
			if err := db.QueryRow(ctx, q).Scan(&n, &lo, &hi, &avg); err != nil {
				return fmt.Errorf("numeric aggregates for %q: %w", col.Name, err)
			}
			cs.Numeric = &NumericSummary{Count: n}
			if n > 0 {
				cs.Numeric.Min, cs.Numeric.Max, cs.Numeric.Avg = &lo.Float64, &hi.Float64, &avg.Float64
			}
		case AggregateText:
			var (
				n      int64
				lo, hi sql.NullInt64
				avg    sql.NullFloat64
			)
			q := fmt.Sprintf(`SELECT COUNT(%[1]s), MIN(length(%[1]s)), MAX(length(%[1]s)), AVG(length(%[1]s)) FROM %[2]s WHERE typeof(%[1]s) = 'text'`, c, tbl)
			if err := db.QueryRow(ctx, q).Scan(&n, &lo, &hi, &avg); err != nil {
				return fmt.Errorf("text aggregates for %q: %w", col.Name, err)
			}
			cs.Text = &TextSummary{Count: n}
			if n > 0 {
				cs.Text.MinLength, cs.Text.MaxLength, cs.Text.AvgLength = &lo.Int64, &hi.Int64, &avg.Float64
			}
		}
		return nil
	})
	return cs, err
}

func declaredTypes(t *schema.Table) map[string]string {
	m := make(map[string]string, len(t.Columns))
	for _, c := range t.Columns {
		m[c.Name] = c.Type
	}
	return m
}

func errReplaced() error {
	return errs.New(errs.ErrKindConnectionFailed, "connection replaced during statistics scan")
}
