// Package service is the operation boundary of sqlscope. It composes the
// connection, query, schema, statistics and export components and shapes
// their results into the envelopes the transports return.
package service

import (
	"context"

	"github.com/koustreak/sqlscope/internal/connection"
	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/koustreak/sqlscope/internal/export"
	"github.com/koustreak/sqlscope/internal/logger"
	"github.com/koustreak/sqlscope/internal/query"
	"github.com/koustreak/sqlscope/internal/schema"
	"github.com/koustreak/sqlscope/internal/stats"
)

type Config struct {
	Logger      *logger.Logger
	Connections *connection.Manager
	Executor    *query.Executor
	Schema      *schema.Inspector
	Stats       *stats.Engine
	Export      *export.Sink

	// Closers run on Close after the statistics engine and the connection.
	Closers []func() error
}

func (cfg *Config) Validate() error {
	switch {
	case cfg.Logger == nil:
		return errs.New(errs.ErrKindInvalidInput, "logger is required")
	case cfg.Connections == nil:
		return errs.New(errs.ErrKindInvalidInput, "connection manager is required")
	case cfg.Executor == nil:
		return errs.New(errs.ErrKindInvalidInput, "executor is required")
	case cfg.Schema == nil:
		return errs.New(errs.ErrKindInvalidInput, "schema inspector is required")
	case cfg.Stats == nil:
		return errs.New(errs.ErrKindInvalidInput, "statistics engine is required")
	case cfg.Export == nil:
		return errs.New(errs.ErrKindInvalidInput, "export sink is required")
	}
	return nil
}

type Service struct {
	log *logger.Logger
	cfg Config
}

func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{log: cfg.Logger.Component("service"), cfg: cfg}, nil
}

// Close stops the statistics workers and releases the connection.
func (s *Service) Close() error {
	s.cfg.Stats.Close()
	s.cfg.Connections.Close()
	var first error
	for _, c := range s.cfg.Closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Connected reports whether a database is bound.
func (s *Service) Connected() bool {
	_, ok := s.cfg.Connections.Current()
	return ok
}

func (s *Service) Connect(ctx context.Context, path string) (*ConnectResult, error) {
	info, err := s.cfg.Connections.Connect(ctx, path)
	if err != nil {
		return nil, s.failed("connect", err, map[string]interface{}{"path": path})
	}
	return &ConnectResult{
		Success:      true,
		DatabasePath: info.Path,
		TablesCount:  len(info.Tables),
		Tables:       info.Tables,
	}, nil
}

func (s *Service) ExecuteQuery(ctx context.Context, sql string) (*QueryResult, error) {
	out, err := s.cfg.Executor.Execute(ctx, sql)
	if err != nil {
		return nil, s.failed("execute_query", err, nil)
	}

	secs := out.Elapsed.Seconds()
	if out.Write != nil {
		return &QueryResult{Write: &WriteResult{
			Success:              true,
			RowsAffected:         out.Write.RowsAffected,
			ExecutionTimeSeconds: secs,
		}}, nil
	}
	return &QueryResult{Read: &ReadResult{
		Success:              true,
		Results:              out.ResultSet.Rows,
		Columns:              out.ResultSet.Columns,
		RowCount:             len(out.ResultSet.Rows),
		ExecutionTimeSeconds: secs,
	}}, nil
}

func (s *Service) ListTables(ctx context.Context) (*TablesResult, error) {
	tables, err := s.cfg.Schema.ListTables(ctx)
	if err != nil {
		return nil, s.failed("list_tables", err, nil)
	}
	return &TablesResult{Success: true, TableCount: len(tables), Tables: tables}, nil
}

func (s *Service) ExportToCSV(ctx context.Context, sql, filename string) (*ExportResult, error) {
	sum, err := s.cfg.Export.ExportToFile(ctx, sql, filename)
	if err != nil {
		return nil, s.failed("export_to_csv", err, map[string]interface{}{"filename": filename})
	}
	return &ExportResult{
		Success:              true,
		Filename:             sum.Path,
		RowCount:             sum.RowCount,
		ColumnCount:          sum.ColumnCount,
		Columns:              sum.Columns,
		ExecutionTimeSeconds: sum.Elapsed.Seconds(),
		ObjectKey:            sum.ObjectKey,
		ObjectURL:            sum.ObjectURL,
	}, nil
}

func (s *Service) TableSchema(ctx context.Context, table string) (*SchemaResult, error) {
	t, err := s.cfg.Schema.DescribeTable(ctx, table)
	if err != nil {
		return nil, s.failed("table_schema", err, map[string]interface{}{"table": table})
	}
	return &SchemaResult{
		TableName:   t.Name,
		Columns:     t.Columns,
		ForeignKeys: t.ForeignKeys,
		ColumnCount: len(t.Columns),
	}, nil
}

// TableData returns one page of table. limit 0 selects the default page size.
func (s *Service) TableData(ctx context.Context, table string, limit, offset int) (*DataResult, error) {
	page, err := s.cfg.Stats.SampleRows(ctx, table, limit, offset)
	if err != nil {
		return nil, s.failed("table_data", err, map[string]interface{}{"table": table, "limit": limit, "offset": offset})
	}
	return &DataResult{
		TableName:  page.Table,
		Columns:    page.Columns,
		SampleData: page.Rows,
		SampleSize: len(page.Rows),
		TotalRows:  page.TotalRows,
		Limit:      page.Limit,
		Offset:     page.Offset,
		HasMore:    page.HasMore,
		NextOffset: page.NextOffset,
		Statistics: byColumn(page.Statistics),
	}, nil
}

func (s *Service) TableStats(ctx context.Context, table string) (*StatsResult, error) {
	st, err := s.cfg.Stats.TableStatistics(ctx, table)
	if err != nil {
		return nil, s.failed("table_stats", err, map[string]interface{}{"table": table})
	}
	return &StatsResult{
		TableName:        st.Table,
		TotalRows:        st.TotalRows,
		ColumnCount:      len(st.Columns),
		Columns:          st.Columns,
		TableSizeBytes:   st.TableSizeBytes,
		IndexCount:       st.IndexCount,
		Sampled:          st.Sampled,
		SampledRows:      st.SampledRows,
		ColumnStatistics: byColumn(st.ColumnStatistics),
	}, nil
}

func (s *Service) failed(op string, err error, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["op"] = op
	fields["kind"] = errs.KindOf(err).String()
	s.log.WarnWith("operation failed", err, fields)
	return err
}
