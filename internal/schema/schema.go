package schema

import "context"

// Reader is the interface for introspecting the connected database's catalog.
// *Inspector implements it; the statistics engine depends only on this.
type Reader interface {
	// ListTables returns every user table with its CREATE statement, by name.
	ListTables(ctx context.Context) ([]TableSummary, error)

	// DescribeTable returns the columns and foreign keys of one table.
	// Fails with TableNotFound when the table does not exist.
	DescribeTable(ctx context.Context, table string) (*Table, error)

	// IndexCount reports how many indexes the table has, or nil when the
	// source cannot answer.
	IndexCount(ctx context.Context, table string) *int

	// TableSizeBytes reports the on-disk size of the table, or nil when the
	// source cannot answer.
	TableSizeBytes(ctx context.Context, table string) *int64
}
