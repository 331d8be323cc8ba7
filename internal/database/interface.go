package database

import "context"

// DB is the central contract for all data source operations.
// All layers above this package talk only to this interface;
// they never import the sqlite package directly.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close() error

	// Path returns the file the connection was opened on.
	Path() string

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) RowScanner

	// Exec executes a statement that returns no rows and reports the
	// number of rows it affected.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// ListTables returns all user-defined table names, sorted by name.
	ListTables(ctx context.Context) ([]string, error)

	// TableExists reports whether a table with the given name exists.
	TableExists(ctx context.Context, table string) (bool, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// RowScanner is an abstraction over a single database row.
type RowScanner interface {
	Scan(dest ...any) error
}
