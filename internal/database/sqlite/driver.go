// Package sqlite provides a SQLite implementation of database.DB backed by
// database/sql and the pure-Go modernc.org/sqlite driver.
//
// Usage:
//
//	cfg := database.DefaultConfig("/data/shop.db")
//	db, err := sqlite.Open(ctx, cfg)
//	if err != nil { ... }
//	defer db.Close()
//
//	tables, err := db.ListTables(ctx)
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/errs"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

const driverName = "sqlite"

// Driver is a SQLite implementation of database.DB.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db   *sql.DB
	path string
}

// Open opens the database file named by cfg.Path and returns a Driver.
// It pings and reads the catalog before returning, so a file that exists
// but is not a SQLite database fails here rather than on first use.
func Open(ctx context.Context, cfg *database.Config) (*Driver, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "database path must not be empty")
	}

	db, err := sql.Open(driverName, buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid database path", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &Driver{db: db, path: cfg.Path}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, asConnectionFailure(err)
	}

	var n int64
	if err := db.QueryRowContext(pingCtx, `SELECT COUNT(*) FROM sqlite_master`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, asConnectionFailure(mapError(err, "failed to read catalog"))
	}

	return d, nil
}

// buildDSN renders cfg as a file: URI understood by modernc.org/sqlite.
func buildDSN(cfg *database.Config) string {
	q := url.Values{}
	if cfg.ReadOnly {
		q.Set("mode", "ro")
	}
	if cfg.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	}
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + escapePath(cfg.Path) + "?" + q.Encode()
}

// escapePath percent-encodes the characters that would otherwise end the
// path component of a SQLite URI.
func escapePath(p string) string {
	r := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")
	return r.Replace(p)
}

// asConnectionFailure re-kinds open-time errors: anything that stops the
// file from opening is a connection failure, except a timeout.
func asConnectionFailure(err error) error {
	if errs.IsTimeout(err) || errs.IsConnectionFailed(err) {
		return err
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, "failed to open database", err)
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() error {
	if err := d.db.Close(); err != nil {
		return mapError(err, "close failed")
	}
	return nil
}

func (d *Driver) Path() string {
	return d.path
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &sqliteRows{rows: rows}, nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) database.RowScanner {
	return &sqliteRow{row: d.db.QueryRowContext(ctx, query, args...)}
}

func (d *Driver) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "statement failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err, "failed to read rows affected")
	}
	return n, nil
}

func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`

	rows, err := d.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

func (d *Driver) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT 1
		FROM sqlite_master
		WHERE type = 'table'
		  AND name = ?`

	var exists int
	err := d.db.QueryRowContext(ctx, q, table).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, mapError(err, "failed to check table existence")
	}
	return true, nil
}

// --- sql.DB type wrappers ---

type sqliteRows struct {
	rows *sql.Rows
}

func (r *sqliteRows) Next() bool                 { return r.rows.Next() }
func (r *sqliteRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *sqliteRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *sqliteRows) Close()                     { _ = r.rows.Close() }
func (r *sqliteRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, "row iteration failed")
	}
	return nil
}

type sqliteRow struct {
	row *sql.Row
}

func (r *sqliteRow) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		return mapError(err, "scan failed")
	}
	return nil
}
