// Package dbtest provides an in-memory database.DB that records every call,
// for tests that must prove which statements reached the data source.
package dbtest

import (
	"context"
	"database/sql"
	"sync"

	"github.com/koustreak/sqlscope/internal/database"
)

// Stub is a database.DB whose behaviour is set through its function fields.
// Unset fields return empty results.
type Stub struct {
	PathValue string
	Tables    []string

	QueryFunc func(ctx context.Context, sql string, args ...any) (database.Rows, error)
	ExecFunc  func(ctx context.Context, sql string, args ...any) (int64, error)
	CloseErr  error

	mu     sync.Mutex
	calls  []string
	closed bool
}

var _ database.DB = (*Stub)(nil)

func (s *Stub) record(sql string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sql)
}

// Statements returns every SQL string passed to Query, QueryRow or Exec.
func (s *Stub) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Closed reports whether Close was called.
func (s *Stub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stub) Ping(context.Context) error { return nil }

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseErr
}

func (s *Stub) Path() string { return s.PathValue }

func (s *Stub) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	s.record(sql)
	if s.QueryFunc != nil {
		return s.QueryFunc(ctx, sql, args...)
	}
	return &Rows{}, nil
}

func (s *Stub) QueryRow(ctx context.Context, sql string, args ...any) database.RowScanner {
	s.record(sql)
	if s.QueryFunc == nil {
		return &row{rows: &Rows{}}
	}
	rows, err := s.QueryFunc(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

func (s *Stub) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	s.record(sql)
	if s.ExecFunc != nil {
		return s.ExecFunc(ctx, sql, args...)
	}
	return 0, nil
}

func (s *Stub) ListTables(context.Context) ([]string, error) {
	if s.Tables == nil {
		return []string{}, nil
	}
	return s.Tables, nil
}

func (s *Stub) TableExists(_ context.Context, table string) (bool, error) {
	for _, t := range s.Tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

// Rows is a fixed in-memory result set.
type Rows struct {
	Cols    []string
	Data    [][]any
	IterErr error

	pos int
}

func (r *Rows) Next() bool {
	if r.pos >= len(r.Data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	cur := r.Data[r.pos-1]
	for i := range dest {
		*(dest[i].(*any)) = cur[i]
	}
	return nil
}

func (r *Rows) Columns() ([]string, error) { return r.Cols, nil }
func (r *Rows) Close()                     {}
func (r *Rows) Err() error                 { return r.IterErr }

type row struct {
	rows database.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		return sql.ErrNoRows
	}
	return r.rows.Scan(dest...)
}
