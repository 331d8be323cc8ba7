package database

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlscope/internal/errs"
)

// SelectBuilder constructs a parameterized SELECT over a single table using a
// fluent API. Identifiers are quoted; LIMIT and OFFSET are always passed as args.
//
// Usage:
//
//	sql, args, err := database.Select("orders").
//	    OrderBy("id").
//	    Limit(10).
//	    Offset(20).
//	    Build()
type SelectBuilder struct {
	table    string
	columns  []string
	orderBy  []string
	rowOrder bool
	limit    *int
	offset   *int
}

// Select starts a new SelectBuilder for the given table.
func Select(table string) *SelectBuilder {
	return &SelectBuilder{table: table}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// OrderBy appends ascending sort keys.
func (b *SelectBuilder) OrderBy(cols ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, cols...)
	return b
}

// OrderByRowID sorts by SQLite's implicit rowid, i.e. insertion order for
// tables that declare no primary key.
func (b *SelectBuilder) OrderByRowID() *SelectBuilder {
	b.rowOrder = true
	return b
}

// Limit caps the number of rows returned.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset skips the first n rows.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build validates the builder and returns the SQL string and its args.
func (b *SelectBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "table name must not be empty")
	}
	if b.limit != nil && *b.limit < 0 {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "limit must be non-negative, got %d", *b.limit)
	}
	if b.offset != nil && *b.offset < 0 {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "offset must be non-negative, got %d", *b.offset)
	}

	var sb strings.Builder
	var args []any

	// --- SELECT ---
	sb.WriteString("SELECT ")
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		quoted := make([]string, len(b.columns))
		for i, c := range b.columns {
			quoted[i] = QuoteIdent(c)
		}
		sb.WriteString(strings.Join(quoted, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(QuoteIdent(b.table))

	// --- ORDER BY ---
	var keys []string
	for _, c := range b.orderBy {
		keys = append(keys, QuoteIdent(c)+" ASC")
	}
	if b.rowOrder {
		keys = append(keys, "rowid ASC")
	}
	if len(keys) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	// --- LIMIT / OFFSET ---
	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if b.limit != nil || b.offset != nil {
		limit := -1
		if b.limit != nil {
			limit = *b.limit
		}
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET ?")
		args = append(args, *b.offset)
	}

	return sb.String(), args, nil
}

// CountRows returns a statement counting all rows of table.
func CountRows(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteIdent(table))
}

// QuoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// This safely handles reserved words and mixed-case names.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
