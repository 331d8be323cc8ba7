package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/koustreak/sqlscope/internal/errs"
)

// Row is one result row: values in projection order, addressable by column name.
// Values are always one of nil, int64, float64, string or []byte.
type Row struct {
	columns []string
	values  []any
}

// NewRow pairs columns with values. Both slices must have the same length;
// the row keeps references to them.
func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

func (r Row) Columns() []string { return r.columns }
func (r Row) Values() []any     { return r.values }
func (r Row) Len() int          { return len(r.values) }

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column → value map. When a projection repeats a
// column name, the last occurrence wins.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// MarshalJSON encodes the row as an object whose keys keep projection order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(JSONValue(r.values[i]))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ResultSet is a fully materialized query result.
type ResultSet struct {
	Columns []string
	Rows    []Row
}

// ScanRows reads all rows from the result set.
//
// The returned Rows slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows; callers do not need to call Close().
func ScanRows(rows Rows) (*ResultSet, error) {
	rs := &ResultSet{Rows: make([]Row, 0)}
	err := EachRow(rows,
		func(columns []string) error {
			rs.Columns = columns
			return nil
		},
		func(row Row) error {
			rs.Rows = append(rs.Rows, row)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// EachRow streams the result set: onColumns is called once before the first
// row, then fn once per row. Errors returned by the callbacks are passed
// through unchanged. EachRow always closes the Rows.
func EachRow(rows Rows, onColumns func([]string) error, fn func(Row) error) error {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return errs.Wrap(errs.ErrKindSourceError, "failed to read column names", err)
	}
	if onColumns != nil {
		if err := onColumns(columns); err != nil {
			return err
		}
	}

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return errs.Wrap(errs.ErrKindSourceError, "failed to scan row", err)
		}
		for i := range dest {
			dest[i] = Normalize(dest[i])
		}

		if err := fn(NewRow(columns, dest)); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.ErrKindSourceError, "error during row iteration", err)
	}
	return nil
}

// ScanRow reads a single row with the given projection.
func ScanRow(row RowScanner, columns []string) (Row, error) {
	dest := make([]any, len(columns))
	destPtrs := make([]any, len(columns))
	for i := range dest {
		destPtrs[i] = &dest[i]
	}

	if err := row.Scan(destPtrs...); err != nil {
		return Row{}, errs.Wrap(errs.ErrKindSourceError, "failed to scan single row", err)
	}
	for i := range dest {
		dest[i] = Normalize(dest[i])
	}
	return NewRow(columns, dest), nil
}

// Normalize maps a driver value onto the five value kinds a Row carries.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string, []byte:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return FormatTime(x)
	default:
		return fmt.Sprint(x)
	}
}

// FormatTime renders t the way SQLite's datetime() stores it. The driver
// parses text in DATE, DATETIME and TIMESTAMP columns into time.Time; this
// turns it back into the stored form. Fractional seconds and the zone offset
// appear only when present.
func FormatTime(t time.Time) string {
	layout := "2006-01-02 15:04:05"
	if t.Nanosecond() != 0 {
		layout += ".999999999"
	}
	if _, offset := t.Zone(); offset != 0 {
		layout += "-07:00"
	}
	return t.Format(layout)
}

// JSONValue returns v ready for encoding/json. Infinite and NaN reals have
// no JSON number form and become the strings "Infinity", "-Infinity" and
// "NaN".
func JSONValue(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}
	return f
}
