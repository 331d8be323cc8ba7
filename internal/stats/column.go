// Package stats computes per-column summary statistics over a page of rows
// or over a whole table.
package stats

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/koustreak/sqlscope/internal/database"
)

// ColumnStatistics summarizes one column.
type ColumnStatistics struct {
	Column         string          `json:"column"`
	DeclaredType   string          `json:"declared_type"`
	TotalCount     int64           `json:"total_count"`
	NullCount      int64           `json:"null_count"`
	NonNullCount   int64           `json:"non_null_count"`
	NullPercentage float64         `json:"null_percentage"`
	UniqueCount    int64           `json:"unique_count"`
	Numeric        *NumericSummary `json:"numeric,omitempty"`
	Text           *TextSummary    `json:"text,omitempty"`
}

// NumericSummary aggregates the integer and real values of a column.
// With Count 0 there is no data and Min, Max and Avg are nil.
type NumericSummary struct {
	Count int64    `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
}

// MarshalJSON writes infinite or NaN aggregates as strings; they have no
// JSON number form.
func (n NumericSummary) MarshalJSON() ([]byte, error) {
	opt := func(f *float64) any {
		if f == nil {
			return nil
		}
		return database.JSONValue(*f)
	}
	return json.Marshal(struct {
		Count int64 `json:"count"`
		Min   any   `json:"min"`
		Max   any   `json:"max"`
		Avg   any   `json:"avg"`
	}{n.Count, opt(n.Min), opt(n.Max), opt(n.Avg)})
}

// TextSummary aggregates the lengths, in characters, of a column's text
// values. With Count 0 there is no data and the lengths are nil.
type TextSummary struct {
	Count     int64    `json:"count"`
	MinLength *int64   `json:"min_length"`
	MaxLength *int64   `json:"max_length"`
	AvgLength *float64 `json:"avg_length"`
}

// Aggregate is the type-specific block a column gets.
type Aggregate int

const (
	AggregateNone Aggregate = iota
	AggregateNumeric
	AggregateText
)

// AggregateFor picks the aggregate block from a declared column type using
// SQLite's type affinity rules: INT, REAL, FLOA, DOUB and the NUMERIC
// fallback are numeric; CHAR, CLOB and TEXT are text; BLOB or no type gets
// no aggregate.
func AggregateFor(declared string) Aggregate {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return AggregateNumeric
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AggregateText
	case strings.Contains(t, "BLOB"), strings.TrimSpace(t) == "":
		return AggregateNone
	default:
		return AggregateNumeric
	}
}

// NullPercentage returns nulls/total×100, or 0 for an empty column.
func NullPercentage(nulls, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(nulls) / float64(total) * 100
}

// Compute returns page-local statistics for each column of rows, in column
// order. declared maps column names to declared types; columns missing from
// it get no aggregate block.
func Compute(columns []string, declared map[string]string, rows []database.Row) []ColumnStatistics {
	out := make([]ColumnStatistics, len(columns))
	for ci, col := range columns {
		acc := newAccumulator(AggregateFor(declared[col]))
		for _, r := range rows {
			acc.add(r.Values()[ci])
		}
		out[ci] = acc.result(col, declared[col])
	}
	return out
}

// accumulator folds one column's values into ColumnStatistics.
type accumulator struct {
	agg Aggregate

	total, nulls int64
	distinct     map[string]struct{}

	numCount         int64
	numMin, numMax   float64
	numSum           float64
	textCount        int64
	textMin, textMax int64
	textSum          int64
}

func newAccumulator(agg Aggregate) *accumulator {
	return &accumulator{agg: agg, distinct: make(map[string]struct{})}
}

func (a *accumulator) add(v any) {
	a.total++
	if v == nil {
		a.nulls++
		return
	}
	a.distinct[distinctKey(v)] = struct{}{}

	switch a.agg {
	case AggregateNumeric:
		f, ok := asFloat(v)
		if !ok {
			return
		}
		if a.numCount == 0 || f < a.numMin {
			a.numMin = f
		}
		if a.numCount == 0 || f > a.numMax {
			a.numMax = f
		}
		a.numSum += f
		a.numCount++
	case AggregateText:
		s, ok := v.(string)
		if !ok {
			return
		}
		n := int64(utf8.RuneCountInString(s))
		if a.textCount == 0 || n < a.textMin {
			a.textMin = n
		}
		if a.textCount == 0 || n > a.textMax {
			a.textMax = n
		}
		a.textSum += n
		a.textCount++
	}
}

func (a *accumulator) result(column, declared string) ColumnStatistics {
	cs := ColumnStatistics{
		Column:         column,
		DeclaredType:   declared,
		TotalCount:     a.total,
		NullCount:      a.nulls,
		NonNullCount:   a.total - a.nulls,
		NullPercentage: NullPercentage(a.nulls, a.total),
		UniqueCount:    int64(len(a.distinct)),
	}

	switch a.agg {
	case AggregateNumeric:
		cs.Numeric = &NumericSummary{Count: a.numCount}
		if a.numCount > 0 {
			lo, hi, avg := a.numMin, a.numMax, a.numSum/float64(a.numCount)
			cs.Numeric.Min, cs.Numeric.Max, cs.Numeric.Avg = &lo, &hi, &avg
		}
	case AggregateText:
		cs.Text = &TextSummary{Count: a.textCount}
		if a.textCount > 0 {
			lo, hi, avg := a.textMin, a.textMax, float64(a.textSum)/float64(a.textCount)
			cs.Text.MinLength, cs.Text.MaxLength, cs.Text.AvgLength = &lo, &hi, &avg
		}
	}
	return cs
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// distinctKey makes values that SQLite's DISTINCT treats as equal collide:
// integer 1 and real 1.0 share a key, text "1" does not.
func distinctKey(v any) string {
	switch x := v.(type) {
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
			return "n:" + strconv.FormatInt(int64(x), 10)
		}
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "t:" + x
	case []byte:
		return "b:" + string(x)
	default:
		return "o:" + fmt.Sprint(x)
	}
}
