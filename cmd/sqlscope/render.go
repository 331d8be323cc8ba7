package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"

	"github.com/koustreak/sqlscope/internal/database"
	"github.com/koustreak/sqlscope/internal/service"
	"github.com/koustreak/sqlscope/internal/stats"
	"github.com/olekukonko/tablewriter"
)

const nullText = "NULL"

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func renderTables(w io.Writer, res *service.TablesResult) {
	table := newTable(w, []string{"Table", "Definition"})
	for _, t := range res.Tables {
		table.Append([]string{t.Name, t.CreateSQL})
	}
	table.Render()
}

func renderSchema(w io.Writer, res *service.SchemaResult) {
	table := newTable(w, []string{"Column", "Type", "Nullable", "Default", "PK"})
	for _, c := range res.Columns {
		def := nullText
		if c.DefaultValue != nil {
			def = *c.DefaultValue
		}
		table.Append([]string{c.Name, c.Type, strconv.FormatBool(c.Nullable), def, strconv.FormatBool(c.PrimaryKey)})
	}
	table.Render()

	if len(res.ForeignKeys) == 0 {
		return
	}
	fks := newTable(w, []string{"Column", "References"})
	for _, fk := range res.ForeignKeys {
		fks.Append([]string{fk.Column, fk.RefTable + "." + fk.RefColumn})
	}
	fks.Render()
}

func renderRows(w io.Writer, columns []string, rows []database.Row) {
	table := newTable(w, columns)
	for _, row := range rows {
		cells := make([]string, row.Len())
		for i, v := range row.Values() {
			cells[i] = formatValue(v)
		}
		table.Append(cells)
	}
	table.Render()
}

// renderColumnStats prints one line per column, in the given column order.
func renderColumnStats(w io.Writer, columns []string, byColumn map[string]stats.ColumnStatistics) {
	table := newTable(w, []string{"Column", "Type", "Total", "Nulls", "Null %", "Unique", "Min", "Max", "Avg"})
	for _, name := range columns {
		cs, ok := byColumn[name]
		if !ok {
			continue
		}
		// text columns report lengths
		lo, hi, avg := "", "", ""
		switch {
		case cs.Numeric != nil:
			lo, hi, avg = formatFloat(cs.Numeric.Min), formatFloat(cs.Numeric.Max), formatFloat(cs.Numeric.Avg)
		case cs.Text != nil:
			lo, hi, avg = formatInt(cs.Text.MinLength), formatInt(cs.Text.MaxLength), formatFloat(cs.Text.AvgLength)
		}
		table.Append([]string{
			cs.Column,
			cs.DeclaredType,
			strconv.FormatInt(cs.TotalCount, 10),
			strconv.FormatInt(cs.NullCount, 10),
			fmt.Sprintf("%.2f", cs.NullPercentage),
			strconv.FormatInt(cs.UniqueCount, 10),
			lo, hi, avg,
		})
	}
	table.Render()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return nullText
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatInt(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}
