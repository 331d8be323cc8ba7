package schema

import "sort"

// Column describes a single column in a table
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"` // declared type, as written in CREATE TABLE
	Nullable     bool    `json:"nullable"`
	DefaultValue *string `json:"default_value"` // nil if no default
	PrimaryKey   bool    `json:"primary_key"`
	PKOrdinal    int     `json:"-"` // 1-based position within the primary key, 0 if not part of it
}

// ForeignKey describes a reference from one column to another table
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"referenced_table"`
	RefColumn string `json:"referenced_column"`
}

// Table describes a table, its columns and its foreign keys.
// Tables returned by the Inspector may be shared; treat them as read-only.
type Table struct {
	Name        string       `json:"table_name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// TableSummary is one entry of the catalog listing
type TableSummary struct {
	Name      string `json:"name"`
	CreateSQL string `json:"create_sql"`
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the primary key columns in key order, or nil when the
// table declares no primary key.
func (t *Table) PrimaryKey() []string {
	var pk []Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c)
		}
	}
	sort.SliceStable(pk, func(i, j int) bool { return pk[i].PKOrdinal < pk[j].PKOrdinal })

	names := make([]string, 0, len(pk))
	for _, c := range pk {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return nil
	}
	return names
}
