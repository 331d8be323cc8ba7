package database

import (
	"testing"

	"github.com/koustreak/sqlscope/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBuilder_Build(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		builder  *SelectBuilder
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "bare table",
			builder: Select("users"),
			wantSQL: `SELECT * FROM "users"`,
		},
		{
			name:     "primary key order with page",
			builder:  Select("orders").OrderBy("id").Limit(10).Offset(20),
			wantSQL:  `SELECT * FROM "orders" ORDER BY "id" ASC LIMIT ? OFFSET ?`,
			wantArgs: []any{10, 20},
		},
		{
			name:     "rowid order",
			builder:  Select("events").OrderByRowID().Limit(5),
			wantSQL:  `SELECT * FROM "events" ORDER BY rowid ASC LIMIT ?`,
			wantArgs: []any{5},
		},
		{
			name:     "offset without limit",
			builder:  Select("events").Offset(3),
			wantSQL:  `SELECT * FROM "events" LIMIT ? OFFSET ?`,
			wantArgs: []any{-1, 3},
		},
		{
			name:    "columns are quoted",
			builder: Select(`we"ird`).Columns("a", "order"),
			wantSQL: `SELECT "a", "order" FROM "we""ird"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sql, args, err := tt.builder.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelectBuilder_Invalid(t *testing.T) {
	t.Parallel()

	_, _, err := Select("").Build()
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = Select("t").Limit(-1).Build()
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = Select("t").Offset(-5).Build()
	assert.True(t, errs.IsInvalidInput(err))
}

func TestCountRows(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `SELECT COUNT(*) FROM "order items"`, CountRows("order items"))
}
