package store

import (
	"testing"
	"time"
)

func TestNewWhereBuilder(t *testing.T) {
	wb := NewWhereBuilder(Postgres)

	if wb == nil {
		t.Fatal("NewWhereBuilder returned nil")
	}
	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 {
		t.Errorf("expected empty conditions, got %d", len(wb.conditions))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	whereClause, args := NewWhereBuilder(Postgres).Build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_AddDateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		dialect    Dialect
		from, to   time.Time
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "postgres both bounds",
			dialect:    Postgres,
			from:       from,
			to:         to,
			wantClause: " WHERE tx_date >= $1 AND tx_date <= $2",
			wantArgs:   []any{from, to},
		},
		{
			name:       "sqlite both bounds",
			dialect:    SQLite,
			from:       from,
			to:         to,
			wantClause: " WHERE tx_date >= ?1 AND tx_date <= ?2",
			wantArgs:   []any{"2024-01-01", "2024-12-31"},
		},
		{
			name:       "only upper bound",
			dialect:    SQLite,
			to:         to,
			wantClause: " WHERE tx_date <= ?1",
			wantArgs:   []any{"2024-12-31"},
		},
		{
			name:       "no bounds",
			dialect:    Postgres,
			wantClause: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder(tt.dialect)
			wb.AddDateRange("tx_date", tt.from, tt.to)

			gotClause, gotArgs := wb.Build()
			if gotClause != tt.wantClause {
				t.Errorf("clause = %q, want %q", gotClause, tt.wantClause)
			}
			if len(gotArgs) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", gotArgs, tt.wantArgs)
			}
			for i := range gotArgs {
				if gotT, ok := gotArgs[i].(time.Time); ok {
					if !gotT.Equal(tt.wantArgs[i].(time.Time)) {
						t.Errorf("arg %d = %v, want %v", i, gotArgs[i], tt.wantArgs[i])
					}
					continue
				}
				if gotArgs[i] != tt.wantArgs[i] {
					t.Errorf("arg %d = %v, want %v", i, gotArgs[i], tt.wantArgs[i])
				}
			}
		})
	}
}

func TestWhereBuilder_AddContains(t *testing.T) {
	tests := []struct {
		name       string
		dialect    Dialect
		term       string
		columns    []string
		wantClause string
		wantArg    string
	}{
		{
			name:       "empty term skipped",
			dialect:    Postgres,
			term:       "  ",
			columns:    []string{"name"},
			wantClause: "",
		},
		{
			name:       "single column",
			dialect:    Postgres,
			term:       "tool",
			columns:    []string{"category"},
			wantClause: ` WHERE (category ILIKE $1 ESCAPE '\')`,
			wantArg:    "%tool%",
		},
		{
			name:       "multiple columns share one arg",
			dialect:    Postgres,
			term:       "wid",
			columns:    []string{"sku", "name"},
			wantClause: ` WHERE (sku ILIKE $1 ESCAPE '\' OR name ILIKE $1 ESCAPE '\')`,
			wantArg:    "%wid%",
		},
		{
			name:       "sqlite numbered placeholder",
			dialect:    SQLite,
			term:       "wid",
			columns:    []string{"sku", "name"},
			wantClause: ` WHERE (datalab_fold(sku) LIKE ?1 ESCAPE '\' OR datalab_fold(name) LIKE ?1 ESCAPE '\')`,
			wantArg:    "%wid%",
		},
		{
			name:       "sqlite term folded",
			dialect:    SQLite,
			term:       "ÉCLAIR",
			columns:    []string{"category"},
			wantClause: ` WHERE (datalab_fold(category) LIKE ?1 ESCAPE '\')`,
			wantArg:    "%éclair%",
		},
		{
			name:       "postgres term kept",
			dialect:    Postgres,
			term:       "ÉCLAIR",
			columns:    []string{"category"},
			wantClause: ` WHERE (category ILIKE $1 ESCAPE '\')`,
			wantArg:    "%ÉCLAIR%",
		},
		{
			name:       "wildcards escaped",
			dialect:    Postgres,
			term:       `50%_off\`,
			columns:    []string{"name"},
			wantClause: ` WHERE (name ILIKE $1 ESCAPE '\')`,
			wantArg:    `%50\%\_off\\%`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder(tt.dialect)
			wb.AddContains(tt.term, tt.columns...)

			gotClause, gotArgs := wb.Build()
			if gotClause != tt.wantClause {
				t.Errorf("clause = %q, want %q", gotClause, tt.wantClause)
			}
			if tt.wantArg == "" {
				if len(gotArgs) != 0 {
					t.Errorf("args = %v, want none", gotArgs)
				}
				return
			}
			if len(gotArgs) != 1 || gotArgs[0] != tt.wantArg {
				t.Errorf("args = %v, want [%s]", gotArgs, tt.wantArg)
			}
		})
	}
}

func TestWhereBuilder_AddFilter(t *testing.T) {
	wb := NewWhereBuilder(Postgres)
	wb.AddFilter(Filter{
		DateFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Category: "tools",
		Search:   "A1",
	})

	gotClause, gotArgs := wb.Build()

	expected := ` WHERE tx_date >= $1 AND (category ILIKE $2 ESCAPE '\') AND (sku ILIKE $3 ESCAPE '\' OR name ILIKE $3 ESCAPE '\')`
	if gotClause != expected {
		t.Errorf("clause = %q, want %q", gotClause, expected)
	}
	if len(gotArgs) != 3 {
		t.Errorf("args count = %d, want 3", len(gotArgs))
	}
}

func TestOrderClause(t *testing.T) {
	if got := OrderRecent.clause(); got != " ORDER BY tx_date DESC, id DESC" {
		t.Errorf("recent = %q", got)
	}
	if got := OrderExport.clause(); got != " ORDER BY tx_date DESC, sku ASC" {
		t.Errorf("export = %q", got)
	}
}
