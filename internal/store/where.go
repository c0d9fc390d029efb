package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/datalab/internal/product"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect int

const (
	// Postgres uses $n placeholders, ILIKE and native DATE values.
	Postgres Dialect = iota
	// SQLite uses ?n placeholders, LIKE over folded text and ISO date text.
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

func (d Dialect) placeholder(n int) string {
	if d == SQLite {
		return fmt.Sprintf("?%d", n)
	}
	return fmt.Sprintf("$%d", n)
}

// contains renders a case-insensitive match of col against placeholder p.
// SQLite's LIKE and lower() only fold ASCII, so both sides go through the
// Unicode-aware fold function registered by the SQLite store.
func (d Dialect) contains(col, p string) string {
	if d == SQLite {
		return fmt.Sprintf(`%s(%s) LIKE %s ESCAPE '\'`, foldFunc, col, p)
	}
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, p)
}

func (d Dialect) pattern(term string) string {
	if d == SQLite {
		term = strings.ToLower(term)
	}
	return "%" + escapeLike(term) + "%"
}

func (d Dialect) dateArg(t time.Time) any {
	if d == SQLite {
		return t.Format(product.DateLayout)
	}
	return product.DateOf(t)
}

// WhereBuilder helps construct WHERE clauses with positional parameters.
type WhereBuilder struct {
	dialect    Dialect
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder creates a builder for the given dialect.
func NewWhereBuilder(d Dialect) *WhereBuilder {
	return &WhereBuilder{
		dialect:  d,
		argIndex: 1,
	}
}

func (w *WhereBuilder) next(arg any) string {
	p := w.dialect.placeholder(w.argIndex)
	w.args = append(w.args, arg)
	w.argIndex++
	return p
}

// AddDateRange adds inclusive bounds on a date column. Zero bounds are skipped.
func (w *WhereBuilder) AddDateRange(column string, from, to time.Time) {
	if !from.IsZero() {
		w.conditions = append(w.conditions, fmt.Sprintf("%s >= %s", column, w.next(w.dialect.dateArg(from))))
	}
	if !to.IsZero() {
		w.conditions = append(w.conditions, fmt.Sprintf("%s <= %s", column, w.next(w.dialect.dateArg(to))))
	}
}

// AddContains adds a case-insensitive substring match of term against any of
// columns. Empty terms are skipped. LIKE wildcards in term match literally.
func (w *WhereBuilder) AddContains(term string, columns ...string) {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return
	}

	p := w.next(w.dialect.pattern(term))
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = w.dialect.contains(col, p)
	}
	w.conditions = append(w.conditions, "("+strings.Join(parts, " OR ")+")")
}

// AddFilter applies every set field of f.
func (w *WhereBuilder) AddFilter(f Filter) {
	w.AddDateRange("tx_date", f.DateFrom, f.DateTo)
	w.AddContains(f.Category, "category")
	w.AddContains(f.Search, "sku", "name")
}

// Build returns the WHERE clause (with leading space) and args.
// Returns empty string and nil args if no conditions.
func (w *WhereBuilder) Build() (string, []any) {
	if len(w.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(w.conditions, " AND "), w.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
