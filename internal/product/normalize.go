package product

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Normalizer maps raw rows onto the canonical product schema.
// It is safe for concurrent use; per-call state lives in Normalize.
type Normalizer struct {
	synonyms map[string]string
}

// NewNormalizer creates a Normalizer with the given synonym table.
// A nil table means DefaultSynonyms.
func NewNormalizer(synonyms map[string]string) *Normalizer {
	return &Normalizer{synonyms: synonyms}
}

// Result is the outcome of normalizing a batch of raw rows.
type Result struct {
	Rows      []NormalizedRow
	Submitted int // Non-empty rows seen
}

// Admitted returns the number of rows that passed admission.
func (r Result) Admitted() int {
	return len(r.Rows)
}

// Dropped returns the number of submitted rows that were excluded.
func (r Result) Dropped() int {
	return r.Submitted - len(r.Rows)
}

// Normalize cleans and renames columns, coerces values and keeps only rows
// that carry every required field. Output order follows input order.
func (n *Normalizer) Normalize(rows []RawRow) Result {
	mapper := NewColumnMapper(n.synonyms)
	result := Result{Rows: make([]NormalizedRow, 0, len(rows))}

	for _, raw := range rows {
		if isEmptyRow(raw) {
			continue
		}
		result.Submitted++

		if row, ok := normalizeRow(raw, mapper); ok {
			result.Rows = append(result.Rows, row)
		}
	}

	return result
}

// Normalize runs the default normalizer over rows.
func Normalize(rows []RawRow) Result {
	return NewNormalizer(nil).Normalize(rows)
}

// normalizeRow coerces a single row field by field in Schema order.
// ok is false when the row is dropped.
func normalizeRow(raw RawRow, mapper *ColumnMapper) (NormalizedRow, bool) {
	values := make(map[string]any, len(raw))
	for _, cell := range raw {
		col := mapper.Resolve(cell.Label)
		// first non-missing occurrence of a column wins
		if prev, seen := values[col]; seen && !isMissing(prev) {
			continue
		}
		values[col] = cell.Value
	}

	var row NormalizedRow
	for _, spec := range Schema {
		v, ok := spec.Coerce(values[spec.Name])
		if !ok {
			if spec.Required {
				return NormalizedRow{}, false
			}
			continue
		}
		row.set(spec.Name, v)
	}

	if row.Price.IsNegative() {
		row.Price = decimal.Zero
	}
	if row.Quantity < 0 {
		row.Quantity = 0
	}

	row.Price = row.Price.Round(PricePlaces)
	if row.Price.GreaterThan(MaxPrice) || row.Quantity > MaxQuantity {
		return NormalizedRow{}, false
	}

	return row, true
}

// set stores a value produced by FieldSpec.Coerce.
func (r *NormalizedRow) set(col string, v any) {
	switch col {
	case ColSKU:
		r.SKU = v.(string)
	case ColName:
		r.Name = v.(string)
	case ColCategory:
		r.Category = v.(string)
	case ColPrice:
		r.Price = v.(decimal.Decimal)
	case ColQuantity:
		r.Quantity = v.(int64)
	case ColTxDate:
		r.TxDate = v.(time.Time)
	}
}

func isMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case time.Time:
		return x.IsZero()
	}
	return false
}

func isEmptyRow(row RawRow) bool {
	for _, cell := range row {
		if !isMissing(cell.Value) {
			return false
		}
	}
	return true
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}
