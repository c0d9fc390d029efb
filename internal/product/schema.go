package product

import "unicode/utf8"

// FieldType represents the target type of a canonical column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldInteger
	FieldDate
)

// FieldSpec describes one canonical column of the normalized schema.
type FieldSpec struct {
	Name     string    // Canonical (cleaned) column name
	Type     FieldType // Coercion target
	Required bool      // Row is dropped when the coerced value is missing
	MaxLen   int       // Text only, in runes; 0 means unbounded
	Truncate bool      // Longer text is cut to MaxLen instead of being missing
}

// Canonical column names.
const (
	ColSKU      = "sku"
	ColName     = "name"
	ColCategory = "category"
	ColPrice    = "price"
	ColQuantity = "quantity"
	ColTxDate   = "tx_date"
)

// Schema is the canonical product schema in output column order.
// The normalizer coerces and admits rows by walking it.
var Schema = []FieldSpec{
	{Name: ColSKU, Type: FieldText, Required: true, MaxLen: MaxSKULen},
	{Name: ColName, Type: FieldText, Required: true, MaxLen: MaxNameLen, Truncate: true},
	{Name: ColCategory, Type: FieldText, MaxLen: MaxCategoryLen, Truncate: true},
	{Name: ColPrice, Type: FieldNumeric, Required: true},
	{Name: ColQuantity, Type: FieldInteger, Required: true},
	{Name: ColTxDate, Type: FieldDate, Required: true},
}

// Columns returns the canonical column names in schema order.
func Columns() []string {
	cols := make([]string, len(Schema))
	for i, spec := range Schema {
		cols[i] = spec.Name
	}
	return cols
}

// Coerce converts a raw cell to the field's type: string, decimal.Decimal,
// int64 or time.Time. ok is false when the value is missing or does not
// convert.
func (f FieldSpec) Coerce(v any) (any, bool) {
	switch f.Type {
	case FieldText:
		s := ToText(v)
		if s == "" {
			return nil, false
		}
		if f.MaxLen > 0 && utf8.RuneCountInString(s) > f.MaxLen {
			if !f.Truncate {
				return nil, false
			}
			s = truncateRunes(s, f.MaxLen)
		}
		return s, true
	case FieldNumeric:
		d, ok := ToDecimal(v)
		return d, ok
	case FieldInteger:
		n, ok := ToQuantity(v)
		return n, ok
	case FieldDate:
		t, ok := ToDate(v)
		return t, ok
	default:
		return nil, false
	}
}
