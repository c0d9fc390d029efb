package product

import (
	"regexp"
	"strings"
)

// nonWordRegex matches everything a cleaned column label may not contain.
var nonWordRegex = regexp.MustCompile(`[^0-9a-zA-Z_]`)

// DefaultSynonyms maps cleaned source labels to canonical column names.
// Labels missing from the table pass through unchanged.
var DefaultSynonyms = map[string]string{
	"product_sku": ColSKU,
	"product":     ColName,
	"title":       ColName,
	"cat":         ColCategory,
	"qty":         ColQuantity,
	"date":        ColTxDate,
}

// MergeSynonyms returns DefaultSynonyms overlaid with extra. Neither input
// is modified.
func MergeSynonyms(extra map[string]string) map[string]string {
	merged := make(map[string]string, len(DefaultSynonyms)+len(extra))
	for from, to := range DefaultSynonyms {
		merged[from] = to
	}
	for from, to := range extra {
		merged[from] = to
	}
	return merged
}

// CleanColumn normalizes a raw column label: surrounding whitespace is
// trimmed, inner spaces become underscores, anything outside [0-9a-zA-Z_]
// is removed and the result is lowercased.
//
// CleanColumn(CleanColumn(s)) == CleanColumn(s) for every s.
func CleanColumn(label string) string {
	s := strings.TrimSpace(label)
	s = strings.ReplaceAll(s, " ", "_")
	s = nonWordRegex.ReplaceAllString(s, "")
	return strings.ToLower(s)
}

// ColumnMapper resolves raw labels to canonical names with a single lookup.
type ColumnMapper struct {
	synonyms map[string]string
	cache    map[string]string
}

// NewColumnMapper creates a mapper over the given synonym table.
// A nil table means DefaultSynonyms.
func NewColumnMapper(synonyms map[string]string) *ColumnMapper {
	if synonyms == nil {
		synonyms = DefaultSynonyms
	}
	table := make(map[string]string, len(synonyms))
	for from, to := range synonyms {
		table[CleanColumn(from)] = to
	}
	return &ColumnMapper{
		synonyms: table,
		cache:    make(map[string]string),
	}
}

// Resolve cleans label and applies the synonym table once.
// The renamed value is not looked up again.
func (m *ColumnMapper) Resolve(label string) string {
	if name, ok := m.cache[label]; ok {
		return name
	}
	name := CleanColumn(label)
	if renamed, ok := m.synonyms[name]; ok {
		name = renamed
	}
	m.cache[label] = name
	return name
}
