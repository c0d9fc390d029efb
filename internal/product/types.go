// Package product holds the product/sales record model and the schema
// normalizer that turns messy tabular rows into typed records.
//
// Rows whose required fields cannot be coerced are dropped, not reported.
// Callers only see how many rows were submitted and how many were admitted.
package product

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Cell is one labelled value of a raw input row.
// Value is whatever the reader produced: string, a Go number,
// decimal.Decimal, time.Time or nil.
type Cell struct {
	Label string
	Value any
}

// RawRow is an ordered, unnormalized input row. It carries no invariants.
type RawRow []Cell

// NormalizedRow is a row that passed coercion and admission.
// SKU and Name are non-empty, Price and Quantity are non-negative and
// TxDate is a calendar date at UTC midnight.
type NormalizedRow struct {
	SKU      string
	Name     string
	Category string
	Price    decimal.Decimal
	Quantity int64
	TxDate   time.Time
}

// Record is a persisted product keyed by SKU.
type Record struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	TxDate    time.Time       `json:"tx_date"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Revenue returns price × quantity.
func (r Record) Revenue() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(r.Quantity))
}

// Column limits of the persisted record.
const (
	MaxSKULen      = 64
	MaxNameLen     = 255
	MaxCategoryLen = 120

	// PricePlaces is the scale of the stored price, NUMERIC(12,2).
	PricePlaces = 2

	// MaxQuantity is the largest storable quantity (a 32-bit column).
	MaxQuantity = math.MaxInt32
)

// MaxPrice is the largest value a NUMERIC(12,2) price column holds.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the canonical text form of a transaction date.
const DateLayout = "2006-01-02"
