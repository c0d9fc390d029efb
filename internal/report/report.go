// Package report computes the business reports over a snapshot of product
// records: monthly and quarterly revenue, category breakdown, top SKUs,
// low-stock alerts and the dashboard summary.
//
// Every function is pure. Callers fetch the live record set and pass it in
// on each request; nothing is cached between calls. Revenue is always
// price × quantity in exact decimal arithmetic.
package report

import (
	"sort"
	"time"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/shopspring/decimal"
)

// Report limits.
const (
	TopSKULimit        = 10
	LowStockLimit      = 10
	LowStockThreshold  = 5
	TopCategoriesLimit = 5
)

// PricePlaces is the number of decimal places mean prices are rounded to.
const PricePlaces = product.PricePlaces

// MonthBucket is the revenue for one calendar month.
type MonthBucket struct {
	Month   time.Time       `json:"month"` // first day of the month, UTC
	Revenue decimal.Decimal `json:"revenue"`
	Items   int             `json:"items"`
}

// QuarterBucket is the revenue for one calendar quarter (1-4).
type QuarterBucket struct {
	Quarter  int             `json:"quarter"`
	Revenue  decimal.Decimal `json:"revenue"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// CategoryBucket is the price/quantity breakdown of one category.
type CategoryBucket struct {
	Category  string          `json:"category"`
	MeanPrice decimal.Decimal `json:"mean_price"`
	TotalQty  int64           `json:"total_qty"`
}

// SKUBucket is the revenue and volume of one (sku, name, category) group.
type SKUBucket struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Qty      int64           `json:"qty"`
}

// LowStockItem is a projection of a record that is running out.
type LowStockItem struct {
	ID       int64  `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// Stats bundles the five report datasets.
type Stats struct {
	Monthly    []MonthBucket    `json:"monthly"`
	Quarterly  []QuarterBucket  `json:"quarterly"`
	ByCategory []CategoryBucket `json:"by_category"`
	TopSKUs    []SKUBucket      `json:"top_sku"`
	LowStock   []LowStockItem   `json:"low_stock"`
}

// CategoryRevenue is one entry of the dashboard's top categories.
type CategoryRevenue struct {
	Category string          `json:"category"`
	Revenue  decimal.Decimal `json:"revenue"`
	Items    int             `json:"items"`
}

// Dashboard is the headline summary of the record set.
type Dashboard struct {
	Products      int               `json:"products"`
	TotalQty      int64             `json:"total_qty"`
	AvgPrice      decimal.Decimal   `json:"avg_price"`
	TopCategories []CategoryRevenue `json:"top_categories"`
}

// BuildStats computes all five datasets from one snapshot.
func BuildStats(records []product.Record) Stats {
	return Stats{
		Monthly:    Monthly(records),
		Quarterly:  Quarterly(records),
		ByCategory: ByCategory(records),
		TopSKUs:    TopSKUs(records),
		LowStock:   LowStock(records),
	}
}

// Monthly groups records by the calendar month of TxDate, ascending.
func Monthly(records []product.Record) []MonthBucket {
	index := make(map[time.Time]int)
	var buckets []MonthBucket

	for _, r := range records {
		key := monthOf(r.TxDate)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, MonthBucket{Month: key, Revenue: decimal.Zero})
		}
		buckets[i].Revenue = buckets[i].Revenue.Add(r.Revenue())
		buckets[i].Items++
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Month.Before(buckets[j].Month)
	})
	return nonNil(buckets)
}

// Quarterly groups records by calendar quarter of TxDate, ascending.
// Quarters from different years share a bucket.
func Quarterly(records []product.Record) []QuarterBucket {
	var (
		seen    [5]bool
		revenue [5]decimal.Decimal
		prices  [5]mean
	)

	for _, r := range records {
		q := QuarterOf(r.TxDate)
		seen[q] = true
		revenue[q] = revenue[q].Add(r.Revenue())
		prices[q].add(r.Price)
	}

	buckets := []QuarterBucket{}
	for q := 1; q <= 4; q++ {
		if !seen[q] {
			continue
		}
		buckets = append(buckets, QuarterBucket{
			Quarter:  q,
			Revenue:  revenue[q],
			AvgPrice: prices[q].value(),
		})
	}
	return buckets
}

// ByCategory groups records by category, descending by total quantity.
// The empty category is a group of its own.
func ByCategory(records []product.Record) []CategoryBucket {
	index := make(map[string]int)
	var (
		buckets []CategoryBucket
		prices  []mean
	)

	for _, r := range records {
		i, ok := index[r.Category]
		if !ok {
			i = len(buckets)
			index[r.Category] = i
			buckets = append(buckets, CategoryBucket{Category: r.Category})
			prices = append(prices, mean{})
		}
		buckets[i].TotalQty += r.Quantity
		prices[i].add(r.Price)
	}

	for i := range buckets {
		buckets[i].MeanPrice = prices[i].value()
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].TotalQty > buckets[j].TotalQty
	})
	return nonNil(buckets)
}

// TopSKUs returns the TopSKULimit highest-revenue (sku, name, category)
// groups. Ties keep first-appearance order.
func TopSKUs(records []product.Record) []SKUBucket {
	type key struct{ sku, name, category string }
	index := make(map[key]int)
	var buckets []SKUBucket

	for _, r := range records {
		k := key{r.SKU, r.Name, r.Category}
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, SKUBucket{
				SKU:      r.SKU,
				Name:     r.Name,
				Category: r.Category,
				Revenue:  decimal.Zero,
			})
		}
		buckets[i].Revenue = buckets[i].Revenue.Add(r.Revenue())
		buckets[i].Qty += r.Quantity
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Revenue.GreaterThan(buckets[j].Revenue)
	})
	if len(buckets) > TopSKULimit {
		buckets = buckets[:TopSKULimit]
	}
	return nonNil(buckets)
}

// LowStock returns up to LowStockLimit records with quantity at or below
// LowStockThreshold, ascending by quantity then name.
func LowStock(records []product.Record) []LowStockItem {
	var items []LowStockItem
	for _, r := range records {
		if r.Quantity <= LowStockThreshold {
			items = append(items, LowStockItem{ID: r.ID, SKU: r.SKU, Name: r.Name, Quantity: r.Quantity})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Quantity != items[j].Quantity {
			return items[i].Quantity < items[j].Quantity
		}
		return items[i].Name < items[j].Name
	})
	if len(items) > LowStockLimit {
		items = items[:LowStockLimit]
	}
	return nonNil(items)
}

// BuildDashboard computes the headline summary.
// AvgPrice is zero when there are no records.
func BuildDashboard(records []product.Record) Dashboard {
	var (
		d      Dashboard
		prices mean
	)

	index := make(map[string]int)
	var cats []CategoryRevenue

	for _, r := range records {
		d.Products++
		d.TotalQty += r.Quantity
		prices.add(r.Price)

		i, ok := index[r.Category]
		if !ok {
			i = len(cats)
			index[r.Category] = i
			cats = append(cats, CategoryRevenue{Category: r.Category, Revenue: decimal.Zero})
		}
		cats[i].Revenue = cats[i].Revenue.Add(r.Revenue())
		cats[i].Items++
	}

	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Revenue.GreaterThan(cats[j].Revenue)
	})
	if len(cats) > TopCategoriesLimit {
		cats = cats[:TopCategoriesLimit]
	}

	d.AvgPrice = prices.value()
	d.TopCategories = nonNil(cats)
	return d
}

// TotalRevenue sums the revenue of every record.
func TotalRevenue(records []product.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Revenue())
	}
	return total
}

// QuarterOf returns the calendar quarter (1-4) of t.
func QuarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// mean accumulates an exact decimal average.
type mean struct {
	sum   decimal.Decimal
	count int64
}

func (m *mean) add(v decimal.Decimal) {
	m.sum = m.sum.Add(v)
	m.count++
}

func (m mean) value() decimal.Decimal {
	if m.count == 0 {
		return decimal.Zero
	}
	return m.sum.Div(decimal.NewFromInt(m.count)).Round(PricePlaces)
}

// nonNil keeps empty results encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
