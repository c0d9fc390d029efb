package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func labels(row product.RawRow) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = c.Label
	}
	return out
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"sales.csv", FormatCSV},
		{"SALES.CSV", FormatCSV},
		{"notes.txt", FormatCSV},
		{"data.tsv", FormatTSV},
		{"book.xlsx", FormatXLSX},
		{"macro.XLSM", FormatXLSX},
		{"legacy.xls", FormatUnknown},
		{"archive.zip", FormatUnknown},
		{"noext", FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.name))
		})
	}
}

func TestRead_CSV(t *testing.T) {
	input := "\xEF\xBB\xBFProduct SKU,Title,Qty,Price,Date\n" +
		"A1,Widget,10,2.50,2024-01-05\n" +
		",,,,\n" +
		"A2,\"Gadget, large\",3\n"

	rows, err := Read(strings.NewReader(input), "sales.csv", "")

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Product SKU", "Title", "Qty", "Price", "Date"}, labels(rows[0]))
	assert.Equal(t, "A1", rows[0][0].Value)
	assert.Equal(t, "2024-01-05", rows[0][4].Value)

	assert.Equal(t, "Gadget, large", rows[1][1].Value)
	assert.Nil(t, rows[1][3].Value, "missing trailing cell is nil")
	assert.Nil(t, rows[1][4].Value)
}

func TestRead_LeadingBlankLinesAndExtraCells(t *testing.T) {
	input := "\n,,\nsku,name\nX,Y,extra\n"

	rows, err := Read(strings.NewReader(input), "f.csv", "")

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], 2)
	assert.Equal(t, "Y", rows[0][1].Value)
}

func TestRead_TSV(t *testing.T) {
	input := "sku\tname\tprice\nT1\tTab, item\t1.5\n"

	rows, err := Read(strings.NewReader(input), "f.tsv", "")

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Tab, item", rows[0][1].Value)
}

func TestRead_Empty(t *testing.T) {
	rows, err := Read(strings.NewReader(""), "empty.csv", "")

	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRead_HeaderOnly(t *testing.T) {
	rows, err := Read(strings.NewReader("sku,name\n"), "h.csv", "")

	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRead_UnsupportedFormat(t *testing.T) {
	_, err := Read(strings.NewReader("x"), "photo.png", "")

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "photo.png", readErr.File)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRead_CorruptWorkbook(t *testing.T) {
	_, err := Read(strings.NewReader("not a zip"), "broken.xlsx", "")

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, "broken.xlsx", readErr.File)
}

func workbook(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()

	wb := excelize.NewFile()
	defer wb.Close()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, wb.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := wb.NewSheet(name)
			require.NoError(t, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			require.NoError(t, wb.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRead_XLSX(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Sales": {
			{"sku", "name", "price", "quantity", "tx_date"},
			{"X1", "Book", 12.5, 2, "2024-03-01"},
			{},
			{"X2", "Pen", 1, 30, "2024-03-02"},
		},
	})

	rows, err := Read(bytes.NewReader(data), "upload.xlsx", "")

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"sku", "name", "price", "quantity", "tx_date"}, labels(rows[0]))
	assert.Equal(t, "X1", rows[0][0].Value)
	assert.Equal(t, 12.5, rows[0][2].Value)
	assert.Equal(t, 30.0, rows[1][3].Value)
	assert.Equal(t, "2024-03-01", rows[0][4].Value, "text stays text")
}

func TestRead_XLSXSheetSelection(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"First":  {{"sku"}, {"F"}},
		"Second": {{"sku"}, {"S"}},
	})

	rows, err := Read(bytes.NewReader(data), "book.xlsx", " second ")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "S", rows[0][0].Value)

	_, err = Read(bytes.NewReader(data), "book.xlsx", "Missing")
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func readPath(t *testing.T, path, sheet string) []product.RawRow {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := Read(f, filepath.Base(path), sheet)
	require.NoError(t, err)
	return rows
}

// datedWorkbook writes header plus one row per date, with the date cells in
// column C styled by style.
func datedWorkbook(t *testing.T, style *excelize.Style, dates ...time.Time) []byte {
	t.Helper()

	wb := excelize.NewFile()
	defer wb.Close()

	styleID, err := wb.NewStyle(style)
	require.NoError(t, err)

	require.NoError(t, wb.SetSheetRow("Sheet1", "A1", &[]any{"sku", "name", "tx_date", "price", "quantity"}))
	for i, d := range dates {
		r := i + 2
		require.NoError(t, wb.SetSheetRow("Sheet1", fmt.Sprintf("A%d", r), &[]any{fmt.Sprintf("S%d", r), "Dated", d, 1.5, 2}))
		cell := fmt.Sprintf("C%d", r)
		require.NoError(t, wb.SetCellStyle("Sheet1", cell, cell, styleID))
	}

	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRead_XLSXBuiltinDateFormat(t *testing.T) {
	// NumFmt 14 displays as mm-dd-yy, which would lose the century.
	want := time.Date(1920, 3, 4, 0, 0, 0, 0, time.UTC)
	data := datedWorkbook(t, &excelize.Style{NumFmt: 14}, want)

	rows, err := Read(bytes.NewReader(data), "dates.xlsx", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got, ok := rows[0][2].Value.(time.Time)
	require.True(t, ok, "date cell decoded as %T", rows[0][2].Value)
	assert.True(t, want.Equal(product.DateOf(got)), "got %s", got)

	res := product.Normalize(rows)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "1920-03-04", res.Rows[0].TxDate.Format(product.DateLayout))
}

func TestRead_XLSXDayFirstDateFormat(t *testing.T) {
	dayFirst := "dd/mm/yyyy"
	dec31 := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	jan5 := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	data := datedWorkbook(t, &excelize.Style{CustomNumFmt: &dayFirst}, dec31, jan5)

	rows, err := Read(bytes.NewReader(data), "dates.xlsx", "")
	require.NoError(t, err)

	res := product.Normalize(rows)
	assert.Equal(t, 2, res.Submitted)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "2024-12-31", res.Rows[0].TxDate.Format(product.DateLayout))
	assert.Equal(t, "2024-01-05", res.Rows[1].TxDate.Format(product.DateLayout))
	assert.True(t, res.Rows[0].Price.Equal(decimal.RequireFromString("1.5")))
}

func TestIsDateFormat(t *testing.T) {
	tests := []struct {
		format string
		want   bool
	}{
		{"yyyy-mm-dd", true},
		{"dd/mm/yyyy", true},
		{"d-mmm-yy", true},
		{"[$-409]mmmm d, yyyy", true},
		{"0.00", false},
		{"#,##0", false},
		{"h:mm:ss", false},
		{`0 "days"`, false},
		{`[Red]0.00`, false},
		{`0\d`, false},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, isDateFormat(tt.format))
		})
	}
}

func TestBuiltinDateFormat(t *testing.T) {
	for _, id := range []int{14, 15, 16, 17, 22, 30, 57} {
		assert.True(t, builtinDateFormat(id), "id %d", id)
	}
	for _, id := range []int{0, 1, 2, 4, 10, 18, 21, 45, 49} {
		assert.False(t, builtinDateFormat(id), "id %d", id)
	}
}

func TestExporter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	records := []product.Record{
		{SKU: "A1", Name: "Widget", Category: "Tools", Price: decimal.RequireFromString("3.00"), Quantity: 0,
			TxDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{SKU: "B2", Name: "Gadget", Category: "", Price: decimal.RequireFromString("19.99"), Quantity: 7,
			TxDate: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	path, err := NewExporter(dir).Write(records, "products_export.xlsx")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_products_export.xlsx"), path)

	rows := readPath(t, path, ExportSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, ExportColumns, labels(rows[0]))

	res := product.Normalize(rows)
	require.Len(t, res.Rows, 2)
	for i, got := range res.Rows {
		want := records[i]
		assert.Equal(t, want.SKU, got.SKU)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Category, got.Category)
		assert.True(t, want.Price.Equal(got.Price), "price %s != %s", want.Price, got.Price)
		assert.Equal(t, want.Quantity, got.Quantity)
		assert.True(t, want.TxDate.Equal(got.TxDate), "date %s != %s", want.TxDate, got.TxDate)
	}
}

func TestExporter_UniqueNames(t *testing.T) {
	a := FileName("products_export")
	b := FileName("products_export")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, "_products_export.xlsx"))
	assert.Len(t, strings.SplitN(a, "_", 2)[0], 32)
}

func TestExporter_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewExporter(filepath.Join(blocker, "exports")).Write(nil, "x")

	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.False(t, errors.Is(err, ErrUnsupportedFormat))
}
