// Package tabular reads uploaded spreadsheet files into raw product rows and
// writes product records back out as XLSX.
//
// Delimited text (.csv, .txt, .tsv) goes through encoding/csv behind a BOM
// and UTF-8 cleanup layer. Workbooks (.xlsx, .xlsm) are read with excelize;
// a sheet may be chosen by name, otherwise the first sheet is used.
//
// In both cases the first non-empty row is the header and fully empty rows
// are skipped. Cells keep their original labels; column cleaning happens in
// the product package.
//
// Delimited cells are always strings. Workbook cells keep their stored type:
// numbers are float64 and date-formatted numbers are time.Time, so the
// display format never decides what a value means.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/xuri/excelize/v2"
)

// Format is a supported input file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

var (
	// ErrUnsupportedFormat is returned for file extensions the reader does not handle.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrSheetNotFound is returned when the requested worksheet does not exist.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrNoSheets is returned for a workbook without worksheets.
	ErrNoSheets = errors.New("workbook has no sheets")
)

// ReadError reports a file that could not be read as a table.
type ReadError struct {
	File string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.File, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// DetectFormat picks the format from the file extension.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// Read parses r as a table. name selects the format by extension; sheet
// selects a worksheet in workbooks and is ignored for delimited text.
// Every failure is a *ReadError.
func Read(r io.Reader, name, sheet string) ([]product.RawRow, error) {
	var (
		records [][]any
		err     error
	)

	switch DetectFormat(name) {
	case FormatCSV:
		records, err = readDelimited(r, ',')
	case FormatTSV:
		records, err = readDelimited(r, '\t')
	case FormatXLSX:
		records, err = readWorkbook(r, sheet)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, &ReadError{File: name, Err: err}
	}

	return toRawRows(records), nil
}

func readDelimited(r io.Reader, comma rune) ([][]any, error) {
	cr := csv.NewReader(wrapText(r))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]any
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		records = append(records, row)
	}
	return records, nil
}

func readWorkbook(r io.Reader, sheet string) ([][]any, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		_ = wb.Close()
	}()

	name, err := pickSheet(wb.GetSheetList(), sheet)
	if err != nil {
		return nil, err
	}

	// Raw values are the stored serials and numbers, not their display text.
	// GetRows keeps empty rows, so index i is sheet row i+1.
	raw, err := wb.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", name, err)
	}

	cells := newCellDecoder(wb, name)
	records := make([][]any, len(raw))
	for i, cols := range raw {
		rec := make([]any, len(cols))
		for j, v := range cols {
			if rec[j], err = cells.decode(j+1, i+1, v); err != nil {
				return nil, fmt.Errorf("sheet %s: %w", name, err)
			}
		}
		records[i] = rec
	}
	return records, nil
}

// pickSheet returns the requested sheet, matched case-insensitively after
// trimming, or the first sheet when none is requested.
func pickSheet(sheets []string, want string) (string, error) {
	if len(sheets) == 0 {
		return "", ErrNoSheets
	}

	want = strings.TrimSpace(want)
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrSheetNotFound, want)
}

// toRawRows pairs each data row with the header labels. Cells beyond the
// header are dropped; missing trailing cells are nil.
func toRawRows(records [][]any) []product.RawRow {
	headerAt := -1
	for i, rec := range records {
		if !blank(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil
	}

	header := make([]string, len(records[headerAt]))
	for i, h := range records[headerAt] {
		header[i] = product.CleanCell(product.ToText(h))
	}

	rows := make([]product.RawRow, 0, len(records)-headerAt-1)
	for _, rec := range records[headerAt+1:] {
		if blank(rec) {
			continue
		}
		row := make(product.RawRow, len(header))
		for i, label := range header {
			row[i].Label = label
			if i < len(rec) {
				row[i].Value = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func blank(rec []any) bool {
	for _, v := range rec {
		switch x := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(x) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// cellDecoder turns raw workbook cell text into typed values. Styles are
// looked up once per style id.
type cellDecoder struct {
	wb       *excelize.File
	sheet    string
	date1904 bool
	isDate   map[int]bool
}

func newCellDecoder(wb *excelize.File, sheet string) *cellDecoder {
	d := &cellDecoder{wb: wb, sheet: sheet, isDate: make(map[int]bool)}
	if props, err := wb.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *cellDecoder) decode(col, row int, raw string) (any, error) {
	if raw == "" {
		return raw, nil
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := d.wb.GetCellType(d.sheet, cell)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString,
		excelize.CellTypeBool, excelize.CellTypeError:
		return raw, nil
	}

	// Numbers, formula results and ISO date cells (t="d") end up here.
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}

	dated, err := d.dateStyled(cell)
	if err != nil {
		return nil, err
	}
	if dated {
		if t, err := excelize.ExcelDateToTime(n, d.date1904); err == nil {
			return t, nil
		}
	}
	return n, nil
}

func (d *cellDecoder) dateStyled(cell string) (bool, error) {
	id, err := d.wb.GetCellStyle(d.sheet, cell)
	if err != nil {
		return false, err
	}
	if dated, ok := d.isDate[id]; ok {
		return dated, nil
	}

	dated := false
	if id != 0 {
		style, err := d.wb.GetStyle(id)
		if err != nil {
			return false, err
		}
		if style.CustomNumFmt != nil {
			dated = isDateFormat(*style.CustomNumFmt)
		} else {
			dated = builtinDateFormat(style.NumFmt)
		}
	}
	d.isDate[id] = dated
	return dated, nil
}

// builtinDateFormat reports whether a built-in number format id shows a
// calendar date (14-17, 22, and the localized 27-36 and 50-58).
func builtinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormat reports whether a custom number format contains a day or
// year token outside quoted text, escapes and bracketed sections.
func isDateFormat(format string) bool {
	inQuote, inBracket, escaped := false, false, false
	for _, r := range strings.ToLower(format) {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = r != '"'
		case inBracket:
			inBracket = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = true
		case r == '[':
			inBracket = true
		case r == 'd', r == 'y':
			return true
		}
	}
	return false
}
