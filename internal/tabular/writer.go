package tabular

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// ExportSheet is the worksheet name of exported workbooks.
const ExportSheet = "Products"

// ExportColumns is the header row of exported workbooks, in schema order.
var ExportColumns = product.Columns()

// ExportError reports a failure writing an export file.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Exporter writes record sets as XLSX files into a directory.
type Exporter struct {
	dir string
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Write stores records as <uuid-hex>_<name>.xlsx in the export directory
// and returns the full path. Records are written in the order given.
func (e *Exporter) Write(records []product.Record, name string) (string, error) {
	path := filepath.Join(e.dir, FileName(name))

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", &ExportError{Path: path, Err: err}
	}

	wb, err := buildWorkbook(records)
	if err != nil {
		return "", &ExportError{Path: path, Err: err}
	}
	defer func() {
		_ = wb.Close()
	}()

	if err := wb.SaveAs(path); err != nil {
		return "", &ExportError{Path: path, Err: err}
	}
	return path, nil
}

// FileName builds a unique export file name for base.
func FileName(base string) string {
	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "export"
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + base + ".xlsx"
}

func buildWorkbook(records []product.Record) (*excelize.File, error) {
	wb := excelize.NewFile()

	if err := wb.SetSheetName(wb.GetSheetName(0), ExportSheet); err != nil {
		wb.Close()
		return nil, err
	}

	priceStyle, err := wb.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		wb.Close()
		return nil, err
	}
	dateFmt := "yyyy-mm-dd"
	dateStyle, err := wb.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		wb.Close()
		return nil, err
	}

	sw, err := wb.NewStreamWriter(ExportSheet)
	if err != nil {
		wb.Close()
		return nil, err
	}

	header := make([]any, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		wb.Close()
		return nil, err
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			wb.Close()
			return nil, err
		}
		row := []any{
			r.SKU,
			r.Name,
			r.Category,
			excelize.Cell{StyleID: priceStyle, Value: r.Price.InexactFloat64()},
			r.Quantity,
			excelize.Cell{StyleID: dateStyle, Value: r.TxDate},
		}
		if err := sw.SetRow(cell, row); err != nil {
			wb.Close()
			return nil, err
		}
	}

	if err := sw.Flush(); err != nil {
		wb.Close()
		return nil, err
	}
	return wb, nil
}
