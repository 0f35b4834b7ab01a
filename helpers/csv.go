package helpers

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/spektr-org/storequery/dataset"
	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/schema"
)

// ============================================================================
// EXPORT HELPERS: Tables → CSV / XLSX
// ============================================================================
// The consumer decides where the bytes go (HTTP response, file, stdout).
// ============================================================================

// LongHeader is the canonical long-format header the normalizer reads back.
var LongHeader = []string{"Month", "Store", "Metric", "Amount"}

// WriteLongCSV writes every observation as Month, Store, Metric, Amount.
// Normalizing the output again yields an equal table.
func WriteLongCSV(w io.Writer, t *dataset.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LongHeader); err != nil {
		return err
	}
	for _, o := range t.Observations() {
		if err := cw.Write([]string{o.Month.Token(), string(o.Store), string(o.Metric), o.Amount.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteResultCSV writes a result table with its display header. Null cells
// are empty.
func WriteResultCSV(w io.Writer, t *engine.ResultTable) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return err
	}
	return cw.Error()
}

// WriteResultXLSX writes a result table to a single-sheet workbook. Values
// are numeric cells; null cells are left blank.
func WriteResultXLSX(w io.Writer, t *engine.ResultTable, sheet string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if sheet == "" {
		sheet = "Result"
	}
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}

	for c, h := range t.Header() {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		col := 1
		for _, k := range row.Keys {
			cell, _ := excelize.CoordinatesToCellName(col, r+2)
			if err := f.SetCellValue(sheet, cell, k); err != nil {
				return err
			}
			col++
		}
		for _, v := range row.Values {
			cell, _ := excelize.CoordinatesToCellName(col, r+2)
			if v.Valid {
				if err := f.SetCellValue(sheet, cell, v.Decimal.Round(2).InexactFloat64()); err != nil {
					return err
				}
			}
			col++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// FileStem turns a result label into a file name stem:
// "Top stores by Net Sales" → "top_stores_by_net_sales".
func FileStem(label string) string {
	stem := schema.ToSnakeCase(label)
	if stem == "" {
		return "result"
	}
	return stem
}
