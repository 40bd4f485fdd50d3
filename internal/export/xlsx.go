// Package export renders the course table to downloadable files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ferhatknd/alan-dal-ders-sub000/internal/catalog"
)

var xlsxHeader = []string{"Alan", "Dal", "Ders", "Sınıf", "Ders Saati"}

// WriteXLSX writes the given course rows as a spreadsheet, one row per
// course in the order given, with a bold frozen header row.
func WriteXLSX(w io.Writer, rows []catalog.CourseRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Dersler"
	f.SetSheetName("Sheet1", sheet)

	for i, name := range xlsxHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	// Widths sized to the longest values the ministry data produces.
	widths := []float64{36, 32, 40, 8, 10}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	for i, row := range rows {
		values := []any{row.AlanAdi, row.DalAdi, row.DersAdi, row.Sinif, row.DersSaati}
		for j, v := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return fmt.Errorf("row %d cell: %w", i+2, err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
