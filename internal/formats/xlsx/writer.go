package xlsx

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteFile creates a new .xlsx file from the given workbook data.
func WriteFile(wb *Workbook, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	if err := Write(wb, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("could not save %s: %w", path, err)
	}
	return nil
}

// Write serializes wb as .xlsx to w. Sheets keep their order; the first sheet is active.
func Write(wb *Workbook, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if len(wb.Sheets) == 0 {
		return fmt.Errorf("workbook has no sheets")
	}

	for i, sheet := range wb.Sheets {
		sheetName := sheet.Name
		if sheetName == "" {
			sheetName = fmt.Sprintf("Sheet%d", i+1)
		}

		if i == 0 {
			// Rename default sheet
			if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
				return fmt.Errorf("could not rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheetName); err != nil {
			return fmt.Errorf("could not create sheet %q: %w", sheetName, err)
		}

		sw, err := f.NewStreamWriter(sheetName)
		if err != nil {
			return fmt.Errorf("could not open sheet %q for writing: %w", sheetName, err)
		}
		for rowIdx, row := range sheet.Rows {
			values := make([]interface{}, len(row))
			for colIdx, cell := range row {
				values[colIdx] = CellValue(cell)
			}
			cellName, err := excelize.CoordinatesToCellName(1, rowIdx+1)
			if err != nil {
				return fmt.Errorf("invalid cell coordinates: %w", err)
			}
			if err := sw.SetRow(cellName, values); err != nil {
				return fmt.Errorf("could not write row %d of %q: %w", rowIdx+1, sheetName, err)
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("could not flush sheet %q: %w", sheetName, err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("could not encode workbook: %w", err)
	}
	return nil
}

// CellValue converts cell text to the value stored in the output. Plain
// decimal numbers become numeric cells; text with leading zeros, signs or
// separators stays text so identifiers survive the round trip.
func CellValue(s string) interface{} {
	if s == "" {
		return nil
	}
	if !looksNumeric(s) {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > -(1<<53) && n < 1<<53 {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func looksNumeric(s string) bool {
	body := strings.TrimPrefix(s, "-")
	if body == "" {
		return false
	}
	if len(body) > 1 && body[0] == '0' && body[1] != '.' {
		return false
	}
	dots := 0
	for i, c := range body {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' && i > 0 && i < len(body)-1:
			dots++
		default:
			return false
		}
	}
	return dots <= 1
}
