package xlsx

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/yamitzky/xlrd-go/xlrd"
)

// readLegacy reads a BIFF (.xls) workbook.
func readLegacy(path string) (*Workbook, error) {
	book, err := xlrd.OpenWorkbook(path, &xlrd.OpenWorkbookOptions{FormattingInfo: true})
	if err != nil {
		return nil, fmt.Errorf("could not open %s as .xls: %w", filepath.Base(path), err)
	}
	defer book.ReleaseResources()

	wb := &Workbook{Format: FormatXLS}
	for i, name := range book.SheetNames() {
		sheet, err := book.SheetByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
		}

		rows := make([][]string, 0, sheet.NRows)
		for r := 0; r < sheet.NRows; r++ {
			row := make([]string, sheet.NCols)
			for c := 0; c < sheet.NCols; c++ {
				row[c] = legacyCellText(book, sheet, r, c)
			}
			rows = append(rows, trimTrailing(row))
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: trimTrailingRows(rows)})
	}
	return wb, nil
}

func legacyCellText(book *xlrd.Book, sheet *xlrd.Sheet, r, c int) string {
	value := sheet.CellValue(r, c)

	switch sheet.CellType(r, c) {
	case xlrd.XL_CELL_EMPTY, xlrd.XL_CELL_BLANK:
		return ""
	case xlrd.XL_CELL_TEXT:
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprint(value)
	case xlrd.XL_CELL_NUMBER:
		f, ok := value.(float64)
		if !ok {
			return fmt.Sprint(value)
		}
		if isLegacyDate(book, sheet.CellXFIndex(r, c)) {
			if t, err := xlrd.XldateAsDatetime(f, book.Datemode); err == nil {
				if f-math.Floor(f) != 0 {
					return t.Format("2006-01-02 15:04:05")
				}
				return t.Format("2006-01-02")
			}
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case xlrd.XL_CELL_BOOLEAN:
		switch v := value.(type) {
		case bool:
			if v {
				return "TRUE"
			}
			return "FALSE"
		case int:
			if v != 0 {
				return "TRUE"
			}
			return "FALSE"
		}
		return fmt.Sprint(value)
	case xlrd.XL_CELL_ERROR:
		if code, ok := value.(byte); ok {
			if text, found := xlrd.ErrorTextFromCode[code]; found {
				return text
			}
		}
		return "#ERROR"
	default:
		if value == nil {
			return ""
		}
		return fmt.Sprint(value)
	}
}

// Built-in number formats 14-22 and a few locale variants are dates.
func isLegacyDate(book *xlrd.Book, xfIndex int) bool {
	if xfIndex < 0 || xfIndex >= len(book.XFList) {
		return false
	}
	key := book.XFList[xfIndex].FormatKey
	switch key {
	case 14, 15, 16, 17, 18, 19, 20, 21, 22, 27, 30, 36, 50, 57, 58:
		return true
	}
	if book.FormatMap == nil {
		return false
	}
	format := book.FormatMap[key]
	if format == nil || format.FormatString == "" {
		return false
	}
	return xlrd.IsDateFormatString(book, format.FormatString)
}

func trimTrailing(row []string) []string {
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return row[:end]
}

func trimTrailingRows(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && len(rows[end-1]) == 0 {
		end--
	}
	return rows[:end]
}
