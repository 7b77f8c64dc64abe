// Package xlsx reads and writes Excel workbooks. Modern .xlsx files go through
// excelize; legacy BIFF .xls files through xlrd-go.
package xlsx

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format identifies the container format of a workbook file.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// Sheet represents a single worksheet's data.
type Sheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Workbook represents a parsed Excel file with all its sheets.
type Workbook struct {
	Format Format  `json:"format"`
	Sheets []Sheet `json:"sheets"`
}

// FormatFor guesses the format of path from its extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		return FormatXLS
	}
	return FormatXLSX
}

// ReadFile reads a workbook from disk. The reader matching the extension is
// tried first; if it fails the other one is tried, since mislabelled files are common.
func ReadFile(path string) (*Workbook, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
	}

	readers := []func(string) (*Workbook, error){readModern, readLegacy}
	if FormatFor(path) == FormatXLS {
		readers = []func(string) (*Workbook, error){readLegacy, readModern}
	}

	wb, firstErr := readers[0](path)
	if firstErr == nil {
		return wb, nil
	}
	wb, err := readers[1](path)
	if err == nil {
		return wb, nil
	}
	return nil, errors.Join(firstErr, err)
}

// ReadBytes reads an .xlsx workbook from memory.
func ReadBytes(data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not read Excel data: %w", err)
	}
	defer f.Close()

	return readWorkbook(f)
}

func readModern(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s as .xlsx: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) (*Workbook, error) {
	wb := &Workbook{Format: FormatXLSX}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("could not read sheet %q: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}

	return wb, nil
}

// GetSheet returns a specific sheet by name. Returns an error if the sheet is not found.
func (wb *Workbook) GetSheet(name string) (*Sheet, error) {
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == name {
			return &wb.Sheets[i], nil
		}
	}

	available := make([]string, len(wb.Sheets))
	for i, s := range wb.Sheets {
		available[i] = s.Name
	}
	return nil, fmt.Errorf("sheet %q not found — available sheets: %v", name, available)
}

// RowCount returns the number of rows holding at least one non-empty cell.
func (s *Sheet) RowCount() int {
	count := 0
	for _, row := range s.Rows {
		if !IsBlankRow(row) {
			count++
		}
	}
	return count
}

// IsBlankRow reports whether every cell of row is empty.
func IsBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
