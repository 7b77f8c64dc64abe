// Package testutil builds ZIP archives of workbooks for tests and fixtures.
package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klytics/sheetmerge/internal/formats/xlsx"
)

// File is one archive entry.
type File struct {
	Name string
	Data []byte
}

// BuildWorkbook encodes sheets as .xlsx.
func BuildWorkbook(sheets ...xlsx.Sheet) ([]byte, error) {
	var buf bytes.Buffer
	if err := xlsx.Write(&xlsx.Workbook{Sheets: sheets}, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildZip encodes files as a ZIP archive, in order.
func BuildZip(files ...File) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Workbook is BuildWorkbook for tests.
func Workbook(tb testing.TB, sheets ...xlsx.Sheet) []byte {
	tb.Helper()
	data, err := BuildWorkbook(sheets...)
	if err != nil {
		tb.Fatal(err)
	}
	return data
}

// Zip writes an archive of files to dir/name and returns its path.
func Zip(tb testing.TB, dir, name string, files ...File) string {
	tb.Helper()
	data, err := BuildZip(files...)
	if err != nil {
		tb.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		tb.Fatal(err)
	}
	return path
}

// SampleFiles is a small archive: two workbooks with data, one corrupt file
// and one non-spreadsheet entry.
func SampleFiles(tb testing.TB) []File {
	tb.Helper()
	return []File{
		{Name: "sales.xlsx", Data: Workbook(tb,
			xlsx.Sheet{Name: "Q1", Rows: [][]string{{"Region", "Amount", "Rep"}, {"North", "100", "Ann"}, {"South", "250", "Bo"}}},
			xlsx.Sheet{Name: "Q2", Rows: [][]string{{"Region", "Amount"}, {"East", "75"}}},
		)},
		{Name: "hr/staff.xlsx", Data: Workbook(tb,
			xlsx.Sheet{Name: "People", Rows: [][]string{{"ID", "Name"}, {"007", "Cy"}, {"008", "Di"}}},
		)},
		{Name: "broken.xlsx", Data: []byte("not a workbook")},
		{Name: "readme.txt", Data: []byte("ignored")},
	}
}
