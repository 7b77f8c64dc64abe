package merge

import (
	"fmt"
	"strings"

	"github.com/klytics/sheetmerge/internal/formats/xlsx"
)

// Source is one readable workbook from the archive with its non-empty sheets.
type Source struct {
	Name   string         `json:"file"`
	Entry  string         `json:"entry"`
	Format xlsx.Format    `json:"format"`
	Sheets []SheetPreview `json:"sheets"`
	tables map[string]*table
}

// SheetPreview describes a sheet for column selection.
type SheetPreview struct {
	Name    string     `json:"sheet"`
	Columns []string   `json:"columns"`
	Rows    int        `json:"rows"`
	Preview [][]string `json:"preview,omitempty"`
}

// table is a normalized sheet: unique headers and padded data rows.
type table struct {
	headers []string
	rows    [][]string
}

// Sheet returns the preview of the named sheet.
func (s *Source) Sheet(name string) (*SheetPreview, bool) {
	for i := range s.Sheets {
		if s.Sheets[i].Name == name {
			return &s.Sheets[i], true
		}
	}
	return nil, false
}

// newTable normalizes raw sheet rows. It returns nil when the sheet has no data rows.
func newTable(rows [][]string) *table {
	if len(rows) == 0 {
		return nil
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return nil
	}

	t := &table{headers: normalizeHeaders(rows[0], width)}
	for _, row := range rows[1:] {
		if xlsx.IsBlankRow(row) {
			continue
		}
		padded := make([]string, width)
		copy(padded, row)
		t.rows = append(t.rows, padded)
	}
	if len(t.rows) == 0 {
		return nil
	}
	return t
}

// normalizeHeaders names blank headers "Unnamed: <i>" and suffixes duplicates with ".1", ".2".
func normalizeHeaders(raw []string, width int) []string {
	headers := make([]string, width)
	used := make(map[string]bool, width)
	for i := 0; i < width; i++ {
		h := ""
		if i < len(raw) {
			h = strings.TrimSpace(raw[i])
		}
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}

func (t *table) preview(n int) [][]string {
	if n > len(t.rows) {
		n = len(t.rows)
	}
	if n <= 0 {
		return nil
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = append([]string(nil), t.rows[i]...)
	}
	return out
}

// project returns the header and rows restricted to cols, in cols order.
func (t *table) project(cols []int) [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = t.headers[c]
	}
	out = append(out, header)
	for _, row := range t.rows {
		r := make([]string, len(cols))
		for i, c := range cols {
			r[i] = row[c]
		}
		out = append(out, r)
	}
	return out
}
