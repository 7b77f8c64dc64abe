package merge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/errs"
	"github.com/klytics/sheetmerge/internal/formats/xlsx"
)

const (
	// SummarySheet is the name of the trailing sheet listing what was extracted.
	SummarySheet = "Summary"

	maxSheetName = 31
	collisionCut = 27
)

// SummaryHeader is the header row of the summary sheet.
var SummaryHeader = []string{"File", "Sheet", "Output Sheet", "Columns Extracted", "Rows"}

// OutputSheet is one merged sheet and where it came from.
type OutputSheet struct {
	Name    string     `json:"name"`
	File    string     `json:"file"`
	Sheet   string     `json:"sheet"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"-"`
}

// OutputWorkbook is the assembled result: data sheets in selection order plus the summary.
type OutputWorkbook struct {
	Sheets  []OutputSheet
	Summary [][]string
}

// SheetReport describes one written sheet.
type SheetReport struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Sheet   string   `json:"sheet"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

// Report is returned by GenerateOutput.
type Report struct {
	Output    string        `json:"output"`
	Requested string        `json:"requested,omitempty"`
	Sheets    []SheetReport `json:"sheets"`
	Skipped   []Skip        `json:"skipped,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Converted reports whether the output path differs from the one asked for.
func (r *Report) Converted() bool {
	return r.Requested != "" && r.Requested != r.Output
}

// BuildOutput assembles the output workbook from the current selection.
// Sheets follow archive order; pairs without columns are left out.
func (s *Session) BuildOutput() (*OutputWorkbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &OutputWorkbook{}
	namer := newSheetNamer()
	for _, key := range s.sortedKeys() {
		t, err := s.lookup(key.File, key.Sheet)
		if err != nil {
			return nil, err
		}
		cols := s.selection[key]
		data := t.project(cols)
		sheet := OutputSheet{
			Name:    namer.name(fileStem(key.File) + "_" + key.Sheet),
			File:    key.File,
			Sheet:   key.Sheet,
			Columns: data[0],
			Rows:    data,
		}
		out.Sheets = append(out.Sheets, sheet)
	}

	out.Summary = [][]string{append([]string(nil), SummaryHeader...)}
	for _, sh := range out.Sheets {
		out.Summary = append(out.Summary, []string{
			sh.File,
			sh.Sheet,
			sh.Name,
			strings.Join(sh.Columns, ", "),
			strconv.Itoa(len(sh.Rows) - 1),
		})
	}
	return out, nil
}

// Workbook converts the output into the codec's representation, summary last.
func (o *OutputWorkbook) Workbook() *xlsx.Workbook {
	wb := &xlsx.Workbook{Format: xlsx.FormatXLSX}
	for _, sh := range o.Sheets {
		wb.Sheets = append(wb.Sheets, xlsx.Sheet{Name: sh.Name, Rows: sh.Rows})
	}
	wb.Sheets = append(wb.Sheets, xlsx.Sheet{Name: SummarySheet, Rows: o.Summary})
	return wb
}

// WriteOutput builds and serializes the output workbook to w.
func (s *Session) WriteOutput(w io.Writer) (*OutputWorkbook, error) {
	out, err := s.BuildOutput()
	if err != nil {
		return nil, err
	}
	if err := xlsx.Write(out.Workbook(), w); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateOutput writes the merged workbook to path. The extension is
// normalized to .xlsx; the file appears atomically or not at all.
func (s *Session) GenerateOutput(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := OutputPath(path)
	out, err := s.BuildOutput()
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(target, out.Workbook()); err != nil {
		return nil, err
	}

	report := &Report{
		Output:   target,
		Skipped:  s.Skipped(),
		Duration: time.Since(start),
	}
	if target != path {
		report.Requested = path
	}
	for _, sh := range out.Sheets {
		report.Sheets = append(report.Sheets, SheetReport{
			Name:    sh.Name,
			File:    sh.File,
			Sheet:   sh.Sheet,
			Columns: sh.Columns,
			Rows:    len(sh.Rows) - 1,
		})
	}

	s.logger.Info("output written",
		zap.String("output", target),
		zap.Int("sheets", len(report.Sheets)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// OutputPath returns the path actually written for a requested output path:
// .xls becomes .xlsx and a missing extension gets .xlsx appended.
func OutputPath(path string) string {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".xlsx":
		return path
	case ".xls":
		return strings.TrimSuffix(path, ext) + ".xlsx"
	default:
		return path + ".xlsx"
	}
}

func writeAtomic(target string, wb *xlsx.Workbook) error {
	dir := filepath.Dir(target)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", dir)
		}
		return &errs.OutputError{Path: target, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".sheetmerge-*.xlsx")
	if err != nil {
		return &errs.OutputError{Path: target, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := xlsx.Write(wb, tmp); err != nil {
		cleanup()
		return &errs.OutputError{Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &errs.OutputError{Path: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return &errs.OutputError{Path: target, Err: err}
	}
	return nil
}

func fileStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// sheetNamer hands out unique, Excel-safe sheet names.
type sheetNamer struct {
	used map[string]bool
}

func newSheetNamer() *sheetNamer {
	return &sheetNamer{used: map[string]bool{strings.ToLower(SummarySheet): true}}
}

func (n *sheetNamer) name(raw string) string {
	base := SanitizeSheetName(raw)
	if base == "" {
		base = "Sheet"
	}
	name := cutSheetName(base, maxSheetName)
	for i := 1; n.used[strings.ToLower(name)]; i++ {
		name = cutSheetName(base, collisionCut) + "_" + strconv.Itoa(i)
	}
	n.used[strings.ToLower(name)] = true
	return name
}

// cutSheetName truncates base to n runes. A cut may expose an inner
// apostrophe, and Excel rejects names starting or ending with one.
func cutSheetName(base string, n int) string {
	name := strings.Trim(truncateRunes(base, n), "'")
	if name == "" {
		return "Sheet"
	}
	return name
}

// SanitizeSheetName removes the characters Excel forbids in sheet names.
func SanitizeSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return -1
		}
		return r
	}, name)
	return strings.Trim(name, "'")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
