package merge

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/sheetmerge/internal/errs"
	"github.com/klytics/sheetmerge/internal/formats/xlsx"
)

type sheetData struct {
	name string
	rows [][]string
}

func workbookBytes(t *testing.T, sheets ...sheetData) []byte {
	t.Helper()
	wb := &xlsx.Workbook{}
	for _, s := range sheets {
		wb.Sheets = append(wb.Sheets, xlsx.Sheet{Name: s.name, Rows: s.rows})
	}
	var buf bytes.Buffer
	if err := xlsx.Write(wb, &buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeZip(t *testing.T, files map[string][]byte, order []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixtureZip(t *testing.T) string {
	t.Helper()
	files := map[string][]byte{
		"sales.xlsx": workbookBytes(t,
			sheetData{"Q1", [][]string{{"Region", "Amount", "Rep"}, {"North", "100", "Ann"}, {"South", "250", "Bo"}}},
			sheetData{"Empty", [][]string{{"Only", "Headers"}}},
		),
		"reports/staff.xlsx": workbookBytes(t,
			sheetData{"People", [][]string{{"ID", "Name", "", "Name"}, {"007", "Cy", "x", "dup"}, {"", "", "", ""}, {"008", "Di"}}},
		),
		"broken.xlsx": []byte("not a workbook"),
		"notes.txt":   []byte("ignored"),
	}
	return writeZip(t, files, []string{"sales.xlsx", "reports/staff.xlsx", "broken.xlsx", "notes.txt"})
}

func openFixture(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), fixtureZip(t), Options{TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenReadsSources(t *testing.T) {
	s := openFixture(t)

	if got := s.ListFiles(); !reflect.DeepEqual(got, []string{"sales.xlsx", "staff.xlsx"}) {
		t.Fatalf("ListFiles = %v", got)
	}

	sheets, err := s.ListSheets("sales.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sheets, []string{"Q1"}) {
		t.Errorf("empty sheet should be dropped, got %v", sheets)
	}

	cols, err := s.ListSheetColumns("staff.xlsx", "People")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ID", "Name", "Unnamed: 2", "Name.1"}
	if !reflect.DeepEqual(cols, want) {
		t.Errorf("columns = %v, want %v", cols, want)
	}

	src := s.Sources()[1]
	sh, ok := src.Sheet("People")
	if !ok {
		t.Fatal("People sheet missing")
	}
	if sh.Rows != 2 {
		t.Errorf("blank row should be dropped, rows = %d", sh.Rows)
	}
	if len(sh.Preview[1]) != 4 {
		t.Errorf("short rows should be padded: %v", sh.Preview[1])
	}
}

func TestOpenSkipsCorruptFile(t *testing.T) {
	s := openFixture(t)

	skipped := s.Skipped()
	if len(skipped) != 1 || skipped[0].File != "broken.xlsx" {
		t.Fatalf("Skipped = %+v", skipped)
	}
	var rerr *errs.WorkbookReadError
	if !errors.As(skipped[0].Err, &rerr) {
		t.Errorf("skip should wrap WorkbookReadError, got %T", skipped[0].Err)
	}
}

func TestOpenNoData(t *testing.T) {
	path := writeZip(t, map[string][]byte{
		"a.xlsx": workbookBytes(t, sheetData{"S", [][]string{{"h"}}}),
		"b.xlsx": []byte("junk"),
	}, []string{"a.xlsx", "b.xlsx"})

	tmp := t.TempDir()
	_, err := Open(context.Background(), path, Options{TempDir: tmp})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if !strings.Contains(err.Error(), "b.xlsx") {
		t.Errorf("error should name skipped files: %v", err)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestOpenArchiveError(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), Options{TempDir: t.TempDir()})
	if !errs.IsFatal(err) {
		t.Fatalf("expected fatal archive error, got %v", err)
	}
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, fixtureZip(t), Options{TempDir: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOpenDistinctNamesForDuplicateFiles(t *testing.T) {
	book := func(v string) []byte {
		return workbookBytes(t, sheetData{"S", [][]string{{"V"}, {v}}})
	}
	order := []string{"x/a.xlsx", "y/a.xlsx", "a (2).xlsx"}
	zipPath := writeZip(t, map[string][]byte{
		"x/a.xlsx":   book("x"),
		"y/a.xlsx":   book("y"),
		"a (2).xlsx": book("top"),
	}, order)

	s, err := Open(context.Background(), zipPath, Options{TempDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	files := s.ListFiles()
	want := []string{"a.xlsx", "a (2).xlsx", "a (2) (2).xlsx"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for _, f := range files {
		if err := s.SelectAll(f, "S"); err != nil {
			t.Fatal(err)
		}
	}
	out, err := s.BuildOutput()
	if err != nil {
		t.Fatal(err)
	}
	var values []string
	for _, sh := range out.Sheets {
		values = append(values, sh.Rows[1][0])
	}
	if !reflect.DeepEqual(values, []string{"x", "y", "top"}) {
		t.Errorf("sheet values = %v", values)
	}
}

func TestCloseRemovesTempDir(t *testing.T) {
	tmp := t.TempDir()
	s, err := Open(context.Background(), fixtureZip(t), Options{TempDir: tmp})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temporary directory not removed: %v", entries)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}

func TestSetSelection(t *testing.T) {
	s := openFixture(t)

	if err := s.SetSelection("sales.xlsx", "Q1", []int{2, 0, 2}); err != nil {
		t.Fatal(err)
	}
	if got := s.Selection().Get("sales.xlsx", "Q1"); !reflect.DeepEqual(got, []int{2, 0}) {
		t.Errorf("selection = %v", got)
	}

	err := s.SetSelection("sales.xlsx", "Q1", []int{3})
	var serr *errs.SelectionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SelectionError, got %v", err)
	}
	if got := s.Selection().Get("sales.xlsx", "Q1"); !reflect.DeepEqual(got, []int{2, 0}) {
		t.Errorf("rejected selection must not change state: %v", got)
	}

	if err := s.SetSelection("sales.xlsx", "Q1", nil); err != nil {
		t.Fatal(err)
	}
	if s.Selection().Total() != 0 {
		t.Error("empty list should clear the selection")
	}

	if err := s.SetSelection("nope.xlsx", "Q1", []int{0}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectByName(t *testing.T) {
	s := openFixture(t)

	missing, err := s.SelectByName("sales.xlsx", "Q1", []string{"Rep", "Missing", "Region"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(missing, []string{"Missing"}) {
		t.Errorf("missing = %v", missing)
	}
	if got := s.SelectedColumns("sales.xlsx", "Q1"); !reflect.DeepEqual(got, []string{"Rep", "Region"}) {
		t.Errorf("selected = %v", got)
	}
}

func TestGenerateOutput(t *testing.T) {
	s := openFixture(t)
	if err := s.SetSelection("sales.xlsx", "Q1", []int{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAll("staff.xlsx", "People"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "merged.xlsx")
	report, err := s.GenerateOutput(context.Background(), path)
	if err != nil {
		t.Fatalf("GenerateOutput failed: %v", err)
	}
	if report.Output != path || report.Converted() {
		t.Errorf("unexpected output path %q", report.Output)
	}
	if len(report.Skipped) != 1 {
		t.Errorf("report should carry skip notices: %+v", report.Skipped)
	}

	wb, err := xlsx.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, sh := range wb.Sheets {
		names = append(names, sh.Name)
	}
	if !reflect.DeepEqual(names, []string{"sales_Q1", "staff_People", "Summary"}) {
		t.Fatalf("sheets = %v", names)
	}

	q1 := wb.Sheets[0].Rows
	if !reflect.DeepEqual(q1[0], []string{"Amount", "Region"}) {
		t.Errorf("columns should follow selection order: %v", q1[0])
	}
	if !reflect.DeepEqual(q1[2], []string{"250", "South"}) {
		t.Errorf("row = %v", q1[2])
	}

	people := wb.Sheets[1].Rows
	if !reflect.DeepEqual(people[0], []string{"ID", "Name", "Unnamed: 2", "Name.1"}) {
		t.Errorf("all should keep every column: %v", people[0])
	}
	if people[1][0] != "007" {
		t.Errorf("identifier lost leading zeros: %q", people[1][0])
	}

	summary := wb.Sheets[2].Rows
	if len(summary) != 3 {
		t.Fatalf("summary should have one row per output sheet: %v", summary)
	}
	if !reflect.DeepEqual(summary[1], []string{"sales.xlsx", "Q1", "sales_Q1", "Amount, Region", "2"}) {
		t.Errorf("summary row = %v", summary[1])
	}
}

func TestGenerateOutputIdempotent(t *testing.T) {
	s := openFixture(t)
	if err := s.SetSelection("staff.xlsx", "People", []int{1, 0}); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	var contents [][][]string
	for _, name := range []string{"one.xlsx", "two.xlsx"} {
		path := filepath.Join(dir, name)
		if _, err := s.GenerateOutput(context.Background(), path); err != nil {
			t.Fatal(err)
		}
		wb, err := xlsx.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var rows [][]string
		for _, sh := range wb.Sheets {
			rows = append(rows, sh.Rows...)
		}
		contents = append(contents, rows)
	}
	if !reflect.DeepEqual(contents[0], contents[1]) {
		t.Error("identical selections should produce identical data")
	}
}

func TestGenerateOutputSummaryOnly(t *testing.T) {
	s := openFixture(t)
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	report, err := s.GenerateOutput(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Sheets) != 0 {
		t.Errorf("expected no data sheets, got %d", len(report.Sheets))
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{"Summary"}) {
		t.Errorf("sheets = %v", got)
	}
}

func TestGenerateOutputNormalizesExtension(t *testing.T) {
	s := openFixture(t)
	dir := t.TempDir()

	report, err := s.GenerateOutput(context.Background(), filepath.Join(dir, "legacy.xls"))
	if err != nil {
		t.Fatal(err)
	}
	if report.Output != filepath.Join(dir, "legacy.xlsx") || !report.Converted() {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, err := os.Stat(report.Output); err != nil {
		t.Error(err)
	}
}

func TestGenerateOutputUnwritable(t *testing.T) {
	s := openFixture(t)
	_, err := s.GenerateOutput(context.Background(), filepath.Join(t.TempDir(), "missing", "out.xlsx"))
	var oerr *errs.OutputError
	if !errors.As(err, &oerr) {
		t.Fatalf("expected OutputError, got %v", err)
	}
}

func TestOutputPath(t *testing.T) {
	tests := map[string]string{
		"out.xlsx":     "out.xlsx",
		"out.XLSX":     "out.XLSX",
		"out.xls":      "out.xlsx",
		"out":          "out.xlsx",
		"dir/out.data": "dir/out.data.xlsx",
	}
	for in, want := range tests {
		if got := OutputPath(in); got != want {
			t.Errorf("OutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSheetNamer(t *testing.T) {
	n := newSheetNamer()
	long := strings.Repeat("x", 40)

	got := []string{
		n.name("a_b"),
		n.name("A_B"),
		n.name("summary"),
		n.name("q[1]:*?/\\"),
		n.name(long),
		n.name(long),
		n.name("abcdefghijklmnopqrstuvwxy_Bobb's"),
		n.name("abcdefghijklmnopqrstuvwxy_Bobb's"),
		n.name("abcdefghijklmnopqrstuvwxyz'bcdef"),
		n.name("abcdefghijklmnopqrstuvwxyz'bcdef"),
		n.name("''"),
	}
	want := []string{
		"a_b",
		"A_B_1",
		"summary_1",
		"q1",
		strings.Repeat("x", 31),
		strings.Repeat("x", 27) + "_1",
		"abcdefghijklmnopqrstuvwxy_Bobb",
		"abcdefghijklmnopqrstuvwxy_B_1",
		"abcdefghijklmnopqrstuvwxyz'bcde",
		"abcdefghijklmnopqrstuvwxyz_1",
		"Sheet",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
	for _, name := range got {
		if len([]rune(name)) > maxSheetName {
			t.Errorf("%q exceeds %d characters", name, maxSheetName)
		}
		if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
			t.Errorf("%q starts or ends with an apostrophe", name)
		}
	}
}

func TestGenerateOutputApostropheAtCut(t *testing.T) {
	const file = "abcdefghijklmnopqrstuvwxy.xlsx"
	zipPath := writeZip(t, map[string][]byte{
		file: workbookBytes(t, sheetData{"Bobb's", [][]string{{"A"}, {"1"}}}),
	}, []string{file})

	s, err := Open(context.Background(), zipPath, Options{TempDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SelectAll(file, "Bobb's"); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "out.xlsx")
	report, err := s.GenerateOutput(context.Background(), out)
	if err != nil {
		t.Fatalf("GenerateOutput: %v", err)
	}
	if got := report.Sheets[0].Name; got != "abcdefghijklmnopqrstuvwxy_Bobb" {
		t.Errorf("sheet name = %q", got)
	}
	if _, err := xlsx.ReadFile(out); err != nil {
		t.Errorf("output not readable: %v", err)
	}
}

func TestNormalizeHeaders(t *testing.T) {
	got := normalizeHeaders([]string{"a", " ", "a", "a.1", "a"}, 6)
	want := []string{"a", "Unnamed: 1", "a.1", "a.1.1", "a.2", "Unnamed: 5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("headers = %v, want %v", got, want)
	}
}
