package xlsx

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func copyFixture(t *testing.T, name, as string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), as)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadLegacyWorkbook(t *testing.T) {
	wb, err := ReadFile(filepath.Join("testdata", "Formate.xls"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if wb.Format != FormatXLS {
		t.Errorf("Format = %q", wb.Format)
	}

	var names []string
	for _, s := range wb.Sheets {
		names = append(names, s.Name)
	}
	want := []string{"Blätt1", "ÖÄÜ", "Blätt3", "Formate"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("sheets = %q, want %q", names, want)
	}

	first := wb.Sheets[0]
	if len(first.Rows) != 10 {
		t.Fatalf("expected 10 rows, got %d", len(first.Rows))
	}
	for i, row := range first.Rows {
		if len(row) != 2 {
			t.Errorf("row %d = %q, trailing blanks should be trimmed", i, row)
		}
	}

	tests := []struct {
		row, col int
		want     string
	}{
		{0, 0, "Huber"},
		{1, 0, "Äcker"},
		{0, 1, "1907-07-03"},
		{1, 1, "2005-02-23"},
		{2, 1, "1988-05-03"},
		{6, 1, "0.974"},
		{8, 1, "1000.3"},
		{9, 1, "1.2"},
	}
	for _, tt := range tests {
		if got := first.Rows[tt.row][tt.col]; got != tt.want {
			t.Errorf("cell (%d,%d) = %q, want %q", tt.row, tt.col, got, tt.want)
		}
	}
}

func TestReadLegacyNumbersAndGaps(t *testing.T) {
	wb, err := ReadFile(filepath.Join("testdata", "Formate.xls"))
	if err != nil {
		t.Fatal(err)
	}

	merged, err := wb.GetSheet("ÖÄÜ")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"-100"}, {}, {"", "", "MERGED CELLS"}}
	if !reflect.DeepEqual(merged.Rows, want) {
		t.Errorf("rows = %q, want %q", merged.Rows, want)
	}

	numbers, err := wb.GetSheet("Blätt3")
	if err != nil {
		t.Fatal(err)
	}
	if numbers.RowCount() != 12 {
		t.Fatalf("expected 12 rows, got %d", numbers.RowCount())
	}
	if numbers.Rows[0][0] != "100" || numbers.Rows[11][0] != "1200" {
		t.Errorf("numbers should have no fraction: %q .. %q", numbers.Rows[0][0], numbers.Rows[11][0])
	}
}

func TestReadLegacyRaggedRows(t *testing.T) {
	wb, err := ReadFile(filepath.Join("testdata", "ragged.xls"))
	if err != nil {
		t.Fatal(err)
	}
	if len(wb.Sheets) != 3 {
		t.Fatalf("expected 3 sheets, got %d", len(wb.Sheets))
	}

	want := [][]string{
		{"a", "b", "c"},
		{"d", "e"},
		{"f"},
		{"g", "h", "I", "j"},
		{"k", "", "", "l"},
	}
	if !reflect.DeepEqual(wb.Sheets[0].Rows, want) {
		t.Errorf("rows = %q, want %q", wb.Sheets[0].Rows, want)
	}
	for _, s := range wb.Sheets[1:] {
		if len(s.Rows) != 0 {
			t.Errorf("sheet %s: expected no rows, got %q", s.Name, s.Rows)
		}
	}
}

func TestReadLegacyMislabelledAsXlsx(t *testing.T) {
	path := copyFixture(t, "ragged.xls", "ragged.xlsx")

	wb, err := ReadFile(path)
	if err != nil {
		t.Fatalf("expected fallback to the .xls reader: %v", err)
	}
	if wb.Format != FormatXLS {
		t.Errorf("Format = %q, want %q", wb.Format, FormatXLS)
	}
	if wb.Sheets[0].Rows[0][0] != "a" {
		t.Errorf("unexpected first row: %q", wb.Sheets[0].Rows[0])
	}
}

func TestReadLegacyNeitherFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xls")
	if err := os.WriteFile(path, []byte("PK\x03\x04 not really a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected error when both readers fail")
	}
}

func TestTrimTrailing(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"a", "", ""}, []string{"a"}},
		{[]string{"", "b"}, []string{"", "b"}},
		{[]string{"", ""}, []string{}},
		{nil, nil},
	}
	for _, tt := range tests {
		got := trimTrailing(tt.in)
		if len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("trimTrailing(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTrimTrailingRows(t *testing.T) {
	rows := [][]string{{"a"}, {}, {"b"}, {}, {}}
	got := trimTrailingRows(rows)
	want := [][]string{{"a"}, {}, {"b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("trimTrailingRows = %q, want %q", got, want)
	}
	if got := trimTrailingRows([][]string{{}, {}}); len(got) != 0 {
		t.Errorf("expected no rows, got %q", got)
	}
}
