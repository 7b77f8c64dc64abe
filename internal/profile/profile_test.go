package profile

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klytics/sheetmerge/internal/merge"
)

func sources() []*merge.Source {
	return []*merge.Source{
		{Name: "sales_2024.xlsx", Sheets: []merge.SheetPreview{
			{Name: "Q1", Columns: []string{"Region", "Amount", "Rep"}},
			{Name: "Q2", Columns: []string{"Region", "Amount"}},
		}},
		{Name: "staff.xls", Sheets: []merge.SheetPreview{
			{Name: "People", Columns: []string{"ID", "Name"}},
		}},
	}
}

func TestAddColumnPatternMerges(t *testing.T) {
	p := New("p")
	p.AddColumnPattern("Q*", []string{"Region", "Amount"})
	p.AddColumnPattern("Q*", []string{"Amount", "Rep"})
	p.AddColumnPattern("People", []string{"ID", "ID"})

	want := []ColumnPattern{
		{Pattern: "Q*", Columns: []string{"Region", "Amount", "Rep"}},
		{Pattern: "People", Columns: []string{"ID"}},
	}
	if !reflect.DeepEqual(p.ColumnPatterns, want) {
		t.Errorf("patterns = %+v", p.ColumnPatterns)
	}

	if !p.RemoveColumnPattern("People") || p.RemoveColumnPattern("People") {
		t.Error("RemoveColumnPattern should succeed once")
	}
}

func TestWatchFolders(t *testing.T) {
	p := New("p")
	p.AddWatchFolder("/in")
	p.AddWatchFolder("/in")
	p.AddWatchFolder("")
	if !reflect.DeepEqual(p.WatchFolders, []string{"/in"}) {
		t.Errorf("folders = %v", p.WatchFolders)
	}
	if !p.RemoveWatchFolder("/in") || len(p.WatchFolders) != 0 {
		t.Error("folder not removed")
	}
	if p.RemoveWatchFolder("/missing") {
		t.Error("removing unknown folder should report false")
	}
}

func TestMatch(t *testing.T) {
	p := New("p")
	p.AddColumnPattern("Q*", []string{"Rep", "Region", "Missing"})
	p.AddFileSelection("staff.xls", "People", []string{"Name"})
	p.AddColumnPattern("file:sales_*.xlsx|sheet:Q2", []string{"Amount", "Region"})
	p.AddColumnPattern("Nothing", []string{"Region"})

	got := p.Match(sources())
	want := map[merge.Key][]string{
		{File: "sales_2024.xlsx", Sheet: "Q1"}: {"Rep", "Region"},
		{File: "sales_2024.xlsx", Sheet: "Q2"}: {"Region", "Amount"},
		{File: "staff.xls", Sheet: "People"}:   {"Name"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Match = %v, want %v", got, want)
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, file, sheet string
		want                 bool
	}{
		{"Sheet1", "a.xlsx", "Sheet1", true},
		{"Sheet1", "a.xlsx", "Sheet2", false},
		{"file:a.xlsx|sheet:S", "a.xlsx", "S", true},
		{"file:a.xlsx|sheet:S", "b.xlsx", "S", false},
		{"file:*.xlsx|sheet:*", "b.xlsx", "any", true},
		{"file:a.xlsx", "a.xlsx", "S", false},
		{"file:a.xlsx|S", "a.xlsx", "S", false},
		{"[bad", "x", "[bad", true},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.file, tt.sheet); got != tt.want {
			t.Errorf("matchPattern(%q, %q, %q) = %v", tt.pattern, tt.file, tt.sheet, got)
		}
	}
}

func TestFileSelectionIsLiteral(t *testing.T) {
	srcs := []*merge.Source{
		{Name: "data[2024].xlsx", Sheets: []merge.SheetPreview{{Name: "S", Columns: []string{"Name"}}}},
		{Name: `back\slash.xlsx`, Sheets: []merge.SheetPreview{{Name: "S", Columns: []string{"Name"}}}},
		{Name: "q*1.xlsx", Sheets: []merge.SheetPreview{{Name: "Sheet?", Columns: []string{"Name"}}}},
		{Name: "quarter1.xlsx", Sheets: []merge.SheetPreview{{Name: "Sheet1", Columns: []string{"Name"}}}},
	}
	p := New("p")
	p.AddFileSelection("data[2024].xlsx", "S", []string{"Name"})
	p.AddFileSelection(`back\slash.xlsx`, "S", []string{"Name"})
	p.AddFileSelection("q*1.xlsx", "Sheet?", []string{"Name"})

	got := p.Match(srcs)
	want := map[merge.Key][]string{
		{File: "data[2024].xlsx", Sheet: "S"}: {"Name"},
		{File: `back\slash.xlsx`, Sheet: "S"}: {"Name"},
		{File: "q*1.xlsx", Sheet: "Sheet?"}:   {"Name"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Match = %v, want %v", got, want)
	}
	if pat := FilePattern("q*1.xlsx", "Sheet?"); pat != `file:q\*1.xlsx|sheet:Sheet\?` {
		t.Errorf("FilePattern = %q", pat)
	}
}

func TestMatchUnescapedLiteral(t *testing.T) {
	p := New("p")
	p.AddColumnPattern("file:data[2024].xlsx|sheet:S", []string{"Name"})
	srcs := []*merge.Source{
		{Name: "data[2024].xlsx", Sheets: []merge.SheetPreview{{Name: "S", Columns: []string{"Name"}}}},
	}
	if got := p.Match(srcs); len(got) != 1 {
		t.Errorf("Match = %v, want the literal file matched", got)
	}
}

type fakeSelected map[merge.Key][]string

func (f fakeSelected) Keys() []merge.Key {
	return []merge.Key{{File: "a.xlsx", Sheet: "S1"}, {File: "a.xlsx", Sheet: "S2"}}
}

func (f fakeSelected) SelectedColumns(file, sheet string) []string {
	return f[merge.Key{File: file, Sheet: sheet}]
}

func TestCapture(t *testing.T) {
	p := New("p")
	n := p.Capture(fakeSelected{{File: "a.xlsx", Sheet: "S2"}: {"x", "y"}})
	if n != 1 {
		t.Errorf("captured %d sheets", n)
	}
	if len(p.ColumnPatterns) != 1 || p.ColumnPatterns[0].Pattern != "file:a.xlsx|sheet:S2" {
		t.Errorf("patterns = %+v", p.ColumnPatterns)
	}
}

func TestManagerCreateAndReload(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	p, err := m.Create("Monthly")
	if err != nil {
		t.Fatal(err)
	}
	p.AddColumnPattern("Q*", []string{"Region"})
	p.AddWatchFolder("/in")
	p.AutoProcess = true
	if err := m.Save(p); err != nil {
		t.Fatal(err)
	}

	dup, err := m.Create("Monthly")
	if err != nil {
		t.Fatal(err)
	}
	if dup.Name != "Monthly (1)" {
		t.Errorf("unique name = %q", dup.Name)
	}

	reloaded, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reloaded.Get("Monthly")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("reloaded = %+v, want %+v", got, p)
	}
	if len(reloaded.List()) != 2 {
		t.Errorf("List = %d profiles", len(reloaded.List()))
	}
	if auto := reloaded.AutoProcess(); len(auto) != 1 || auto[0].Name != "Monthly" {
		t.Errorf("AutoProcess = %v", auto)
	}
}

func TestManagerDefaultFollowsRenameAndDelete(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir, nil)
	m.Create("a")

	if err := m.SetDefault("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.SetDefault("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Rename("a", "b"); err != nil {
		t.Fatal(err)
	}
	if m.DefaultName() != "b" || m.Default() == nil {
		t.Errorf("default = %q", m.DefaultName())
	}
	if _, err := os.Stat(filepath.Join(dir, "a.yaml")); !os.IsNotExist(err) {
		t.Error("old profile file should be removed")
	}

	reloaded, _ := NewManager(dir, nil)
	if reloaded.DefaultName() != "b" {
		t.Errorf("default not persisted: %q", reloaded.DefaultName())
	}

	if err := reloaded.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if reloaded.Default() != nil || reloaded.DefaultName() != "" {
		t.Error("deleting the default should clear it")
	}
	if err := reloaded.Delete("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerRenameConflict(t *testing.T) {
	m, _ := NewManager(t.TempDir(), nil)
	m.Create("a")
	m.Create("b")
	if err := m.Rename("a", "b"); err == nil {
		t.Error("expected error when renaming onto an existing profile")
	}
	if err := m.Rename("zzz", "c"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerIgnoresBrokenFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644)

	m, err := NewManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.List()) != 0 {
		t.Errorf("expected no profiles, got %v", m.List())
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"Monthly Sales": "Monthly Sales.yaml",
		"a/b:c":         "a_b_c.yaml",
		"v1.2-final_x":  "v1.2-final_x.yaml",
		"settings":      "settings_.yaml",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}
