// Package profile stores reusable column selections and watch-folder settings.
package profile

import (
	"path"
	"strings"

	"github.com/klytics/sheetmerge/internal/merge"
)

// ColumnPattern selects named columns from every sheet its pattern matches.
//
// A pattern is either "file:<glob>|sheet:<glob>" or a bare sheet glob.
type ColumnPattern struct {
	Pattern string   `yaml:"pattern" json:"pattern"`
	Columns []string `yaml:"columns" json:"columns"`
}

// Profile is a saved extraction setup.
type Profile struct {
	Name           string          `yaml:"name" json:"name"`
	ColumnPatterns []ColumnPattern `yaml:"column_patterns" json:"column_patterns"`
	WatchFolders   []string        `yaml:"watch_folders,omitempty" json:"watch_folders,omitempty"`
	OutputFolder   string          `yaml:"output_folder,omitempty" json:"output_folder,omitempty"`
	AutoProcess    bool            `yaml:"auto_process" json:"auto_process"`
}

// New returns an empty profile.
func New(name string) *Profile {
	return &Profile{Name: name}
}

// FilePattern returns the pattern that matches exactly one file and sheet.
// Glob metacharacters in the names are escaped.
func FilePattern(file, sheet string) string {
	return "file:" + escapeGlob(file) + "|sheet:" + escapeGlob(sheet)
}

func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// AddColumnPattern adds columns for pattern. An existing pattern is extended;
// columns keep their first position.
func (p *Profile) AddColumnPattern(pattern string, columns []string) {
	for i := range p.ColumnPatterns {
		if p.ColumnPatterns[i].Pattern == pattern {
			p.ColumnPatterns[i].Columns = appendUnique(p.ColumnPatterns[i].Columns, columns...)
			return
		}
	}
	p.ColumnPatterns = append(p.ColumnPatterns, ColumnPattern{
		Pattern: pattern,
		Columns: appendUnique(nil, columns...),
	})
}

// RemoveColumnPattern deletes pattern and reports whether it existed.
func (p *Profile) RemoveColumnPattern(pattern string) bool {
	for i := range p.ColumnPatterns {
		if p.ColumnPatterns[i].Pattern == pattern {
			p.ColumnPatterns = append(p.ColumnPatterns[:i], p.ColumnPatterns[i+1:]...)
			return true
		}
	}
	return false
}

// AddFileSelection records columns for one specific (file, sheet).
func (p *Profile) AddFileSelection(file, sheet string, columns []string) {
	p.AddColumnPattern(FilePattern(file, sheet), columns)
}

// AddWatchFolder adds folder unless it is empty or already present.
func (p *Profile) AddWatchFolder(folder string) {
	if folder == "" {
		return
	}
	for _, f := range p.WatchFolders {
		if f == folder {
			return
		}
	}
	p.WatchFolders = append(p.WatchFolders, folder)
}

// RemoveWatchFolder removes folder and reports whether it was present.
func (p *Profile) RemoveWatchFolder(folder string) bool {
	for i, f := range p.WatchFolders {
		if f == folder {
			p.WatchFolders = append(p.WatchFolders[:i], p.WatchFolders[i+1:]...)
			return true
		}
	}
	return false
}

// Selected is the part of a session a profile is captured from.
type Selected interface {
	Keys() []merge.Key
	SelectedColumns(file, sheet string) []string
}

// Capture adds a file selection for every sheet of s with selected columns.
func (p *Profile) Capture(s Selected) int {
	n := 0
	for _, key := range s.Keys() {
		cols := s.SelectedColumns(key.File, key.Sheet)
		if len(cols) == 0 {
			continue
		}
		p.AddFileSelection(key.File, key.Sheet, cols)
		n++
	}
	return n
}

// Match applies the profile's patterns to sources. The result holds, per
// matched sheet, the pattern columns the sheet actually has, in pattern order
// and without duplicates. Sheets that end up with no columns are left out.
func (p *Profile) Match(sources []*merge.Source) map[merge.Key][]string {
	out := make(map[merge.Key][]string)
	for _, cp := range p.ColumnPatterns {
		for _, src := range sources {
			for _, sh := range src.Sheets {
				if !matchPattern(cp.Pattern, src.Name, sh.Name) {
					continue
				}
				present := make(map[string]bool, len(sh.Columns))
				for _, c := range sh.Columns {
					present[c] = true
				}
				key := merge.Key{File: src.Name, Sheet: sh.Name}
				for _, c := range cp.Columns {
					if present[c] {
						out[key] = appendUnique(out[key], c)
					}
				}
			}
		}
	}
	return out
}

func matchPattern(pattern, file, sheet string) bool {
	if rest, ok := strings.CutPrefix(pattern, "file:"); ok {
		filePart, sheetPart, found := strings.Cut(rest, "|")
		if !found {
			return false
		}
		sheetGlob, ok := strings.CutPrefix(strings.TrimSpace(sheetPart), "sheet:")
		if !ok {
			return false
		}
		return literalOrGlob(strings.TrimSpace(filePart), file) && literalOrGlob(strings.TrimSpace(sheetGlob), sheet)
	}
	return globMatch(pattern, sheet)
}

// literalOrGlob accepts an exact name before trying glob matching, so
// profiles saved with unescaped names keep matching their own files.
func literalOrGlob(glob, name string) bool {
	return glob == name || globMatch(glob, name)
}

// globMatch falls back to equality for malformed globs.
func globMatch(glob, name string) bool {
	ok, err := path.Match(glob, name)
	if err != nil {
		return glob == name
	}
	return ok
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		dup := false
		for _, d := range dst {
			if d == v {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
