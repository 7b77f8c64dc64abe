// Package merge reads the spreadsheets of a ZIP archive, tracks the user's
// column selection and assembles the merged output workbook.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/archive"
	"github.com/klytics/sheetmerge/internal/errs"
	"github.com/klytics/sheetmerge/internal/formats/xlsx"
)

// DefaultPreviewRows is the number of data rows kept per sheet for display.
const DefaultPreviewRows = 5

var (
	// ErrNoData is returned by Open when no sheet of any file holds data.
	ErrNoData = errors.New("could not read any data from the spreadsheets in the archive")
	// ErrNotFound is returned for unknown file or sheet names.
	ErrNotFound = errors.New("not found")
)

// Service is the surface front-ends drive. The terminal prompt and the HTTP
// API both work against it.
type Service interface {
	ListFiles() []string
	ListSheetColumns(file, sheet string) ([]string, error)
	SetSelection(file, sheet string, columns []int) error
	GenerateOutput(ctx context.Context, path string) (*Report, error)
}

// Options configures Open.
type Options struct {
	PreviewRows   int
	TempDir       string
	MaxEntryBytes int64
	Logger        *zap.Logger
	// OnFile is called after each extracted file was read, successfully or not.
	OnFile func(done, total int, name string)
}

// Skip is a file that was left out of the run.
type Skip struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Session holds the state of one processing run. Close removes its temporary files.
type Session struct {
	mu        sync.Mutex
	archive   string
	dir       string
	sources   []*Source
	byName    map[string]*Source
	selection Selection
	skipped   []Skip
	logger    *zap.Logger
}

var _ Service = (*Session)(nil)

// Open extracts zipPath into a temporary directory and reads every spreadsheet.
// Unreadable files are recorded as skips; the archive itself failing is fatal.
func Open(ctx context.Context, zipPath string, opts Options) (*Session, error) {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dir, err := os.MkdirTemp(opts.TempDir, "sheetmerge-")
	if err != nil {
		return nil, fmt.Errorf("could not create temporary directory: %w", err)
	}

	s := &Session{
		archive:   zipPath,
		dir:       dir,
		byName:    make(map[string]*Source),
		selection: make(Selection),
		logger:    opts.Logger,
	}

	s.logger.Debug("extracting archive", zap.String("archive", zipPath), zap.String("dir", dir))
	res, err := archive.Extract(zipPath, filepath.Join(dir, "extracted"), archive.Options{MaxEntryBytes: opts.MaxEntryBytes})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Info("archive extracted",
		zap.String("archive", zipPath),
		zap.Int("entries", res.Scanned),
		zap.Int("spreadsheets", len(res.Files)))

	for _, sk := range res.Skipped {
		s.skip(Skip{File: sk.Name, Reason: sk.Reason})
	}

	for i, entry := range res.Files {
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}

		src, err := readSource(entry, opts.PreviewRows)
		if opts.OnFile != nil {
			opts.OnFile(i+1, len(res.Files), entry.DisplayName)
		}
		if err != nil {
			rerr := &errs.WorkbookReadError{File: entry.DisplayName, Err: err}
			s.skip(Skip{File: entry.DisplayName, Reason: rerr.Error(), Err: rerr})
			continue
		}
		if len(src.Sheets) == 0 {
			s.skip(Skip{File: entry.DisplayName, Reason: "no sheets with data"})
			continue
		}

		s.logger.Debug("workbook read",
			zap.String("file", src.Name),
			zap.String("format", string(src.Format)),
			zap.Int("sheets", len(src.Sheets)))
		s.sources = append(s.sources, src)
		s.byName[src.Name] = src
	}

	if len(s.sources) == 0 {
		skipped := s.skipped
		s.Close()
		return nil, noDataError(skipped)
	}
	return s, nil
}

func noDataError(skipped []Skip) error {
	if len(skipped) == 0 {
		return ErrNoData
	}
	reasons := make([]string, len(skipped))
	for i, sk := range skipped {
		reasons[i] = sk.File + ": " + sk.Reason
	}
	return fmt.Errorf("%w (skipped %s)", ErrNoData, strings.Join(reasons, "; "))
}

func (s *Session) skip(sk Skip) {
	s.skipped = append(s.skipped, sk)
	s.logger.Warn("skipping file", zap.String("file", sk.File), zap.String("reason", sk.Reason))
}

func readSource(entry archive.Entry, previewRows int) (*Source, error) {
	wb, err := xlsx.ReadFile(entry.Path)
	if err != nil {
		return nil, err
	}

	src := &Source{
		Name:   entry.DisplayName,
		Entry:  entry.Name,
		Format: wb.Format,
		tables: make(map[string]*table),
	}
	for _, sheet := range wb.Sheets {
		t := newTable(sheet.Rows)
		if t == nil {
			continue
		}
		src.tables[sheet.Name] = t
		src.Sheets = append(src.Sheets, SheetPreview{
			Name:    sheet.Name,
			Columns: append([]string(nil), t.headers...),
			Rows:    len(t.rows),
			Preview: t.preview(previewRows),
		})
	}
	return src, nil
}

// Archive returns the path of the archive the session was opened from.
func (s *Session) Archive() string { return s.archive }

// Sources returns the readable workbooks in archive order.
func (s *Session) Sources() []*Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Source(nil), s.sources...)
}

// Skipped returns the files that were left out.
func (s *Session) Skipped() []Skip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Skip(nil), s.skipped...)
}

// ListFiles returns the display names of the readable workbooks.
func (s *Session) ListFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.sources))
	for i, src := range s.sources {
		names[i] = src.Name
	}
	return names
}

// ListSheets returns the sheets with data of file.
func (s *Session) ListSheets(file string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.byName[file]
	if !ok {
		return nil, fmt.Errorf("file %q %w", file, ErrNotFound)
	}
	names := make([]string, len(src.Sheets))
	for i, sh := range src.Sheets {
		names[i] = sh.Name
	}
	return names, nil
}

// ListSheetColumns returns the normalized column headers of (file, sheet).
func (s *Session) ListSheetColumns(file, sheet string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(file, sheet)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.headers...), nil
}

func (s *Session) lookup(file, sheet string) (*table, error) {
	src, ok := s.byName[file]
	if !ok {
		return nil, fmt.Errorf("file %q %w", file, ErrNotFound)
	}
	t, ok := src.tables[sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q of %q %w", sheet, file, ErrNotFound)
	}
	return t, nil
}

// SetSelection replaces the selection of (file, sheet) with zero-based column
// indices. Duplicates keep their first position; an empty list clears the sheet.
func (s *Session) SetSelection(file, sheet string, columns []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(file, sheet)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if c < 0 || c >= len(t.headers) {
			return &errs.SelectionError{
				Input:  fmt.Sprint(c + 1),
				Reason: fmt.Sprintf("column %d is out of range (1-%d)", c+1, len(t.headers)),
			}
		}
	}

	key := Key{File: file, Sheet: sheet}
	if len(columns) == 0 {
		delete(s.selection, key)
		return nil
	}
	s.selection[key] = dedupe(columns)
	return nil
}

// SelectAll selects every column of (file, sheet) in original order.
func (s *Session) SelectAll(file, sheet string) error {
	cols, err := s.ListSheetColumns(file, sheet)
	if err != nil {
		return err
	}
	all := make([]int, len(cols))
	for i := range all {
		all[i] = i
	}
	return s.SetSelection(file, sheet, all)
}

// SelectByName selects columns of (file, sheet) by header name, in the given
// order. Names the sheet does not have are returned and otherwise ignored.
func (s *Session) SelectByName(file, sheet string, names []string) ([]string, error) {
	cols, err := s.ListSheetColumns(file, sheet)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}

	var picked []int
	var missing []string
	for _, n := range names {
		if i, ok := index[n]; ok {
			picked = append(picked, i)
		} else {
			missing = append(missing, n)
		}
	}
	return missing, s.SetSelection(file, sheet, picked)
}

// Selection returns a copy of the current selection.
func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Selection, len(s.selection))
	for k, v := range s.selection {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// SelectedColumns returns the header names selected for (file, sheet).
func (s *Session) SelectedColumns(file, sheet string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(file, sheet)
	if err != nil {
		return nil
	}
	cols := s.selection[Key{File: file, Sheet: sheet}]
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = t.headers[c]
	}
	return names
}

// Keys returns every (file, sheet) pair in archive and sheet order.
func (s *Session) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []Key
	for _, src := range s.sources {
		for _, sh := range src.Sheets {
			keys = append(keys, Key{File: src.Name, Sheet: sh.Name})
		}
	}
	return keys
}

// Close removes the session's temporary files.
func (s *Session) Close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	if err != nil {
		s.logger.Warn("could not remove temporary directory", zap.String("dir", s.dir), zap.Error(err))
	} else {
		s.logger.Debug("removed temporary directory", zap.String("dir", s.dir))
	}
	s.dir = ""
	return err
}

// sortedKeys orders selection keys the way the sources appear. Callers hold s.mu.
func (s *Session) sortedKeys() []Key {
	order := make(map[Key]int)
	n := 0
	for _, src := range s.sources {
		for _, sh := range src.Sheets {
			order[Key{File: src.Name, Sheet: sh.Name}] = n
			n++
		}
	}
	keys := make([]Key, 0, len(s.selection))
	for k, cols := range s.selection {
		if len(cols) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return order[keys[i]] < order[keys[j]] })
	return keys
}
