// Package archive extracts spreadsheet files from ZIP archives.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klytics/sheetmerge/internal/errs"
)

// DefaultMaxEntryBytes caps the uncompressed size of a single extracted entry.
const DefaultMaxEntryBytes = 256 << 20

// SpreadsheetExtensions are the entry extensions the extractor keeps.
var SpreadsheetExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
}

// Entry is a spreadsheet extracted from the archive.
type Entry struct {
	// Name is the entry path inside the archive, slash separated.
	Name string `json:"name"`
	// DisplayName is the base name, disambiguated when two folders hold the same name.
	DisplayName string `json:"displayName"`
	// Path is where the entry was written on disk.
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Skip records an entry that looked like a spreadsheet but was not extracted.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result holds the outcome of an extraction.
type Result struct {
	Archive string  `json:"archive"`
	Scanned int     `json:"scanned"`
	Files   []Entry `json:"files"`
	Skipped []Skip  `json:"skipped,omitempty"`
}

// Options configures extraction.
type Options struct {
	MaxEntryBytes int64
}

// IsSpreadsheet reports whether an archive entry name should be extracted.
func IsSpreadsheet(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return false
	}
	base := path.Base(name)
	if base == "" || strings.HasPrefix(base, "~$") || strings.HasPrefix(base, "._") {
		return false
	}
	return SpreadsheetExtensions[strings.ToLower(path.Ext(base))]
}

// List returns the spreadsheet entry names of a ZIP archive without extracting.
func List(zipPath string) ([]string, error) {
	r, err := open(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var names []string
	for _, f := range r.File {
		if IsSpreadsheet(f.Name) {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// Extract writes every spreadsheet entry of zipPath below destDir.
// It fails only when the archive itself is unusable or holds no spreadsheets;
// individual bad entries are reported in Result.Skipped.
func Extract(zipPath, destDir string, opts Options) (*Result, error) {
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}

	r, err := open(zipPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create extraction directory: %w", err)
	}

	res := &Result{Archive: zipPath, Scanned: len(r.File)}
	used := make(map[string]bool)
	candidates := 0

	for _, f := range r.File {
		if !IsSpreadsheet(f.Name) {
			continue
		}
		candidates++

		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Name: f.Name, Reason: err.Error()})
			continue
		}
		if f.UncompressedSize64 > uint64(opts.MaxEntryBytes) {
			res.Skipped = append(res.Skipped, Skip{
				Name:   f.Name,
				Reason: fmt.Sprintf("entry is %d bytes, limit is %d", f.UncompressedSize64, opts.MaxEntryBytes),
			})
			continue
		}

		n, err := writeEntry(f, target, opts.MaxEntryBytes)
		if err != nil {
			_ = os.Remove(target)
			res.Skipped = append(res.Skipped, Skip{Name: f.Name, Reason: err.Error()})
			continue
		}

		res.Files = append(res.Files, Entry{
			Name:        f.Name,
			DisplayName: displayName(path.Base(f.Name), used),
			Path:        target,
			Size:        n,
		})
	}

	if candidates == 0 {
		return nil, &errs.ArchiveError{Path: zipPath, Reason: "no .xlsx or .xls files found in archive"}
	}
	if len(res.Files) == 0 {
		return res, &errs.ArchiveError{Path: zipPath, Reason: "no spreadsheet entries could be extracted"}
	}
	return res, nil
}

func open(zipPath string) (*zip.ReadCloser, error) {
	info, err := os.Stat(zipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.ArchiveError{Path: zipPath, Reason: "file not found — check that the path is correct"}
		}
		return nil, &errs.ArchiveError{Path: zipPath, Reason: "could not access file", Err: err}
	}
	if info.IsDir() {
		return nil, &errs.ArchiveError{Path: zipPath, Reason: "is a directory, expected a .zip file"}
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, &errs.ArchiveError{Path: zipPath, Reason: "not a valid ZIP file", Err: err}
	}
	return r, nil
}

// safeJoin resolves an entry name below root and rejects names escaping it.
func safeJoin(root, name string) (string, error) {
	if strings.Contains(name, "\\") {
		name = strings.ReplaceAll(name, "\\", "/")
	}
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return "", errors.New("absolute entry path")
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.New("entry path escapes the extraction directory")
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

func writeEntry(f *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("could not create folder: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("could not open entry: %w", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("could not create file: %w", err)
	}

	// Read one byte past the limit so a lying header is still caught.
	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	closeErr := out.Close()
	if err != nil {
		return n, fmt.Errorf("could not decompress entry: %w", err)
	}
	if closeErr != nil {
		return n, closeErr
	}
	if n > limit {
		return n, fmt.Errorf("entry exceeds %d bytes", limit)
	}
	return n, nil
}

// displayName returns base, or base with the first free " (n)" suffix.
// Names compare case-insensitively and every name handed out is recorded.
func displayName(base string, used map[string]bool) string {
	name := base
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	used[strings.ToLower(name)] = true
	return name
}
