// Package errs defines the error taxonomy shared by the extraction pipeline.
package errs

import (
	"errors"
	"fmt"
)

// ArchiveError reports a ZIP archive that cannot be used at all. Fatal for a run.
type ArchiveError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("archive %s: %s", e.Path, e.Reason)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// WorkbookReadError reports a single spreadsheet that could not be read.
// The run skips the file and continues.
type WorkbookReadError struct {
	File string
	Err  error
}

func (e *WorkbookReadError) Error() string {
	return fmt.Sprintf("could not read %s: %v", e.File, e.Err)
}

func (e *WorkbookReadError) Unwrap() error { return e.Err }

// SelectionError reports invalid column selection input. Front-ends re-prompt.
type SelectionError struct {
	Input  string
	Reason string
}

func (e *SelectionError) Error() string {
	if e.Input == "" {
		return "invalid selection: " + e.Reason
	}
	return fmt.Sprintf("invalid selection %q: %s", e.Input, e.Reason)
}

// OutputError reports an output workbook that could not be written. Fatal for a run.
type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("could not write %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	var ae *ArchiveError
	var oe *OutputError
	return errors.As(err, &ae) || errors.As(err, &oe)
}
