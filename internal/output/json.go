package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klytics/sheetmerge/cmd/version"
	"github.com/klytics/sheetmerge/internal/errs"
	"github.com/klytics/sheetmerge/internal/merge"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad flags, bad archive, invalid selection
	ExitSystemError = 2 // output not writable, IO error
)

// Stdout is where envelopes are written.
var Stdout io.Writer = os.Stdout

// JSONResult is the standard JSON output envelope for all commands.
type JSONResult struct {
	OK      bool        `json:"ok"`
	Command string      `json:"command"`
	Version string      `json:"version"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// PrintJSON writes a standard success JSON result to stdout.
func PrintJSON(cmd string, data interface{}) error {
	result := JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	}
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// PrintJSONError writes a standard error JSON result to stdout.
func PrintJSONError(cmd string, err error, code int) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Error:   err.Error(),
		Code:    code,
	}
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

// ExitError carries an explicit exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// SystemError marks err as a system failure (exit 2).
func SystemError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: ExitSystemError, Err: err}
}

// ExitCode maps an error to the process exit code. Output failures are
// system errors; bad input of any kind is a user error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	var oe *errs.OutputError
	var ae *errs.ArchiveError
	var pe *os.PathError
	switch {
	case errors.As(err, &oe):
		return ExitSystemError
	case errors.As(err, &ae), errors.Is(err, merge.ErrNoData):
		return ExitUserError
	case errors.As(err, &pe):
		return ExitSystemError
	}
	return ExitUserError
}
