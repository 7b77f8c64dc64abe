package errs

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"archive", &ArchiveError{Path: "a.zip", Reason: "not a zip"}, true},
		{"output", &OutputError{Path: "out.xlsx", Err: io.ErrClosedPipe}, true},
		{"wrapped output", fmt.Errorf("run: %w", &OutputError{Path: "x"}), true},
		{"workbook", &WorkbookReadError{File: "a.xlsx", Err: io.ErrUnexpectedEOF}, false},
		{"selection", &SelectionError{Input: "9", Reason: "out of range"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("%s: IsFatal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	err := &WorkbookReadError{File: "a.xlsx", Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("WorkbookReadError should unwrap to its cause")
	}

	ae := &ArchiveError{Path: "a.zip", Reason: "not a valid ZIP file", Err: io.ErrUnexpectedEOF}
	if !errors.Is(ae, io.ErrUnexpectedEOF) {
		t.Error("ArchiveError should unwrap to its cause")
	}
	if !strings.Contains(ae.Error(), "not a valid ZIP file") {
		t.Errorf("unexpected message: %s", ae.Error())
	}
}

func TestSelectionErrorMessage(t *testing.T) {
	err := &SelectionError{Input: "7", Reason: "column 7 is out of range (1-3)"}
	if !strings.Contains(err.Error(), `"7"`) {
		t.Errorf("message should quote input: %s", err.Error())
	}

	err = &SelectionError{Reason: "empty"}
	if err.Error() != "invalid selection: empty" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
