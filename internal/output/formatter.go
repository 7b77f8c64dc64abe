// Package output provides formatting utilities for CLI output.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Format represents an output format.
type Format int

const (
	// FormatText is plain text output.
	FormatText Format = iota
	// FormatJSON is JSON output.
	FormatJSON
)

// Writer handles formatted output to a destination.
type Writer struct {
	dest   io.Writer
	format Format
}

// NewWriter creates a new output writer on stdout.
func NewWriter(format Format) *Writer {
	return NewWriterTo(os.Stdout, format)
}

// NewWriterTo creates a writer on dest.
func NewWriterTo(dest io.Writer, format Format) *Writer {
	return &Writer{dest: dest, format: format}
}

// Format returns the writer's format.
func (w *Writer) Format() Format { return w.format }

// WriteJSON encodes a value as pretty-printed JSON.
func (w *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(w.dest)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteText writes plain text.
func (w *Writer) WriteText(s string) error {
	_, err := fmt.Fprint(w.dest, s)
	return err
}

// WriteLn writes a line of text.
func (w *Writer) WriteLn(s string) error {
	_, err := fmt.Fprintln(w.dest, s)
	return err
}

// WriteTable writes tab-aligned columns under a header row.
func (w *Writer) WriteTable(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w.dest, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteError writes an error message to stderr.
func WriteError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
