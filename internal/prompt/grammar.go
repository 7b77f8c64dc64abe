package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/klytics/sheetmerge/internal/errs"
)

// Action is what a single line of selection input asks for.
type Action int

const (
	// ActionAdd appends Columns to the current selection.
	ActionAdd Action = iota
	// ActionAll selects every column.
	ActionAll
	// ActionNone clears the selection.
	ActionNone
	// ActionDone finishes the sheet.
	ActionDone
)

// Entry is a parsed line of input.
type Entry struct {
	Action  Action
	Columns []int // zero-based, in input order
}

// ParseEntry parses one line against a sheet with width columns. Numbers are
// 1-based; "2-4" is an inclusive range. The whole line is rejected if any
// token is invalid.
func ParseEntry(line string, width int) (Entry, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "", "done", "d":
		return Entry{Action: ActionDone}, nil
	case "all", "a", "*":
		return Entry{Action: ActionAll}, nil
	case "none", "n", "clear":
		return Entry{Action: ActionNone}, nil
	}

	var cols []int
	for _, tok := range strings.Split(line, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		picked, err := parseToken(tok, width)
		if err != nil {
			return Entry{}, err
		}
		cols = append(cols, picked...)
	}
	if len(cols) == 0 {
		return Entry{}, &errs.SelectionError{Input: line, Reason: "no column numbers given"}
	}
	return Entry{Action: ActionAdd, Columns: cols}, nil
}

func parseToken(tok string, width int) ([]int, error) {
	lo, hi, isRange := strings.Cut(tok, "-")
	if !isRange {
		n, err := parseColumn(tok, width)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}

	from, err := parseColumn(strings.TrimSpace(lo), width)
	if err != nil {
		return nil, err
	}
	to, err := parseColumn(strings.TrimSpace(hi), width)
	if err != nil {
		return nil, err
	}
	if from > to {
		return nil, &errs.SelectionError{Input: tok, Reason: "range start is after its end"}
	}
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out, nil
}

func parseColumn(s string, width int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &errs.SelectionError{Input: s, Reason: "not a column number"}
	}
	if n < 1 || n > width {
		return 0, &errs.SelectionError{Input: s, Reason: fmt.Sprintf("out of range (1-%d)", width)}
	}
	return n - 1, nil
}
