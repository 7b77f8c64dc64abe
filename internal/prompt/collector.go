package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/klytics/sheetmerge/internal/merge"
)

// Target is what the collector selects columns on.
type Target interface {
	Sources() []*merge.Source
	SetSelection(file, sheet string, columns []int) error
	Selection() merge.Selection
}

// Collector walks every sheet and asks which columns to keep.
type Collector struct {
	Prompter Prompter
	Out      io.Writer
	// Preview controls whether preview rows are shown above the column list.
	Preview bool
}

// Collect prompts for each (file, sheet) in order. Existing selections are
// shown and extended. EOF ends collection early and keeps what was chosen.
func (c *Collector) Collect(t Target) error {
	bold := color.New(color.Bold)
	heading := color.New(color.Bold, color.FgCyan)
	dim := color.New(color.FgHiBlack)
	red := color.New(color.FgRed)

	for _, src := range t.Sources() {
		for _, sh := range src.Sheets {
			fmt.Fprintln(c.Out)
			heading.Fprintf(c.Out, "%s / %s", src.Name, sh.Name)
			dim.Fprintf(c.Out, "  (%d rows)\n", sh.Rows)
			if c.Preview && len(sh.Preview) > 0 {
				c.printPreview(sh)
			}
			for i, col := range sh.Columns {
				fmt.Fprintf(c.Out, "  %s %s\n", bold.Sprintf("%3d.", i+1), col)
			}
			dim.Fprintln(c.Out, "  numbers or ranges (1,3,5-7), all, none; empty line or done to continue")

			picked := t.Selection().Get(src.Name, sh.Name)
			for {
				if len(picked) > 0 {
					dim.Fprintf(c.Out, "  selected: %s\n", columnNames(sh.Columns, picked))
				}
				line, err := c.Prompter.ReadLine("columns> ")
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				entry, err := ParseEntry(line, len(sh.Columns))
				if err != nil {
					red.Fprintf(c.Out, "  %s\n", err)
					continue
				}

				switch entry.Action {
				case ActionDone:
				case ActionAll:
					picked = allColumns(len(sh.Columns))
				case ActionNone:
					picked = nil
				case ActionAdd:
					picked = append(picked, entry.Columns...)
				}
				if err := t.SetSelection(src.Name, sh.Name, picked); err != nil {
					return err
				}
				picked = t.Selection().Get(src.Name, sh.Name)
				if entry.Action == ActionDone {
					break
				}
			}
		}
	}
	return nil
}

func (c *Collector) printPreview(sh merge.SheetPreview) {
	tw := tabwriter.NewWriter(c.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  "+strings.Join(sh.Columns, "\t"))
	for _, row := range sh.Preview {
		fmt.Fprintln(tw, "  "+strings.Join(row, "\t"))
	}
	tw.Flush()
	fmt.Fprintln(c.Out)
}

func allColumns(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func columnNames(headers []string, cols []int) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = headers[c]
	}
	return strings.Join(names, ", ")
}
