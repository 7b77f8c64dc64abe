// Package inspect provides the "sheetmerge inspect" command.
package inspect

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetmerge/cmd/cmdutil"
	"github.com/klytics/sheetmerge/internal/merge"
	"github.com/klytics/sheetmerge/internal/output"
)

// Result is the JSON shape of an inspection.
type Result struct {
	Archive string          `json:"archive"`
	Files   []*merge.Source `json:"files"`
	Skipped []merge.Skip    `json:"skipped,omitempty"`
}

// NewCommand returns the inspect command.
func NewCommand() *cobra.Command {
	var preview bool

	cmd := &cobra.Command{
		Use:   "inspect <zip_path>",
		Short: "List the workbooks, sheets and columns of an archive",
		Long: `Extract an archive and show every readable workbook with its sheets,
column headers and row counts, plus the files that were skipped.

Example:
  sheetmerge inspect reports.zip
  sheetmerge inspect reports.zip --preview
  sheetmerge inspect reports.zip --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			s, err := merge.Open(context.Background(), args[0], env.Options())
			if err != nil {
				return err
			}
			defer s.Close()

			res := Result{Archive: args[0], Files: s.Sources(), Skipped: s.Skipped()}
			return env.Print("inspect", res, func() {
				Print(cmd.OutOrStdout(), res, preview)
			})
		},
	}

	cmd.Flags().BoolVar(&preview, "preview", false, "Show the first data rows of each sheet")
	return cmd
}

// Print renders an inspection as text.
func Print(out io.Writer, res Result, preview bool) {
	heading := color.New(color.Bold, color.FgCyan)
	dim := color.New(color.FgHiBlack)
	w := output.NewWriterTo(out, output.FormatText)

	for _, src := range res.Files {
		heading.Fprintf(out, "%s", src.Name)
		dim.Fprintf(out, "  (%s, %s)\n", src.Format, src.Entry)
		for _, sh := range src.Sheets {
			fmt.Fprintf(out, "  %s: %d rows, %d columns\n", sh.Name, sh.Rows, len(sh.Columns))
			fmt.Fprintf(out, "    %s\n", strings.Join(sh.Columns, ", "))
			if preview && len(sh.Preview) > 0 {
				w.WriteTable(indent(sh.Columns), indentRows(sh.Preview))
			}
		}
		fmt.Fprintln(out)
	}

	if len(res.Skipped) > 0 {
		warn := color.New(color.FgYellow)
		warn.Fprintf(out, "Skipped %d file(s):\n", len(res.Skipped))
		for _, sk := range res.Skipped {
			fmt.Fprintf(out, "  %s: %s\n", sk.File, sk.Reason)
		}
	}
}

func indent(row []string) []string {
	out := append([]string(nil), row...)
	if len(out) > 0 {
		out[0] = "    " + out[0]
	}
	return out
}

func indentRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = indent(r)
	}
	return out
}
