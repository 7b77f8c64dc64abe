package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetmerge/cmd/cmdutil"
	"github.com/klytics/sheetmerge/internal/config"
	"github.com/klytics/sheetmerge/internal/merge"
	"github.com/klytics/sheetmerge/internal/output"
	"github.com/klytics/sheetmerge/internal/pipeline"
	"github.com/klytics/sheetmerge/internal/profile"
	"github.com/klytics/sheetmerge/internal/progress"
	"github.com/klytics/sheetmerge/internal/prompt"
)

type mergeFlags struct {
	selects     []string
	all         bool
	profileName string
	noProfile   bool
	saveProfile string
	previewRows int
	noPrompt    bool
}

func newMergeCommand() *cobra.Command {
	var f mergeFlags

	cmd := &cobra.Command{
		Use:   "sheetmerge <zip_path> <output_path>",
		Short: "Pick columns from the spreadsheets in a ZIP archive and merge them into one workbook",
		Long: `sheetmerge extracts every .xlsx and .xls file from a ZIP archive, asks which
columns to keep from each sheet and writes them to a single workbook with one
sheet per selection plus a Summary sheet.

Columns are chosen interactively unless --select, --all or --no-prompt is given.
A saved profile (--profile, or the default profile) preselects columns first.

Examples:
  sheetmerge reports.zip merged.xlsx
  sheetmerge reports.zip merged.xlsx --select "sales.xlsx:Q1=1,3-4" --select "staff.xlsx:People=all"
  sheetmerge reports.zip merged.xlsx --all
  sheetmerge reports.zip merged.xlsx --profile monthly --no-prompt
  sheetmerge reports.zip merged.xlsx --save-profile monthly`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, args[0], args[1], f)
		},
	}

	cmd.Flags().StringArrayVar(&f.selects, "select", nil, "Columns for one sheet as file:sheet=columns (repeatable)")
	cmd.Flags().BoolVar(&f.all, "all", false, "Select every column of every sheet")
	cmd.Flags().StringVar(&f.profileName, "profile", "", "Apply a saved profile before selecting")
	cmd.Flags().BoolVar(&f.noProfile, "no-profile", false, "Do not apply the default profile")
	cmd.Flags().StringVar(&f.saveProfile, "save-profile", "", "Save the final selection as a profile")
	cmd.Flags().IntVar(&f.previewRows, "preview-rows", -1, "Data rows shown per sheet while selecting (0 hides the preview)")
	cmd.Flags().BoolVar(&f.noPrompt, "no-prompt", false, "Never ask; use only the profile and --select")

	return cmd
}

func runMerge(cmd *cobra.Command, zipPath, outPath string, f mergeFlags) error {
	env, err := cmdutil.Setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	manager, err := env.Profiles()
	if err != nil {
		return err
	}
	p, err := pickProfile(manager, f)
	if err != nil {
		return err
	}

	selects := make([]pipeline.Select, 0, len(f.selects))
	for _, s := range f.selects {
		sel, err := pipeline.ParseSelect(s)
		if err != nil {
			return err
		}
		selects = append(selects, sel)
	}

	runner := env.Runner()
	preview := env.Config.PreviewRows
	if f.previewRows >= 0 {
		preview = f.previewRows
	}
	if preview > 0 {
		runner.Options.PreviewRows = preview
	}

	bar := progress.New("Reading", 0)
	runner.Options.OnFile = bar.FileCallback()
	outFile := resolveOutput(env.Config, outPath)
	writing := progress.NewSpinner("Writing " + outFile)

	out := cmd.OutOrStdout()
	job := pipeline.Job{
		Archive:   zipPath,
		Output:    outFile,
		Trigger:   "cli",
		Profile:   p,
		Selects:   selects,
		SelectAll: f.all,
	}

	interactive := !f.noPrompt && !f.all && len(selects) == 0 && !env.JSON
	if interactive {
		job.Interact = func(s *merge.Session) error {
			bar.Finish(fmt.Sprintf("Read %d workbook(s)", len(s.Sources())))
			printSkipped(out, s.Skipped())
			prompter, err := newPrompter(cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			defer prompter.Close()
			c := &prompt.Collector{Prompter: prompter, Out: out, Preview: preview > 0}
			return c.Collect(s)
		}
	}
	job.OnSelected = func(s *merge.Session) error {
		bar.Finish(fmt.Sprintf("Read %d workbook(s)", len(s.Sources())))
		if f.saveProfile != "" {
			if err := saveProfile(manager, f.saveProfile, s, out, env.JSON); err != nil {
				return err
			}
		}
		writing.Start()
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := runner.Run(ctx, job)
	if err != nil {
		bar.Clear()
		writing.Clear()
		return err
	}
	writing.Stop(fmt.Sprintf("Merged %d sheet(s)", len(res.Report.Sheets)))

	return env.Print("sheetmerge", res, func() {
		printReport(out, res, !interactive)
	})
}

// pickProfile returns the --profile profile, else the default one unless
// --no-profile is set. No profile at all is fine.
func pickProfile(m *profile.Manager, f mergeFlags) (*profile.Profile, error) {
	if f.profileName != "" {
		return m.Get(f.profileName)
	}
	if f.noProfile {
		return nil, nil
	}
	return m.Default(), nil
}

func saveProfile(m *profile.Manager, name string, s *merge.Session, out io.Writer, quiet bool) error {
	p, err := m.Get(name)
	if err != nil {
		p = profile.New(name)
	}
	n := p.Capture(s)
	if err := m.Save(p); err != nil {
		return fmt.Errorf("could not save profile %q: %w", name, err)
	}
	if !quiet {
		fmt.Fprintf(out, "Saved %d sheet selection(s) to profile %q\n", n, p.Name)
	}
	return nil
}

// resolveOutput puts a bare file name into output.dir when one is configured.
func resolveOutput(cfg *config.Config, path string) string {
	if cfg.Output.Dir == "" || filepath.IsAbs(path) || strings.ContainsRune(path, filepath.Separator) {
		return path
	}
	return filepath.Join(cfg.Output.Dir, path)
}

func newPrompter(in io.Reader, out io.Writer) (prompt.Prompter, error) {
	if f, ok := in.(*os.File); ok && prompt.IsTerminal(f) {
		rl, err := prompt.NewReadline(filepath.Join(config.Dir(), "prompt_history"))
		if err != nil {
			return nil, err
		}
		return rl, nil
	}
	return prompt.NewScanner(in, out), nil
}

func printSkipped(out io.Writer, skipped []merge.Skip) {
	warn := color.New(color.FgYellow)
	for _, sk := range skipped {
		warn.Fprintf(out, "Skipped %s: %s\n", sk.File, sk.Reason)
	}
}

func printReport(out io.Writer, res *pipeline.Result, withSkips bool) {
	report := res.Report
	if withSkips {
		printSkipped(out, report.Skipped)
	}
	for _, m := range res.Missing {
		color.New(color.FgYellow).Fprintf(out, "Profile column %q not found in %s / %s\n", m.Column, m.File, m.Sheet)
	}
	if report.Converted() {
		fmt.Fprintf(out, "Output written as .xlsx: %s\n", report.Output)
	}

	fmt.Fprintln(out)
	if len(report.Sheets) == 0 {
		color.New(color.FgYellow).Fprintln(out, "No columns selected; wrote the summary sheet only")
	} else {
		rows := make([][]string, len(report.Sheets))
		for i, sh := range report.Sheets {
			rows[i] = []string{sh.Name, sh.File, sh.Sheet, fmt.Sprint(len(sh.Columns)), fmt.Sprint(sh.Rows)}
		}
		output.NewWriterTo(out, output.FormatText).WriteTable(
			[]string{"OUTPUT SHEET", "FILE", "SHEET", "COLUMNS", "ROWS"}, rows)
	}
	color.New(color.FgGreen).Fprintf(out, "\n✓ Wrote %s\n", report.Output)
}
