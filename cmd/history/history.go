// Package history provides the "sheetmerge history" commands for the run log.
package history

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/sheetmerge/cmd/cmdutil"
	hist "github.com/klytics/sheetmerge/internal/history"
)

// NewCommand creates the "history" command. Without a subcommand it lists runs.
func NewCommand() *cobra.Command {
	var (
		limit   int
		since   string
		trigger string
		status  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past merge runs",
		Long: `List recent runs from the CLI, the watcher and the API, newest first.

Example:
  sheetmerge history --limit 5
  sheetmerge history --since 2024-06-01 --trigger watch
  sheetmerge history clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			path := env.Config.History.File
			entries, err := hist.ReadEntries(path)
			if err != nil {
				return fmt.Errorf("could not read history: %w", err)
			}

			var sinceTime time.Time
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date: %w (use YYYY-MM-DD)", err)
				}
				sinceTime = t
			}

			filtered := hist.Last(hist.Filter(entries, sinceTime, trigger, status), limit)

			return env.Print("history", filtered, func() {
				out := cmd.OutOrStdout()
				if len(filtered) == 0 {
					fmt.Fprintln(out, "No runs recorded.")
					return
				}

				fmt.Fprintf(out, "History: %d run(s)\n", len(filtered))
				fmt.Fprintf(out, "File: %s\n\n", path)

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "TIMESTAMP\tTRIGGER\tSOURCE\tSHEETS\tDURATION\tSTATUS\n")
				for _, e := range filtered {
					ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
					dur := fmt.Sprintf("%dms", e.DurationMs)
					if e.DurationMs >= 1000 {
						dur = fmt.Sprintf("%.1fs", float64(e.DurationMs)/1000)
					}
					st := e.Status
					if e.Error != "" {
						st += ": " + truncate(e.Error, 60)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", ts, e.Trigger, filepath.Base(e.Source), e.Sheets, dur, st)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Show the newest N runs (0 for all)")
	cmd.Flags().StringVar(&since, "since", "", "Only runs since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Filter by trigger: cli, watch, serve")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: ok, error")

	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			path := env.Config.History.File
			if err := hist.Clear(path); err != nil {
				return err
			}
			return env.Print("history clear", map[string]string{"cleared": path}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "History cleared: %s\n", path)
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show history file path and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			path := env.Config.History.File
			size := hist.Size(path)
			data := map[string]interface{}{
				"path":    path,
				"size":    size,
				"enabled": env.Config.History.Enabled,
			}
			return env.Print("history status", data, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "History file: %s\n", path)
				fmt.Fprintf(out, "Size:         %s\n", formatSize(size))
				fmt.Fprintf(out, "Enabled:      %v\n", env.Config.History.Enabled)
			})
		},
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func formatSize(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
