// Package watch provides the "sheetmerge watch" CLI commands for folder monitoring.
package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/cmd/cmdutil"
	"github.com/klytics/sheetmerge/internal/config"
	"github.com/klytics/sheetmerge/internal/output"
	"github.com/klytics/sheetmerge/internal/pipeline"
	"github.com/klytics/sheetmerge/internal/profile"
	w "github.com/klytics/sheetmerge/internal/watch"
)

// NewCommand creates the "watch" command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Merge archives dropped into profile watch folders",
		Long: `Watch the folders of every profile with auto processing enabled. Each new
or modified .zip is merged with the profile's column patterns and written to
<output folder>/<archive name>_merged.xlsx (next to the archive by default).

Example:
  sheetmerge profile add-watch monthly ./incoming --auto
  sheetmerge watch start
  sheetmerge watch status
  sheetmerge watch stop`,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func newStartCmd() *cobra.Command {
	var (
		only      []string
		recursive bool
		debounce  int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start watching the auto-process profiles' folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := cmdutil.Setup(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			manager, err := env.Profiles()
			if err != nil {
				return err
			}
			profiles := filterProfiles(manager.AutoProcess(), only)
			byName := make(map[string]*profile.Profile, len(profiles))
			for _, p := range profiles {
				byName[p.Name] = p
			}

			if !cmd.Flags().Changed("recursive") {
				recursive = env.Config.Watch.Recursive
			}
			if !cmd.Flags().Changed("debounce") {
				debounce = env.Config.Watch.DebounceMS
			}
			cfg := w.WatchConfig{
				Rules:     w.RulesFromProfiles(profiles),
				Recursive: recursive,
				Debounce:  debounce,
			}

			watcher, err := w.New(cfg)
			if err != nil {
				return err
			}
			watcher.Logger = env.Logger

			runner := env.Runner()
			out := cmd.OutOrStdout()
			watcher.Handler = func(ctx context.Context, path string, rule w.Rule) (string, error) {
				res, err := runner.Run(ctx, pipeline.Job{
					Archive: path,
					Output:  w.OutputFor(rule, path),
					Trigger: "watch",
					Profile: byName[rule.ID],
				})
				if err != nil {
					fmt.Fprintf(out, "[%s] %s: %v\n", rule.ID, path, err)
					return "", err
				}
				fmt.Fprintf(out, "[%s] %s → %s (%d sheets)\n", rule.ID, path, res.Report.Output, len(res.Report.Sheets))
				return res.Report.Output, nil
			}

			stateDir := config.Dir()
			if err := w.WritePIDFile(stateDir); err != nil {
				env.Logger.Warn("could not write PID file", zap.Error(err))
			}
			defer w.RemovePIDFile(stateDir)
			if err := w.SaveConfig(stateDir, cfg); err != nil {
				env.Logger.Warn("could not save watch config", zap.Error(err))
			}

			fmt.Fprintf(out, "Watching %d folder(s) for %d profile(s): %s\n",
				len(cfg.Directories()), len(profiles), strings.Join(cfg.Directories(), ", "))
			fmt.Fprintln(out, "Press Ctrl+C to stop")

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			err = watcher.Start(ctx)
			fmt.Fprintln(out, "\nStopped watcher")
			return err
		},
	}

	cmd.Flags().StringSliceVar(&only, "profile", nil, "Only watch for these profiles")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Watch folders recursively (default from watch.recursive)")
	cmd.Flags().IntVar(&debounce, "debounce", 500, "Debounce interval in milliseconds (default from watch.debounce_ms)")

	return cmd
}

func filterProfiles(profiles []*profile.Profile, only []string) []*profile.Profile {
	if len(only) == 0 {
		return profiles
	}
	want := make(map[string]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	var out []*profile.Profile
	for _, p := range profiles {
		if want[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir := config.Dir()
			pid, err := w.ReadPIDFile(stateDir)
			if err != nil {
				return fmt.Errorf("no watcher running (PID file not found)")
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("could not find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				w.RemovePIDFile(stateDir)
				return fmt.Errorf("could not stop watcher (PID %d): %w", pid, err)
			}

			w.RemovePIDFile(stateDir)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON("watch stop", map[string]any{
					"stopped": true,
					"pid":     pid,
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watcher (PID %d)\n", pid)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current watcher status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir := config.Dir()

			pid, err := w.ReadPIDFile(stateDir)
			running := err == nil

			// Check if process is actually running
			if running {
				process, err := os.FindProcess(pid)
				if err != nil {
					running = false
				} else if err := process.Signal(syscall.Signal(0)); err != nil {
					running = false
					w.RemovePIDFile(stateDir)
				}
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if !running {
				if jsonOut {
					return output.PrintJSON("watch status", w.Status{Running: false})
				}
				fmt.Fprintln(out, "Watcher is not running")
				return nil
			}

			status := w.Status{Running: true, PID: pid}
			cfg, _ := w.LoadConfig(stateDir)
			if cfg != nil {
				status.Directories = cfg.Directories()
				status.Rules = len(cfg.Rules)
			}

			if jsonOut {
				return output.PrintJSON("watch status", status)
			}

			fmt.Fprintf(out, "Watcher is running (PID %d)\n", pid)
			if cfg != nil {
				fmt.Fprintf(out, "  Folders:   %s\n", strings.Join(status.Directories, ", "))
				fmt.Fprintf(out, "  Rules:     %d\n", status.Rules)
				fmt.Fprintf(out, "  Recursive: %v\n", cfg.Recursive)
				for _, r := range cfg.Rules {
					fmt.Fprintf(out, "    [%s] %s → %s\n", r.ID, r.Folder, outputLabel(r))
				}
			}
			return nil
		},
	}
}

func outputLabel(r w.Rule) string {
	if r.Output == "" {
		return "(next to archive)"
	}
	return r.Output
}
