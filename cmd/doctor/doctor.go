// Package doctor provides the "sheetmerge doctor" command for checking the local setup.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetmerge/internal/config"
	"github.com/klytics/sheetmerge/internal/output"
	"github.com/klytics/sheetmerge/internal/profile"
	"github.com/klytics/sheetmerge/internal/watch"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, folders and the watcher",
		Long:  "Run diagnostic checks to verify sheetmerge is properly configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			checks := RunChecks(cfg)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return output.PrintJSON("doctor", checks)
			}

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			fmt.Fprintln(out, "sheetmerge doctor")
			fmt.Fprintln(out, "=================")
			fmt.Fprintln(out)

			okCount, warnCount, errCount := 0, 0, 0
			for _, c := range checks {
				var icon string
				switch c.Status {
				case "ok":
					icon = green("✓")
					okCount++
				case "warning":
					icon = yellow("!")
					warnCount++
				case "error":
					icon = red("✗")
					errCount++
				}
				fmt.Fprintf(out, "  %s %s: %s\n", icon, c.Name, c.Message)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

// RunChecks inspects the configuration and the folders it points at.
func RunChecks(cfg *config.Config) []Check {
	checks := []Check{{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}

	if _, err := os.Stat(config.ConfigPath()); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: config.ConfigPath()})
	} else {
		checks = append(checks, Check{Name: "Config File", Status: "warning", Message: "Not found, using defaults — run 'sheetmerge config init'"})
	}

	for _, issue := range config.Validate() {
		if issue.Severity == "info" {
			continue
		}
		checks = append(checks, Check{Name: "Config " + issue.Key, Status: issue.Severity, Message: issue.Message})
	}

	checks = append(checks, writable("Temp Directory", tempDir(cfg)))

	if m, err := profile.NewManager(cfg.ProfilesDir, nil); err != nil {
		checks = append(checks, Check{Name: "Profiles", Status: "error", Message: err.Error()})
	} else {
		msg := fmt.Sprintf("%d profile(s) in %s", len(m.List()), m.Dir())
		if def := m.DefaultName(); def != "" {
			msg += ", default " + def
		}
		checks = append(checks, Check{Name: "Profiles", Status: "ok", Message: msg})
		for _, p := range m.AutoProcess() {
			for _, folder := range p.WatchFolders {
				if info, err := os.Stat(folder); err != nil || !info.IsDir() {
					checks = append(checks, Check{
						Name:    "Watch Folder",
						Status:  "warning",
						Message: fmt.Sprintf("%s (profile %s) does not exist", folder, p.Name),
					})
				}
			}
		}
	}

	if pid, err := watch.ReadPIDFile(config.Dir()); err == nil {
		checks = append(checks, Check{Name: "Watcher", Status: "ok", Message: fmt.Sprintf("PID file present (PID %d)", pid)})
	} else {
		checks = append(checks, Check{Name: "Watcher", Status: "ok", Message: "Not running"})
	}

	if cfg.History.Enabled {
		checks = append(checks, writable("History", filepath.Dir(cfg.History.File)))
	}

	return checks
}

func tempDir(cfg *config.Config) string {
	if cfg.TempDir != "" {
		return cfg.TempDir
	}
	return os.TempDir()
}

// writable reports whether a file can be created in dir. A missing dir is created.
func writable(name, dir string) Check {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Check{Name: name, Status: "error", Message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".sheetmerge-doctor-*")
	if err != nil {
		return Check{Name: name, Status: "error", Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return Check{Name: name, Status: "ok", Message: dir}
}
