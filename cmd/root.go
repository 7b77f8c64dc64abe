// Package cmd contains all CLI commands for the sheetmerge binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetmerge/cmd/completion"
	cmdconfig "github.com/klytics/sheetmerge/cmd/config"
	"github.com/klytics/sheetmerge/cmd/doctor"
	"github.com/klytics/sheetmerge/cmd/history"
	"github.com/klytics/sheetmerge/cmd/inspect"
	cmdprofile "github.com/klytics/sheetmerge/cmd/profile"
	"github.com/klytics/sheetmerge/cmd/serve"
	"github.com/klytics/sheetmerge/cmd/version"
	cmdwatch "github.com/klytics/sheetmerge/cmd/watch"
	"github.com/klytics/sheetmerge/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := newMergeCommand()
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")

	rootCmd.AddCommand(inspect.NewCommand())
	rootCmd.AddCommand(cmdprofile.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(history.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and exits with 1 for user errors and 2 for
// system errors.
func Execute() {
	rootCmd := NewRootCommand()
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return
	}

	code := output.ExitCode(err)
	if jsonOutput {
		output.PrintJSONError(cmd.CommandPath(), err, code)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(code)
}
