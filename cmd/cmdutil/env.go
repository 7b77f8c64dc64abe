// Package cmdutil holds the setup shared by the sheetmerge commands: loaded
// configuration, the logger, the run history and the profile store.
package cmdutil

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/config"
	"github.com/klytics/sheetmerge/internal/history"
	"github.com/klytics/sheetmerge/internal/logging"
	"github.com/klytics/sheetmerge/internal/merge"
	"github.com/klytics/sheetmerge/internal/output"
	"github.com/klytics/sheetmerge/internal/pipeline"
	"github.com/klytics/sheetmerge/internal/profile"
)

// Env is what a command needs to run.
type Env struct {
	Config  *config.Config
	Logger  *zap.Logger
	History *history.Log
	JSON    bool
	Verbose bool
}

// Setup loads configuration and builds the logger from the global flags.
func Setup(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if jsonOut {
		// progress bars read this
		os.Setenv("SHEETMERGE_JSON", "true")
	}
	if !cfg.Output.Color {
		color.NoColor = true
	}

	logger, err := logging.New(verbose, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return &Env{
		Config:  cfg,
		Logger:  logger,
		History: history.New(cfg.History.File, cfg.History.Enabled),
		JSON:    jsonOut,
		Verbose: verbose,
	}, nil
}

// Profiles opens the profile store.
func (e *Env) Profiles() (*profile.Manager, error) {
	return profile.NewManager(e.Config.ProfilesDir, e.Logger)
}

// Options returns the merge options from configuration.
func (e *Env) Options() merge.Options {
	return merge.Options{
		PreviewRows:   e.Config.PreviewRows,
		TempDir:       e.Config.TempDir,
		MaxEntryBytes: e.Config.MaxEntryBytes(),
		Logger:        e.Logger,
	}
}

// Runner returns a pipeline runner with the configured options and history.
func (e *Env) Runner() *pipeline.Runner {
	return &pipeline.Runner{
		Options: e.Options(),
		History: e.History,
		Logger:  e.Logger,
	}
}

// Print writes data as a JSON envelope with --json, otherwise calls text.
func (e *Env) Print(command string, data interface{}, text func()) error {
	if e.JSON {
		return output.PrintJSON(command, data)
	}
	text()
	return nil
}

// Close flushes the logger.
func (e *Env) Close() {
	if e.Logger != nil {
		e.Logger.Sync()
	}
}
