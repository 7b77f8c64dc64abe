// Package config provides CLI commands for configuration management.
package config

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/sheetmerge/internal/config"
	"github.com/klytics/sheetmerge/internal/output"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sheetmerge configuration",
		Long: `Interactive setup, view, and modify sheetmerge settings stored in
~/.sheetmerge/config.yaml. Every key can be overridden with an environment
variable, e.g. SHEETMERGE_PREVIEW_ROWS=10 or SHEETMERGE_SERVE_PORT=9000.`,
	}

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newResetCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			return config.Wizard(cmd.InOrStdin())
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			if _, err := config.Load(); err != nil {
				return err
			}

			if jsonFlag {
				values := make(map[string]string)
				for _, k := range config.Keys() {
					values[k] = config.Get(k)
				}
				return output.PrintJSON("config show", values)
			}

			fmt.Fprint(cmd.OutOrStdout(), config.ShowConfig())
			return nil
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a configuration value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "get <key>",
		Short:     "Get a configuration value",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			val := config.Get(args[0])
			if val == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: (not set)\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], val)
			}
			return nil
		},
	}
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ResetConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset to defaults")
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonFlag, _ := cmd.Flags().GetBool("json")
			if _, err := config.Load(); err != nil {
				return err
			}

			issues := config.Validate()

			if jsonFlag {
				return output.PrintJSON("config validate", issues)
			}

			out := cmd.OutOrStdout()
			errors := 0
			warnings := 0
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					errors++
				case "warning":
					warnings++
				}
			}

			if errors == 0 && warnings == 0 {
				color.New(color.FgGreen).Fprintln(out, "Configuration is valid")
				return nil
			}

			fmt.Fprintf(out, "Config validation: %d errors, %d warnings\n\n", errors, warnings)

			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					color.New(color.FgRed).Fprintf(out, "  %s\n", issue.Message)
				case "warning":
					color.New(color.FgYellow).Fprintf(out, "  %s\n", issue.Message)
				case "info":
					color.New(color.FgGreen).Fprintf(out, "  %s\n", issue.Message)
				}
				if issue.Fix != "" {
					fmt.Fprintf(out, "   Fix: %s\n", issue.Fix)
				}
			}
			if errors > 0 {
				return fmt.Errorf("configuration has %d error(s)", errors)
			}
			return nil
		},
	}
}
