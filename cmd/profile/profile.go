// Package profile provides the "sheetmerge profile" commands.
package profile

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/klytics/sheetmerge/cmd/cmdutil"
	"github.com/klytics/sheetmerge/internal/output"
	p "github.com/klytics/sheetmerge/internal/profile"
)

// NewCommand returns the profile command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved column selections",
		Long: `Profiles store column selections by pattern, watch folders and an output
folder. Patterns are either file:<glob>|sheet:<glob> or a bare sheet glob.

Example:
  sheetmerge profile create monthly
  sheetmerge profile add-pattern monthly "Q*" Region,Amount
  sheetmerge profile add-pattern monthly "file:staff*.xlsx|sheet:People" Name
  sheetmerge profile default monthly`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newDefaultCmd())
	cmd.AddCommand(newAddPatternCmd())
	cmd.AddCommand(newRemovePatternCmd())
	cmd.AddCommand(newAddWatchCmd())
	cmd.AddCommand(newRemoveWatchCmd())
	cmd.AddCommand(newSetCmd())

	return cmd
}

func open(cmd *cobra.Command) (*cmdutil.Env, *p.Manager, error) {
	env, err := cmdutil.Setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	m, err := env.Profiles()
	if err != nil {
		return nil, nil, err
	}
	return env, m, nil
}

// update loads a profile, applies fn and saves it.
func update(cmd *cobra.Command, name string, fn func(*p.Profile) error) (*cmdutil.Env, *p.Profile, error) {
	env, m, err := open(cmd)
	if err != nil {
		return nil, nil, err
	}
	prof, err := m.Get(name)
	if err != nil {
		return nil, nil, err
	}
	if err := fn(prof); err != nil {
		return nil, nil, err
	}
	if err := m.Save(prof); err != nil {
		return nil, nil, err
	}
	return env, prof, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, m, err := open(cmd)
			if err != nil {
				return err
			}
			profiles := m.List()
			def := m.DefaultName()

			return env.Print("profile list", map[string]interface{}{"profiles": profiles, "default": def}, func() {
				out := cmd.OutOrStdout()
				if len(profiles) == 0 {
					fmt.Fprintln(out, "No profiles yet; create one with 'sheetmerge profile create <name>'")
					return
				}
				rows := make([][]string, len(profiles))
				for i, prof := range profiles {
					name := prof.Name
					if name == def {
						name += " *"
					}
					rows[i] = []string{
						name,
						strconv.Itoa(len(prof.ColumnPatterns)),
						strconv.Itoa(len(prof.WatchFolders)),
						strconv.FormatBool(prof.AutoProcess),
					}
				}
				output.NewWriterTo(out, output.FormatText).WriteTable(
					[]string{"NAME", "PATTERNS", "WATCH FOLDERS", "AUTO"}, rows)
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, m, err := open(cmd)
			if err != nil {
				return err
			}
			prof, err := m.Get(args[0])
			if err != nil {
				return err
			}
			if env.JSON {
				return output.PrintJSON("profile show", prof)
			}
			data, err := yaml.Marshal(prof)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, m, err := open(cmd)
			if err != nil {
				return err
			}
			prof, err := m.Create(args[0])
			if err != nil {
				return err
			}
			return env.Print("profile create", prof, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Created profile %q\n", prof.Name)
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, m, err := open(cmd)
			if err != nil {
				return err
			}
			if err := m.Delete(args[0]); err != nil {
				return err
			}
			return env.Print("profile delete", map[string]string{"deleted": args[0]}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %q\n", args[0])
			})
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, m, err := open(cmd)
			if err != nil {
				return err
			}
			if err := m.Rename(args[0], args[1]); err != nil {
				return err
			}
			return env.Print("profile rename", map[string]string{"from": args[0], "to": args[1]}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed profile %q to %q\n", args[0], args[1])
			})
		},
	}
}

func newDefaultCmd() *cobra.Command {
	var clearDefault bool
	cmd := &cobra.Command{
		Use:   "default [name]",
		Short: "Show or set the profile applied when --profile is not given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, m, err := open(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case clearDefault:
				if err := m.SetDefault(""); err != nil {
					return err
				}
			case len(args) == 1:
				if err := m.SetDefault(args[0]); err != nil {
					return err
				}
			}
			def := m.DefaultName()
			return env.Print("profile default", map[string]string{"default": def}, func() {
				if def == "" {
					fmt.Fprintln(out, "No default profile")
					return
				}
				fmt.Fprintf(out, "Default profile: %s\n", def)
			})
		},
	}
	cmd.Flags().BoolVar(&clearDefault, "clear", false, "Clear the default profile")
	return cmd
}

func newAddPatternCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-pattern <name> <pattern> <column[,column...]>",
		Short: "Add columns for every sheet a pattern matches",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols := splitList(args[2])
			if len(cols) == 0 {
				return fmt.Errorf("no columns given")
			}
			env, prof, err := update(cmd, args[0], func(prof *p.Profile) error {
				prof.AddColumnPattern(args[1], cols)
				return nil
			})
			if err != nil {
				return err
			}
			return env.Print("profile add-pattern", prof, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d column(s) for %q to profile %q\n", len(cols), args[1], prof.Name)
			})
		},
	}
}

func newRemovePatternCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-pattern <name> <pattern>",
		Short: "Remove a column pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, prof, err := update(cmd, args[0], func(prof *p.Profile) error {
				if !prof.RemoveColumnPattern(args[1]) {
					return fmt.Errorf("profile %q has no pattern %q", prof.Name, args[1])
				}
				return nil
			})
			if err != nil {
				return err
			}
			return env.Print("profile remove-pattern", prof, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed pattern %q from profile %q\n", args[1], prof.Name)
			})
		},
	}
}

func newAddWatchCmd() *cobra.Command {
	var auto bool
	cmd := &cobra.Command{
		Use:   "add-watch <name> <folder>",
		Short: "Add a folder watched for new archives",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			env, prof, err := update(cmd, args[0], func(prof *p.Profile) error {
				prof.AddWatchFolder(folder)
				if auto {
					prof.AutoProcess = true
				}
				return nil
			})
			if err != nil {
				return err
			}
			return env.Print("profile add-watch", prof, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Profile %q now watches %s\n", prof.Name, folder)
				if !prof.AutoProcess {
					color.New(color.FgYellow).Fprintf(out, "Auto processing is off; enable it with 'sheetmerge profile set %s auto_process true'\n", prof.Name)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "Also enable auto processing")
	return cmd
}

func newRemoveWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-watch <name> <folder>",
		Short: "Stop watching a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, prof, err := update(cmd, args[0], func(prof *p.Profile) error {
				folder := args[1]
				if prof.RemoveWatchFolder(folder) {
					return nil
				}
				if abs, err := filepath.Abs(folder); err == nil && prof.RemoveWatchFolder(abs) {
					return nil
				}
				return fmt.Errorf("profile %q does not watch %s", prof.Name, folder)
			})
			if err != nil {
				return err
			}
			return env.Print("profile remove-watch", prof, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Profile %q no longer watches %s\n", prof.Name, args[1])
			})
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <key> <value>",
		Short: "Set output_folder or auto_process",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[1], args[2]
			env, prof, err := update(cmd, args[0], func(prof *p.Profile) error {
				return set(prof, key, value)
			})
			if err != nil {
				return err
			}
			return env.Print("profile set", prof, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s on profile %q\n", key, value, prof.Name)
			})
		},
	}
}

func set(prof *p.Profile, key, value string) error {
	switch key {
	case "output_folder":
		if value == "" {
			prof.OutputFolder = ""
			return nil
		}
		abs, err := filepath.Abs(value)
		if err != nil {
			return err
		}
		prof.OutputFolder = abs
	case "auto_process":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("auto_process must be true or false, got %q", value)
		}
		prof.AutoProcess = b
	default:
		return fmt.Errorf("unknown profile key %q — use output_folder or auto_process", key)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
