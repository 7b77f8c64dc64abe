// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for sheetmerge.

Install instructions:
  Bash:       sheetmerge completion bash > /etc/bash_completion.d/sheetmerge
              echo 'source <(sheetmerge completion bash)' >> ~/.bashrc
  Zsh:        sheetmerge completion zsh > ~/.zsh/completions/_sheetmerge
  Fish:       sheetmerge completion fish > ~/.config/fish/completions/sheetmerge.fish
  PowerShell: sheetmerge completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				fmt.Fprintln(out, "# sheetmerge bash completion")
				fmt.Fprintln(out, "# Install: sheetmerge completion bash > /etc/bash_completion.d/sheetmerge")
				fmt.Fprintln(out)
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				fmt.Fprintln(out, "# sheetmerge zsh completion")
				fmt.Fprintln(out, "# Install: sheetmerge completion zsh > ~/.zsh/completions/_sheetmerge")
				fmt.Fprintln(out)
				return rootCmd.GenZshCompletion(out)
			case "fish":
				fmt.Fprintln(out, "# sheetmerge fish completion")
				fmt.Fprintln(out, "# Install: sheetmerge completion fish > ~/.config/fish/completions/sheetmerge.fish")
				fmt.Fprintln(out)
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				fmt.Fprintln(out, "# sheetmerge PowerShell completion")
				fmt.Fprintln(out, "# Install: sheetmerge completion powershell >> $PROFILE")
				fmt.Fprintln(out)
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", args[0])
			}
		},
	}
	return cmd
}
