package completion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func testRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "sheetmerge"}
	root.AddCommand(&cobra.Command{Use: "inspect", Short: "Inspect an archive"})
	root.AddCommand(&cobra.Command{Use: "profile", Short: "Manage profiles"})
	return root
}

func run(t *testing.T, shell string) string {
	t.Helper()
	root := testRootCmd()
	root.AddCommand(NewCommand(root))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", shell})
	if err := root.Execute(); err != nil {
		t.Fatalf("completion %s: %v", shell, err)
	}
	return buf.String()
}

func TestCompletionScripts(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "_sheetmerge"},
		{"zsh", "compdef"},
		{"fish", "complete -c sheetmerge"},
		{"powershell", "sheetmerge"},
	}
	for _, tt := range tests {
		out := run(t, tt.shell)
		if !strings.Contains(out, tt.want) {
			t.Errorf("%s completion should contain %q", tt.shell, tt.want)
		}
		if !strings.HasPrefix(out, "# sheetmerge") {
			t.Errorf("%s completion should start with the install header", tt.shell)
		}
	}
}

func TestCompletionUnsupportedShell(t *testing.T) {
	root := testRootCmd()
	root.AddCommand(NewCommand(root))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
