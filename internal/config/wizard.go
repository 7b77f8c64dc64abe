package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix"`
}

// Wizard runs the interactive setup wizard.
// If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader) error {
	if reader == nil {
		reader = os.Stdin
	}
	scanner := bufio.NewScanner(reader)
	setDefaults()

	fmt.Println("sheetmerge setup")
	fmt.Println("Press Enter to keep the value in brackets.")
	fmt.Println()

	ask := func(label, key string) string {
		current := viper.GetString(key)
		fmt.Printf("%s [%s]: ", label, current)
		if !scanner.Scan() {
			return current
		}
		if v := strings.TrimSpace(scanner.Text()); v != "" {
			return v
		}
		return current
	}

	rows := ask("Preview rows per sheet", "preview_rows")
	if n, err := strconv.Atoi(rows); err != nil || n < 0 {
		return fmt.Errorf("preview rows must be a non-negative number, got %q", rows)
	}
	viper.Set("preview_rows", rows)
	viper.Set("output.dir", ask("Default output folder (empty for current directory)", "output.dir"))
	viper.Set("profiles_dir", ask("Profiles folder", "profiles_dir"))

	if err := SaveConfig(); err != nil {
		return err
	}
	fmt.Printf("\nSaved %s\n", ConfigPath())
	return nil
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	if n := viper.GetInt("preview_rows"); n < 0 {
		issues = append(issues, ConfigIssue{
			Key:      "preview_rows",
			Severity: "error",
			Message:  fmt.Sprintf("preview_rows is %d; must be zero or more", n),
			Fix:      "sheetmerge config set preview_rows 5",
		})
	} else if n > 50 {
		issues = append(issues, ConfigIssue{
			Key:      "preview_rows",
			Severity: "warning",
			Message:  fmt.Sprintf("preview_rows is %d; long previews make the prompt hard to read", n),
		})
	}

	if n := viper.GetInt64("max_entry_mb"); n <= 0 {
		issues = append(issues, ConfigIssue{
			Key:      "max_entry_mb",
			Severity: "error",
			Message:  "max_entry_mb must be positive",
			Fix:      "sheetmerge config set max_entry_mb 256",
		})
	}

	switch level := strings.ToLower(viper.GetString("log.level")); level {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, ConfigIssue{
			Key:      "log.level",
			Severity: "error",
			Message:  fmt.Sprintf("unknown log level %q", level),
			Fix:      "sheetmerge config set log.level warn",
		})
	}

	if port := viper.GetInt("serve.port"); port < 1 || port > 65535 {
		issues = append(issues, ConfigIssue{
			Key:      "serve.port",
			Severity: "error",
			Message:  fmt.Sprintf("serve.port %d is not a valid TCP port", port),
			Fix:      "sheetmerge config set serve.port 8765",
		})
	}

	if ms := viper.GetInt("watch.debounce_ms"); ms < 0 {
		issues = append(issues, ConfigIssue{
			Key:      "watch.debounce_ms",
			Severity: "error",
			Message:  "watch.debounce_ms must be zero or more",
		})
	}

	if dir := viper.GetString("temp_dir"); dir != "" && !isDir(expandHome(dir)) {
		issues = append(issues, ConfigIssue{
			Key:      "temp_dir",
			Severity: "error",
			Message:  fmt.Sprintf("temp_dir %s does not exist", dir),
			Fix:      "sheetmerge config set temp_dir \"\"",
		})
	}

	if dir := viper.GetString("output.dir"); dir != "" && !isDir(expandHome(dir)) {
		issues = append(issues, ConfigIssue{
			Key:      "output.dir",
			Severity: "warning",
			Message:  fmt.Sprintf("output.dir %s does not exist; relative output paths will fail", dir),
		})
	}

	if dir := expandHome(viper.GetString("profiles_dir")); isDir(dir) {
		issues = append(issues, ConfigIssue{
			Key:      "profiles_dir",
			Severity: "info",
			Message:  "profiles stored in " + dir,
		})
	} else {
		issues = append(issues, ConfigIssue{
			Key:      "profiles_dir",
			Severity: "info",
			Message:  dir + " will be created when the first profile is saved",
		})
	}

	return issues
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Keys returns every known configuration key in sorted order.
func Keys() []string {
	defaults := Defaults()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	if _, ok := Defaults()[key]; !ok {
		return fmt.Errorf("unknown config key %q — run 'sheetmerge config show' for the list", key)
	}
	setDefaults()
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// ResetConfig resets all config to defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	for key, value := range Defaults() {
		viper.Set(key, value)
	}
	return nil
}

// SaveConfig writes the current config to ~/.sheetmerge/config.yaml.
func SaveConfig() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	os.Chmod(path, 0600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ShowConfig returns a formatted string of the current configuration.
func ShowConfig() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Config: %s\n\n", ConfigPath()))

	groups := []struct {
		title string
		keys  []string
	}{
		{"Extraction", []string{"preview_rows", "temp_dir", "max_entry_mb"}},
		{"Profiles", []string{"profiles_dir"}},
		{"Output", []string{"output.dir", "output.color"}},
		{"Logging", []string{"log.level", "history.enabled", "history.file"}},
		{"Watch", []string{"watch.debounce_ms", "watch.recursive"}},
		{"Server", []string{"serve.host", "serve.port", "serve.max_upload_mb"}},
	}
	for _, g := range groups {
		sb.WriteString(g.title + "\n")
		for _, key := range g.keys {
			sb.WriteString(fmt.Sprintf("  %-20s %s\n", key+":", viper.GetString(key)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
