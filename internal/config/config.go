// Package config manages application configuration from files and environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	PreviewRows int    `mapstructure:"preview_rows"`
	TempDir     string `mapstructure:"temp_dir"`
	MaxEntryMB  int64  `mapstructure:"max_entry_mb"`
	ProfilesDir string `mapstructure:"profiles_dir"`
	Output      struct {
		Dir   string `mapstructure:"dir"`
		Color bool   `mapstructure:"color"`
	} `mapstructure:"output"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	History struct {
		Enabled bool   `mapstructure:"enabled"`
		File    string `mapstructure:"file"`
	} `mapstructure:"history"`
	Watch struct {
		DebounceMS int  `mapstructure:"debounce_ms"`
		Recursive  bool `mapstructure:"recursive"`
	} `mapstructure:"watch"`
	Serve struct {
		Host        string `mapstructure:"host"`
		Port        int    `mapstructure:"port"`
		MaxUploadMB int64  `mapstructure:"max_upload_mb"`
	} `mapstructure:"serve"`
}

// MaxEntryBytes returns the per-entry extraction limit in bytes.
func (c *Config) MaxEntryBytes() int64 { return c.MaxEntryMB << 20 }

// Load reads the configuration from ~/.sheetmerge/config.yaml and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(Dir())

	setDefaults()

	// Environment variable overrides, e.g. SHEETMERGE_SERVE_PORT
	viper.SetEnvPrefix("SHEETMERGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (non-fatal if missing)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.ProfilesDir = expandHome(cfg.ProfilesDir)
	cfg.History.File = expandHome(cfg.History.File)
	cfg.Output.Dir = expandHome(cfg.Output.Dir)

	return &cfg, nil
}

func setDefaults() {
	for key, value := range Defaults() {
		viper.SetDefault(key, value)
	}
}

// Defaults returns every known key with its default value.
func Defaults() map[string]interface{} {
	dir := Dir()
	return map[string]interface{}{
		"preview_rows":        5,
		"temp_dir":            "",
		"max_entry_mb":        256,
		"profiles_dir":        filepath.Join(dir, "profiles"),
		"output.dir":          "",
		"output.color":        true,
		"log.level":           "warn",
		"history.enabled":     true,
		"history.file":        filepath.Join(dir, "history.jsonl"),
		"watch.debounce_ms":   500,
		"watch.recursive":     false,
		"serve.host":          "127.0.0.1",
		"serve.port":          8765,
		"serve.max_upload_mb": 100,
	}
}

// Dir returns the directory holding configuration, profiles and history.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sheetmerge"
	}
	return filepath.Join(home, ".sheetmerge")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
