// Package watch monitors folders for new ZIP archives and hands them to a
// handler, one at a time, after a debounce delay.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/klytics/sheetmerge/internal/profile"
)

// Event statuses.
const (
	StatusProcessed = "processed"
	StatusError     = "error"
	StatusSkipped   = "skipped"
)

// Rule ties a watched folder to the profile that processes its archives.
type Rule struct {
	ID      string `json:"id"` // profile name
	Folder  string `json:"folder"`
	Pattern string `json:"pattern"` // glob on the file name, "*.zip" when empty
	Output  string `json:"output,omitempty"`
	Enabled bool   `json:"enabled"`
}

// WatchConfig holds the complete watcher configuration.
type WatchConfig struct {
	Rules     []Rule `json:"rules"`
	Recursive bool   `json:"recursive"`
	Debounce  int    `json:"debounceMs"` // Milliseconds to wait before processing
}

// Directories returns the distinct folders of enabled rules.
func (c WatchConfig) Directories() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, r := range c.Rules {
		if !r.Enabled || seen[r.Folder] {
			continue
		}
		seen[r.Folder] = true
		dirs = append(dirs, r.Folder)
	}
	return dirs
}

// Event represents a file event that was detected and processed.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // "CREATE", "WRITE"
	RuleID    string    `json:"ruleId,omitempty"`
	Output    string    `json:"output,omitempty"`
	Status    string    `json:"status"` // "processed", "error", "skipped"
	Error     string    `json:"error,omitempty"`
}

// Handler processes one archive for rule and returns the output path.
type Handler func(ctx context.Context, path string, rule Rule) (string, error)

// Watcher monitors directories for archives and triggers the handler.
type Watcher struct {
	Config   WatchConfig
	Logger   *zap.Logger
	Handler  Handler
	mu       sync.Mutex
	runMu    sync.Mutex
	events   []Event
	watcher  *fsnotify.Watcher
	debounce map[string]*time.Timer
	ctx      context.Context
	started  time.Time
}

// Status represents the current watcher status.
type Status struct {
	Running     bool     `json:"running"`
	PID         int      `json:"pid,omitempty"`
	Directories []string `json:"directories"`
	Rules       int      `json:"rules"`
	EventCount  int      `json:"eventCount"`
	StartedAt   string   `json:"startedAt,omitempty"`
}

// RulesFromProfiles builds one rule per watch folder of every auto-process profile.
func RulesFromProfiles(profiles []*profile.Profile) []Rule {
	var rules []Rule
	for _, p := range profiles {
		if !p.AutoProcess {
			continue
		}
		for _, folder := range p.WatchFolders {
			abs, err := filepath.Abs(folder)
			if err != nil {
				abs = folder
			}
			rules = append(rules, Rule{
				ID:      p.Name,
				Folder:  abs,
				Pattern: "*.zip",
				Output:  p.OutputFolder,
				Enabled: true,
			})
		}
	}
	return rules
}

// OutputFor returns where the merged workbook for archive goes:
// <output folder>/<archive stem>_merged.xlsx, next to the archive by default.
func OutputFor(rule Rule, archive string) string {
	dir := rule.Output
	if dir == "" {
		dir = filepath.Dir(archive)
	}
	stem := strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive))
	return filepath.Join(dir, stem+"_merged.xlsx")
}

// New creates a new Watcher with the given configuration.
func New(config WatchConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}

	if config.Debounce <= 0 {
		config.Debounce = 500
	}

	return &Watcher{
		Config:   config,
		Logger:   zap.NewNop(),
		watcher:  fsw,
		debounce: make(map[string]*time.Timer),
		ctx:      context.Background(),
	}, nil
}

// Start begins watching the configured directories. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := w.Config.Directories()
	if len(dirs) == 0 {
		w.watcher.Close()
		return fmt.Errorf("no watch folders configured — add one with 'sheetmerge profile add-watch' and enable auto processing")
	}

	for _, dir := range dirs {
		if w.Config.Recursive {
			if err := w.addRecursive(dir); err != nil {
				w.watcher.Close()
				return err
			}
		} else if err := w.watcher.Add(dir); err != nil {
			w.watcher.Close()
			return fmt.Errorf("could not watch %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	w.ctx = ctx
	w.started = time.Now()
	w.mu.Unlock()

	w.Logger.Info("watching folders", zap.Strings("directories", dirs), zap.Int("rules", len(w.Config.Rules)))

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("stopping watcher")
			w.stopTimers()
			return w.watcher.Close()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if info.IsDir() {
			// Skip hidden directories
			if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("could not watch %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, path)
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.Config.Recursive && event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
			return
		}
	}

	// Only process create and write events
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	path := event.Name
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return
	}

	// Skip temp and hidden files
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return
	}

	// Debounce: archives are often written in several chunks
	w.mu.Lock()
	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	op := event.Op.String()
	w.debounce[path] = time.AfterFunc(time.Duration(w.Config.Debounce)*time.Millisecond, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()
		w.processFile(path, op)
	})
	w.mu.Unlock()
}

// processFile runs the handler for the first matching rule. Runs are serialized.
func (w *Watcher) processFile(path string, operation string) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	evt := Event{
		Time:      time.Now(),
		Path:      path,
		Operation: operation,
		Status:    StatusSkipped,
	}

	for _, rule := range w.Config.Rules {
		if !rule.Enabled || !w.matchesRule(path, rule) {
			continue
		}
		evt.RuleID = rule.ID

		if w.Handler == nil {
			w.Logger.Info("matched archive without handler", zap.String("path", path), zap.String("rule", rule.ID))
			evt.Status = StatusProcessed
			break
		}

		out, err := w.Handler(ctx, path, rule)
		if err != nil {
			evt.Status = StatusError
			evt.Error = err.Error()
			w.Logger.Error("could not process archive", zap.String("path", path), zap.String("rule", rule.ID), zap.Error(err))
		} else {
			evt.Status = StatusProcessed
			evt.Output = out
			w.Logger.Info("processed archive", zap.String("path", path), zap.String("rule", rule.ID), zap.String("output", out))
		}
		break
	}

	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

func (w *Watcher) matchesRule(path string, rule Rule) bool {
	dir := filepath.Dir(path)
	if w.Config.Recursive {
		rel, err := filepath.Rel(rule.Folder, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
	} else if filepath.Clean(dir) != filepath.Clean(rule.Folder) {
		return false
	}

	pattern := rule.Pattern
	if pattern == "" {
		pattern = "*.zip"
	}
	matched, _ := filepath.Match(strings.ToLower(pattern), strings.ToLower(filepath.Base(path)))
	return matched
}

// GetStatus returns the current watcher status.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := Status{
		Running:     true,
		PID:         os.Getpid(),
		Directories: w.Config.Directories(),
		Rules:       len(w.Config.Rules),
		EventCount:  len(w.events),
	}
	if !w.started.IsZero() {
		status.StartedAt = w.started.Format(time.RFC3339)
	}
	return status
}

// GetEvents returns all recorded events.
func (w *Watcher) GetEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}

// Daemon state: a PID file plus the active configuration, for watch stop/status.

const (
	pidFile    = "watch.pid"
	configFile = "watch-config.json"
)

// WritePIDFile writes the current process ID to the PID file in the given directory.
func WritePIDFile(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, pidFile)
	return os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0644)
}

// ReadPIDFile reads the PID from the PID file.
func ReadPIDFile(dir string) (int, error) {
	path := filepath.Join(dir, pidFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(dir string) error {
	return os.Remove(filepath.Join(dir, pidFile))
}

// SaveConfig writes the watcher config to a JSON file.
func SaveConfig(dir string, config WatchConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFile), data, 0644)
}

// LoadConfig reads the watcher config from a JSON file.
func LoadConfig(dir string) (*WatchConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, err
	}
	var config WatchConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid watch config: %w", err)
	}
	return &config, nil
}
