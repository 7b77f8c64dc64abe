// Package history keeps a JSONL log of merge runs.
package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry represents a single run.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Trigger    string    `json:"trigger"` // "cli", "watch", "serve"
	Profile    string    `json:"profile,omitempty"`
	Source     string    `json:"source"`
	Output     string    `json:"output,omitempty"`
	Sheets     int       `json:"sheets"`
	Skipped    []string  `json:"skipped,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Log appends entries to a file.
type Log struct {
	FilePath string
	Enabled  bool
	mu       sync.Mutex
}

// New creates a Log. A disabled log or an empty path records nothing.
func New(filePath string, enabled bool) *Log {
	return &Log{FilePath: filePath, Enabled: enabled}
}

// Record writes a single entry, filling in ID and Timestamp when unset.
// Best-effort: failures are swallowed so a run never fails on its log.
func (l *Log) Record(_ context.Context, entry Entry) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if l == nil || !l.Enabled || l.FilePath == "" {
		return entry.ID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.FilePath), 0755); err != nil {
		return entry.ID
	}
	f, err := os.OpenFile(l.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return entry.ID
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return entry.ID
	}
	data = append(data, '\n')
	_, _ = f.Write(data)
	return entry.ID
}

// ReadEntries reads all entries from the log file, oldest first.
func ReadEntries(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter returns entries at or after since with a matching trigger and status.
// Zero values match everything.
func Filter(entries []Entry, since time.Time, trigger, status string) []Entry {
	var result []Entry
	for _, e := range entries {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if trigger != "" && e.Trigger != trigger {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		result = append(result, e)
	}
	return result
}

// Last returns the newest n entries, newest first. n <= 0 returns all.
func Last(entries []Entry, n int) []Entry {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// Size returns the size of the log in bytes, or 0 if not found.
func Size(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the log file. A missing file is not an error.
func Clear(filePath string) error {
	err := os.Truncate(filePath, 0)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
