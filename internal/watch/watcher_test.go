package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klytics/sheetmerge/internal/profile"
)

func TestNewWatcher(t *testing.T) {
	w, err := New(WatchConfig{
		Rules:    []Rule{{ID: "p", Folder: t.TempDir(), Enabled: true}},
		Debounce: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	if w == nil {
		t.Fatal("expected non-nil watcher")
	}
	w.watcher.Close()
}

func TestRulesFromProfiles(t *testing.T) {
	auto := profile.New("auto")
	auto.AutoProcess = true
	auto.AddWatchFolder("/in/a")
	auto.AddWatchFolder("/in/b")
	auto.OutputFolder = "/out"

	manual := profile.New("manual")
	manual.AddWatchFolder("/in/c")

	rules := RulesFromProfiles([]*profile.Profile{auto, manual})
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %+v", rules)
	}
	if rules[0].ID != "auto" || rules[0].Folder != "/in/a" || rules[0].Output != "/out" || !rules[0].Enabled {
		t.Errorf("rule = %+v", rules[0])
	}
}

func TestOutputFor(t *testing.T) {
	if got := OutputFor(Rule{Output: "/out"}, "/in/batch.zip"); got != filepath.Join("/out", "batch_merged.xlsx") {
		t.Errorf("OutputFor = %q", got)
	}
	if got := OutputFor(Rule{}, "/in/batch.ZIP"); got != filepath.Join("/in", "batch_merged.xlsx") {
		t.Errorf("OutputFor default = %q", got)
	}
}

func TestDirectories(t *testing.T) {
	cfg := WatchConfig{Rules: []Rule{
		{Folder: "/a", Enabled: true},
		{Folder: "/a", Enabled: true},
		{Folder: "/b", Enabled: false},
		{Folder: "/c", Enabled: true},
	}}
	got := cfg.Directories()
	if len(got) != 2 || got[0] != "/a" || got[1] != "/c" {
		t.Errorf("Directories = %v", got)
	}
}

func TestMatchesRule(t *testing.T) {
	w, _ := New(WatchConfig{})
	defer w.watcher.Close()

	rule := Rule{ID: "r1", Folder: "/in", Enabled: true}
	if !w.matchesRule("/in/batch.zip", rule) {
		t.Error("should match archive in folder")
	}
	if !w.matchesRule("/in/BATCH.ZIP", rule) {
		t.Error("match should ignore case")
	}
	if w.matchesRule("/in/sub/batch.zip", rule) {
		t.Error("non-recursive rule should not match subfolders")
	}
	if w.matchesRule("/other/batch.zip", rule) {
		t.Error("should not match other folders")
	}

	rule.Pattern = "sales_*.zip"
	if w.matchesRule("/in/batch.zip", rule) {
		t.Error("pattern should restrict matches")
	}
}

func TestMatchesRuleRecursive(t *testing.T) {
	w, _ := New(WatchConfig{Recursive: true})
	defer w.watcher.Close()

	rule := Rule{ID: "r1", Folder: "/in", Enabled: true}
	if !w.matchesRule("/in/sub/deep/batch.zip", rule) {
		t.Error("recursive rule should match subfolders")
	}
	if w.matchesRule("/inbox/batch.zip", rule) {
		t.Error("sibling folder with common prefix should not match")
	}
}

func TestProcessFileRecordsEvents(t *testing.T) {
	w, _ := New(WatchConfig{Rules: []Rule{{ID: "ok", Folder: "/in", Enabled: true}}})
	defer w.watcher.Close()

	calls := 0
	w.Handler = func(_ context.Context, path string, rule Rule) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("boom")
		}
		return OutputFor(rule, path), nil
	}

	w.processFile("/in/a.zip", "CREATE")
	w.processFile("/in/b.zip", "WRITE")
	w.processFile("/elsewhere/c.zip", "CREATE")

	events := w.GetEvents()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Status != StatusProcessed || events[0].Output != filepath.Join("/in", "a_merged.xlsx") {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Status != StatusError || events[1].Error != "boom" {
		t.Errorf("event 1 = %+v", events[1])
	}
	if events[2].Status != StatusSkipped || calls != 2 {
		t.Errorf("event 2 = %+v, calls = %d", events[2], calls)
	}
}

func TestWatcherEvents(t *testing.T) {
	dir := t.TempDir()

	w, err := New(WatchConfig{
		Rules:    []Rule{{ID: "test-rule", Folder: dir, Enabled: true}},
		Debounce: 50,
	})
	if err != nil {
		t.Fatal(err)
	}

	handlerCalled := make(chan string, 4)
	w.Handler = func(_ context.Context, path string, rule Rule) (string, error) {
		handlerCalled <- path
		return "", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		w.Start(ctx)
	}()

	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("test"), 0644)
	testFile := filepath.Join(dir, "batch.zip")
	os.WriteFile(testFile, []byte("PK"), 0644)

	select {
	case path := <-handlerCalled:
		if path != testFile {
			t.Errorf("expected %q, got %q", testFile, path)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for handler call")
	}

	cancel()
}

func TestStartWithoutFolders(t *testing.T) {
	w, _ := New(WatchConfig{})
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected error without watch folders")
	}
}

func TestPIDFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	if err := WritePIDFile(dir); err != nil {
		t.Fatal(err)
	}

	pid, err := ReadPIDFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), pid)
	}

	if err := RemovePIDFile(dir); err != nil {
		t.Fatal(err)
	}

	if _, err = ReadPIDFile(dir); err == nil {
		t.Error("expected error after removing PID file")
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	dir := t.TempDir()

	config := WatchConfig{
		Rules:     []Rule{{ID: "r1", Folder: "/tmp/in", Pattern: "*.zip", Enabled: true}},
		Recursive: true,
		Debounce:  500,
	}

	if err := SaveConfig(dir, config); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Recursive {
		t.Error("expected recursive=true")
	}
	if len(loaded.Rules) != 1 || loaded.Rules[0].Folder != "/tmp/in" {
		t.Errorf("rules mismatch: %+v", loaded.Rules)
	}
}

func TestGetStatus(t *testing.T) {
	w, _ := New(WatchConfig{
		Rules: []Rule{{ID: "r1", Folder: "/tmp/a", Enabled: true}, {ID: "r2", Folder: "/tmp/b", Enabled: true}},
	})
	defer w.watcher.Close()

	status := w.GetStatus()
	if !status.Running || status.PID != os.Getpid() {
		t.Errorf("status = %+v", status)
	}
	if len(status.Directories) != 2 {
		t.Errorf("expected 2 directories, got %d", len(status.Directories))
	}
	if status.Rules != 2 {
		t.Errorf("expected 2 rules, got %d", status.Rules)
	}
}

func TestDefaultDebounce(t *testing.T) {
	w, _ := New(WatchConfig{Debounce: 0})
	defer w.watcher.Close()

	if w.Config.Debounce != 500 {
		t.Errorf("expected default debounce 500, got %d", w.Config.Debounce)
	}
}
