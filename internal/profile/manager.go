package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	settingsFile = "settings.yaml"
	fileExt      = ".yaml"
	unnamed      = "Unnamed Profile"
)

// ErrNotFound is returned for unknown profile names.
var ErrNotFound = errors.New("profile not found")

var unsafeChars = regexp.MustCompile(`[^\w\-_\. ]`)

type settings struct {
	DefaultProfile string `yaml:"default_profile"`
}

// Manager keeps profiles as YAML files in one directory.
type Manager struct {
	mu          sync.Mutex
	dir         string
	profiles    map[string]*Profile
	defaultName string
	logger      *zap.Logger
}

// NewManager loads every profile in dir, creating the directory if needed.
// Files that cannot be parsed are logged and ignored.
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create profiles directory: %w", err)
	}

	m := &Manager{dir: dir, profiles: make(map[string]*Profile), logger: logger}
	if err := m.loadAll(); err != nil {
		return nil, err
	}
	m.loadSettings()
	return m, nil
}

// Dir returns the profiles directory.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) loadAll() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("could not read profiles directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == settingsFile || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		p, err := loadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			m.logger.Warn("could not load profile", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		m.profiles[p.Name] = p
		m.logger.Debug("loaded profile", zap.String("name", p.Name))
	}
	return nil
}

func loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if p.Name == "" {
		p.Name = unnamed
	}
	return &p, nil
}

func (m *Manager) loadSettings() {
	data, err := os.ReadFile(filepath.Join(m.dir, settingsFile))
	if err != nil {
		return
	}
	var s settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		m.logger.Warn("could not parse profile settings", zap.Error(err))
		return
	}
	m.defaultName = s.DefaultProfile
}

func (m *Manager) saveSettings() error {
	data, err := yaml.Marshal(settings{DefaultProfile: m.defaultName})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(m.dir, settingsFile), data, 0644); err != nil {
		return fmt.Errorf("could not save profile settings: %w", err)
	}
	return nil
}

// FileName returns the file a profile named name is stored in.
func FileName(name string) string {
	file := unsafeChars.ReplaceAllString(name, "_") + fileExt
	if file == settingsFile {
		return "settings_" + fileExt
	}
	return file
}

// Create makes and saves an empty profile. If name is taken, "name (n)" is used.
func (m *Manager) Create(name string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		name = unnamed
	}
	base := name
	for n := 1; m.profiles[name] != nil; n++ {
		name = fmt.Sprintf("%s (%d)", base, n)
	}

	p := New(name)
	if err := m.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes p to disk and registers it under its name.
func (m *Manager) Save(p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(p)
}

func (m *Manager) save(p *Profile) error {
	if p.Name == "" {
		p.Name = unnamed
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("could not encode profile %q: %w", p.Name, err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, FileName(p.Name)), data, 0644); err != nil {
		return fmt.Errorf("could not save profile %q: %w", p.Name, err)
	}
	m.profiles[p.Name] = p
	return nil
}

// Get returns the named profile.
func (m *Manager) Get(name string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// List returns all profiles sorted by name.
func (m *Manager) List() []*Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AutoProcess returns the profiles with auto processing enabled and at least one watch folder.
func (m *Manager) AutoProcess() []*Profile {
	var out []*Profile
	for _, p := range m.List() {
		if p.AutoProcess && len(p.WatchFolders) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// Delete removes the named profile. Deleting the default clears the default.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err := os.Remove(filepath.Join(m.dir, FileName(name))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete profile %q: %w", name, err)
	}
	delete(m.profiles, name)

	if m.defaultName == name {
		m.defaultName = ""
		return m.saveSettings()
	}
	return nil
}

// Rename changes a profile's name, moving its file and the default setting.
func (m *Manager) Rename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, oldName)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("new profile name must not be empty")
	}
	if _, taken := m.profiles[newName]; taken {
		return fmt.Errorf("profile %q already exists", newName)
	}

	if err := os.Remove(filepath.Join(m.dir, FileName(oldName))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not rename profile %q: %w", oldName, err)
	}
	delete(m.profiles, oldName)
	p.Name = newName
	if err := m.save(p); err != nil {
		return err
	}

	if m.defaultName == oldName {
		m.defaultName = newName
		return m.saveSettings()
	}
	return nil
}

// SetDefault marks name as the default profile. An empty name clears it.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name != "" {
		if _, ok := m.profiles[name]; !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
	}
	m.defaultName = name
	return m.saveSettings()
}

// Default returns the default profile, or nil when none is set.
func (m *Manager) Default() *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultName == "" {
		return nil
	}
	return m.profiles[m.defaultName]
}

// DefaultName returns the configured default profile name.
func (m *Manager) DefaultName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultName
}
