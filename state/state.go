// Package state persists the few preferences livesync keeps across runs:
// the selected project, the theme and the last seen notification id.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/grovetools/livesync/pkg/paths"
	"gopkg.in/yaml.v3"
)

// Persisted preference keys.
const (
	KeySelectedProject    = "selected-project"
	KeyTheme              = "theme"
	KeyLastNotificationID = "last-notification-id"
)

// DefaultTheme is used when no theme preference is stored.
const DefaultTheme = "voltrex"

// Keys lists the preference keys livesync reads.
var Keys = []string{KeySelectedProject, KeyTheme, KeyLastNotificationID}

// State represents the persisted preferences as a generic map of key-value pairs.
type State map[string]interface{}

// Store reads and writes a preferences file.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a Store backed by the yaml file at path. The file is created
// on first write.
func Open(path string) *Store {
	return &Store{path: path}
}

// Default returns the Store at the standard state location.
func Default() *Store {
	return Open(paths.PrefsFilePath())
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load loads the state from the preferences file.
// Returns an empty state if the file doesn't exist.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(State), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	if state == nil {
		state = make(State)
	}

	return state, nil
}

func (s *Store) save(state State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Write to a temp file and rename so a watcher never sees a half-written file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}

// Get retrieves a value from the state by key.
// Returns the value and true if found, nil and false otherwise.
func (s *Store) Get(key string) (interface{}, bool, error) {
	state, err := s.Load()
	if err != nil {
		return nil, false, err
	}

	val, ok := state[key]
	return val, ok, nil
}

// GetString is a convenience function to get a string value from state.
// Non-string scalars are formatted; missing keys return "".
func (s *Store) GetString(key string) (string, error) {
	val, ok, err := s.Get(key)
	if err != nil || !ok {
		return "", err
	}

	switch v := val.(type) {
	case string:
		return v, nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	}
	return "", nil
}

// Set sets a value in the state.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	state[key] = value
	return s.save(state)
}

// Delete removes a key from the state.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := state[key]; !ok {
		return nil
	}
	delete(state, key)
	return s.save(state)
}

// Theme returns the stored theme or DefaultTheme.
func (s *Store) Theme() string {
	theme, err := s.GetString(KeyTheme)
	if err != nil || theme == "" {
		return DefaultTheme
	}
	return theme
}

// SelectedProject returns the stored project selection, or "".
func (s *Store) SelectedProject() string {
	id, _ := s.GetString(KeySelectedProject)
	return id
}

// SetSelectedProject stores the project selection; "" removes it.
func (s *Store) SetSelectedProject(id string) error {
	if id == "" {
		return s.Delete(KeySelectedProject)
	}
	return s.Set(KeySelectedProject, id)
}

// LoadCursor returns the persisted last seen notification id.
func (s *Store) LoadCursor() (int64, error) {
	raw, err := s.GetString(KeyLastNotificationID)
	if err != nil || raw == "" {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", KeyLastNotificationID, raw, err)
	}
	return id, nil
}

// SaveCursor persists the last seen notification id. Zero removes it.
func (s *Store) SaveCursor(id int64) error {
	if id <= 0 {
		return s.Delete(KeyLastNotificationID)
	}
	return s.Set(KeyLastNotificationID, id)
}
