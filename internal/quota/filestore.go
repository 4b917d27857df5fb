package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// quotaFile is the on-disk JSON document holding every feature state.
type quotaFile struct {
	Features map[Feature]State `json:"features"`
}

// FileStore persists quota states in a single JSON file under the
// config directory. The whole document is rewritten on every save.
type FileStore struct {
	mu   sync.Mutex
	path string
	file quotaFile
}

// NewFileStore loads (or initializes) <configDir>/feature_quota.json.
func NewFileStore(configDir string) (*FileStore, error) {
	s := &FileStore{
		path: filepath.Join(configDir, "feature_quota.json"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the quota file, starting empty when it does not exist.
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		s.file = quotaFile{Features: make(map[Feature]State)}
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read quota file: %w", err)
	}

	if err := json.Unmarshal(data, &s.file); err != nil {
		return fmt.Errorf("failed to parse quota file: %w", err)
	}

	if s.file.Features == nil {
		s.file.Features = make(map[Feature]State)
	}

	return nil
}

// saveLocked writes the whole document back to disk.
func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal quota file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create quota dir: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write quota file: %w", err)
	}

	return nil
}

// Save implements Store.
func (s *FileStore) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file.Features[state.Feature] = *state
	return s.saveLocked()
}

// Load implements Store.
func (s *FileStore) Load(feature Feature) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.file.Features[feature]
	if !ok {
		return nil, nil
	}
	if st.Feature == "" {
		st.Feature = feature
	}
	return &st, nil
}

// LoadAll implements Store.
func (s *FileStore) LoadAll() ([]*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*State, 0, len(s.file.Features))
	for key, st := range s.file.Features {
		st := st
		if st.Feature == "" {
			st.Feature = key
		}
		out = append(out, &st)
	}
	return out, nil
}

// Path returns the backing file path (used by the JSON import into
// database storage).
func (s *FileStore) Path() string {
	return s.path
}
