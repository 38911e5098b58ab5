package orient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store maps mesh keys to saved calibration transforms, backed by a YAML
// file. It is safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	path       string
	transforms map[string]Transform
}

// OpenStore loads the store at path. A missing file yields an empty store;
// it is created on the first Save. An empty path gives an in-memory store.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, transforms: make(map[string]Transform)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transform store: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.transforms); err != nil {
		return nil, fmt.Errorf("failed to parse transform store %s: %w", path, err)
	}
	if s.transforms == nil {
		s.transforms = make(map[string]Transform)
	}
	return s, nil
}

// Get returns the transform saved for key.
func (s *Store) Get(key string) (Transform, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transforms[key]
	return t, ok
}

// Put records a transform for key and persists the store.
func (s *Store) Put(key string, t Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transforms[key] = t
	return s.saveLocked()
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.transforms))
	for k := range s.transforms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.transforms)
	if err != nil {
		return fmt.Errorf("failed to encode transform store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create transform store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transform store: %w", err)
	}
	return nil
}
