// Package dataset builds the class table and the YOLO dataset manifest.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ClassMap is a bijection between class names and dense 0-based IDs.
type ClassMap struct {
	names []string
	ids   map[string]int
}

// NewClassMap assigns IDs in the order names are given.
func NewClassMap(names []string) (*ClassMap, error) {
	m := &ClassMap{
		names: make([]string, 0, len(names)),
		ids:   make(map[string]int, len(names)),
	}
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty class name")
		}
		if _, dup := m.ids[name]; dup {
			return nil, fmt.Errorf("duplicate class name %q", name)
		}
		m.ids[name] = len(m.names)
		m.names = append(m.names, name)
	}
	return m, nil
}

// ScanClasses treats every immediate subdirectory of root as a class. Names
// are sorted lexicographically before IDs are assigned so the table does not
// depend on directory listing order. Hidden directories are ignored.
//
// Parameters:
//   - root: the class tree, usually the same directory capture walks.
//
// Returns:
//   - *ClassMap: IDs 0..n-1 in sorted name order.
//   - error: Non-nil if root cannot be read or holds no class directories.
func ScanClasses(root string) (*ClassMap, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read class directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no class subdirectories in %s", root)
	}
	sort.Strings(names)
	return NewClassMap(names)
}

// ID returns the ID for name.
func (m *ClassMap) ID(name string) (int, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Name returns the class name for id.
func (m *ClassMap) Name(id int) (string, bool) {
	if id < 0 || id >= len(m.names) {
		return "", false
	}
	return m.names[id], true
}

// Names returns the class names indexed by ID.
func (m *ClassMap) Names() []string {
	return append([]string(nil), m.names...)
}

// Len is the number of classes.
func (m *ClassMap) Len() int {
	return len(m.names)
}

// Match resolves the class of an image file name produced by the capturer.
// The stem must equal a class name or start with a class name followed by
// an underscore; when several classes qualify the longest name wins, so
// "soda_can_can_001" resolves to "soda_can" rather than "soda".
//
// Parameters:
//   - path: image path; only the base name without extension is used
//
// Returns the class name and ID, or ok=false when no class matches.
func (m *ClassMap) Match(path string) (name string, id int, ok bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for i, candidate := range m.names {
		if stem != candidate && !strings.HasPrefix(stem, candidate+"_") {
			continue
		}
		if !ok || len(candidate) > len(name) {
			name, id, ok = candidate, i, true
		}
	}
	return name, id, ok
}

// ClassFromFilename returns the class encoded in an image file name: the
// part of the base name before the first underscore, or the whole stem when
// there is none.
func ClassFromFilename(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(stem, "_"); i >= 0 {
		return stem[:i]
	}
	return stem
}
