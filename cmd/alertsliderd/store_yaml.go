package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// YAMLStore keeps preferences as a flat YAML mapping in one file.
// The file is re-read on every Load.
type YAMLStore struct {
	mu   sync.Mutex
	path string
}

// NewYAMLStore returns a store backed by path. The file need not exist yet.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: ExpandPath(path)}
}

// Load returns all stored values. A missing file is an empty store.
func (s *YAMLStore) Load() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *YAMLStore) loadLocked() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences file: %w", err)
	}

	// Decode into any so that bools and ints written by hand are accepted.
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode preferences yaml: %w", ErrCorruptPreferences, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// Set writes key=value, replacing the file atomically.
func (s *YAMLStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, err := s.loadLocked()
	if err != nil {
		return err
	}
	vals[key] = value

	b, err := yaml.Marshal(vals)
	if err != nil {
		return fmt.Errorf("encode preferences yaml: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp preferences file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp preferences file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp preferences file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace preferences file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (s *YAMLStore) Close() error { return nil }
