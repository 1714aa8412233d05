package prefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps preferences in a YAML file. Fields missing from the file
// keep their default values. FileStore is safe for concurrent use within one
// process.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the YAML file at path. The file is
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Load decodes the file over Defaults. A missing file yields Defaults.
func (s *FileStore) Load(_ context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Defaults()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("prefs: read %q: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Defaults(), fmt.Errorf("prefs: decode %q: %w", s.path, err)
	}
	if err := p.Validate(); err != nil {
		return Defaults(), fmt.Errorf("prefs: %q: %w", s.path, err)
	}
	return p, nil
}

// Save validates p and atomically replaces the file.
func (s *FileStore) Save(_ context.Context, p Preferences) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, data, 0o600)
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("prefs: create dir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("prefs: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("prefs: replace %q: %w", path, err)
	}
	return nil
}

// MemoryStore keeps preferences in memory. The zero value holds Defaults.
type MemoryStore struct {
	mu    sync.Mutex
	prefs *Preferences
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store seeded with p.
func NewMemoryStore(p Preferences) *MemoryStore {
	return &MemoryStore{prefs: &p}
}

// Load returns the stored value or Defaults.
func (s *MemoryStore) Load(_ context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefs == nil {
		return Defaults(), nil
	}
	return *s.prefs, nil
}

// Save validates and stores p.
func (s *MemoryStore) Save(_ context.Context, p Preferences) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("prefs: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = &p
	return nil
}
