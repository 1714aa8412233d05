package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the key in a YAML file readable only by the owner. It is
// the fallback for headless machines without a keychain daemon.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

type fileEntry struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credential: read %q: %w", s.path, err)
	}
	var e fileEntry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("credential: decode %q: %w", s.path, err)
	}
	if e.OpenAIAPIKey == "" {
		return "", ErrNotFound
	}
	return e.OpenAIAPIKey, nil
}

func (s *FileStore) Set(_ context.Context, key string) error {
	key, err := normalise(key)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(fileEntry{OpenAIAPIKey: key})
	if err != nil {
		return fmt.Errorf("credential: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credential: create dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("credential: write %q: %w", s.path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("credential: chmod %q: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credential: remove %q: %w", s.path, err)
	}
	return nil
}

// MemoryStore keeps the key in memory. Used by tests and by servers that
// receive the key from configuration.
type MemoryStore struct {
	mu  sync.Mutex
	key string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding key (which may be empty).
func NewMemoryStore(key string) *MemoryStore {
	return &MemoryStore{key: key}
}

func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == "" {
		return "", ErrNotFound
	}
	return s.key, nil
}

func (s *MemoryStore) Set(_ context.Context, key string) error {
	key, err := normalise(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.key = ""
	s.mu.Unlock()
	return nil
}
