// Package session keeps the credential and profile snapshot returned by the
// identity bridge on the client, and follows the identity authority's
// signed-in / signed-out transitions.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const scopeFile = "session.json"

// Scope is a string key/value store. A Cache uses a durable scope for
// "remember me" sessions and a tab-lifetime scope otherwise.
type Scope interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// MemoryScope lives as long as the process, the equivalent of a browser tab.
type MemoryScope struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryScope returns an empty MemoryScope.
func NewMemoryScope() *MemoryScope {
	return &MemoryScope{values: make(map[string]string)}
}

func (s *MemoryScope) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryScope) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryScope) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

// FileScope persists values as a JSON object readable only by the owner.
type FileScope struct {
	mu   sync.Mutex
	path string
}

var _ Scope = (*FileScope)(nil)

// NewFileScope stores values in dir/session.json. An empty dir selects
// "medreach" under the user's config directory.
func NewFileScope(dir string) (*FileScope, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user config directory: %w", err)
		}
		dir = filepath.Join(base, "medreach")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileScope{path: filepath.Join(dir, scopeFile)}, nil
}

func (s *FileScope) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileScope) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *FileScope) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	if len(values) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return s.write(values)
}

func (s *FileScope) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session file: %w", err)
	}
	return values, nil
}

func (s *FileScope) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return os.WriteFile(s.path, data, 0600)
}
