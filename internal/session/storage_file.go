package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStorage keeps all keys in one JSON object on disk. The file holds a
// bearer token, so it is written owner-only.
type FileStorage struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

func NewFileStorage(path string) (*FileStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session state file path is required")
	}

	s := &FileStorage{
		path:   path,
		values: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStorage) Path() string {
	return s.path
}

func (s *FileStorage) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.persistLocked(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	if !had {
		return nil
	}
	delete(s.values, key)
	if err := s.persistLocked(); err != nil {
		s.values[key] = prev
		return err
	}
	return nil
}

func (s *FileStorage) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session state file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	decoded := make(map[string]string)
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode session state file: %w", err)
	}
	if decoded != nil {
		s.values = decoded
	}
	return nil
}

func (s *FileStorage) persistLocked() error {
	b, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir session state dir: %w", err)
	}
	if err := os.WriteFile(s.path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("write session state file: %w", err)
	}
	return nil
}
