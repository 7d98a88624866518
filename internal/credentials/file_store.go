package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const jarFileName = "cookies.json"

// jar is the on-disk layout of a FileStore.
type jar struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// FileStore keeps entries in a single JSON file on the local filesystem.
type FileStore struct {
	baseDir string
	now     func() time.Time

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// DefaultDir returns ~/.eddits/session, where stores live unless told otherwise.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".eddits", "session"), nil
}

// NewFileStore creates a file-backed store.
// If baseDir is empty, uses ~/.eddits/session/
func NewFileStore(baseDir string, opts ...Option) (*FileStore, error) {
	if baseDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}

	// Create directory with 0700 permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	o := applyOptions(opts)
	store := &FileStore{baseDir: baseDir, now: o.now}

	if err := store.ensureJar(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("file credential store initialized")

	return store, nil
}

// Get implements Store.
func (s *FileStore) Get(name string) (string, error) {
	e, err := s.Lookup(name)
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// Lookup implements Store.
func (s *FileStore) Lookup(name string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.loadJar()
	if err != nil {
		return nil, err
	}

	e, ok := j.Entries[name]
	if !ok {
		return nil, ErrNotFound
	}

	if e.Expired(s.now()) {
		delete(j.Entries, name)
		if err := s.saveJar(j); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("failed to purge expired entry")
		}
		return nil, ErrNotFound
	}

	return &e, nil
}

// Set implements Store.
func (s *FileStore) Set(name, value string, ttl time.Duration) error {
	if name == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.loadJar()
	if err != nil {
		return err
	}

	j.Entries[name] = newEntry(name, value, ttl, s.now())

	return s.saveJar(j)
}

// Delete implements Store.
func (s *FileStore) Delete(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.loadJar()
	if err != nil {
		return err
	}

	for _, name := range names {
		delete(j.Entries, name)
	}

	return s.saveJar(j)
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveJar(&jar{Version: 1, Entries: make(map[string]Entry)})
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

// ensureJar creates an empty jar if it doesn't exist.
func (s *FileStore) ensureJar() error {
	if _, err := os.Stat(s.jarPath()); err == nil {
		return nil
	}

	return s.saveJar(&jar{Version: 1, Entries: make(map[string]Entry)})
}

func (s *FileStore) jarPath() string {
	return filepath.Join(s.baseDir, jarFileName)
}

// loadJar reads the jar file.
func (s *FileStore) loadJar() (*jar, error) {
	data, err := os.ReadFile(s.jarPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	var j jar
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if j.Entries == nil {
		j.Entries = make(map[string]Entry)
	}

	return &j, nil
}

// saveJar writes the jar file atomically.
func (s *FileStore) saveJar(j *jar) error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential store: %w", err)
	}

	// Write to temp file first
	path := s.jarPath()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save credential store: %w", err)
	}

	return nil
}
