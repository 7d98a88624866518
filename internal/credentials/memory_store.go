package credentials

import (
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := applyOptions(opts)
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     o.now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(name string) (string, error) {
	e, err := s.Lookup(name)
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(name string) (*Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if e.Expired(s.now()) {
		s.mu.Lock()
		delete(s.entries, name)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return &e, nil
}

// Set implements Store.
func (s *MemoryStore) Set(name, value string, ttl time.Duration) error {
	if name == "" {
		return ErrInvalidName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[name] = newEntry(name, value, ttl, s.now())
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		delete(s.entries, name)
	}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
