package credentials

import "sync"

// MemoryStore keeps credentials for the lifetime of the process only.
type MemoryStore struct {
	mu      sync.RWMutex
	current Credentials
}

// NewMemoryStore returns a store seeded with initial.
func NewMemoryStore(initial Credentials) *MemoryStore {
	return &MemoryStore{current: initial}
}

// Get returns the current snapshot.
func (s *MemoryStore) Get() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set applies update as a single write.
func (s *MemoryStore) Set(update Update) {
	s.mu.Lock()
	s.current = update.Apply(s.current)
	s.mu.Unlock()
}

// Clear removes every field.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.current = Credentials{}
	s.mu.Unlock()
}

// SetIf applies update when match accepts the current snapshot.
func (s *MemoryStore) SetIf(match func(Credentials) bool, update Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !match(s.current) {
		return false
	}
	s.current = update.Apply(s.current)
	return true
}

// ClearIf removes every field when match accepts the current snapshot.
func (s *MemoryStore) ClearIf(match func(Credentials) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !match(s.current) {
		return false
	}
	s.current = Credentials{}
	return true
}
