package session

import "sync"

// MemoryScratch is a per-tab ScratchStore.
type MemoryScratch struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ ScratchStore = (*MemoryScratch)(nil)

func NewMemoryScratch() *MemoryScratch {
	return &MemoryScratch{values: make(map[string]string)}
}

func (s *MemoryScratch) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryScratch) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryScratch) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}
