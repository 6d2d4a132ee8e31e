package workproduct

import "sync"

// MemoryStore is a per-process Store. It records products without files.
type MemoryStore struct {
	mu     sync.RWMutex
	byUnit map[string]WorkProduct
}

// NewMemoryStore creates a MemoryStore with the given capacity hint.
func NewMemoryStore(capHint int) *MemoryStore {
	return &MemoryStore{byUnit: make(map[string]WorkProduct, capHint)}
}

func (s *MemoryStore) Lookup(unit string) (WorkProduct, bool, error) {
	s.mu.RLock()
	wp, ok := s.byUnit[unit]
	s.mu.RUnlock()
	return wp, ok, nil
}

// Put inserts or replaces the product of wp.Unit.
func (s *MemoryStore) Put(wp WorkProduct) {
	s.mu.Lock()
	s.byUnit[wp.Unit] = wp
	s.mu.Unlock()
}
