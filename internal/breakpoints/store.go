package breakpoints

import (
	"sort"
	"sync"
)

// Store is the host's breakpoint collection
type Store interface {
	Lookup(key Key) (Breakpoint, bool)
	Keys() []Key
	Count() int
}

// MutableStore is a Store that accepts changes reported by the engine
type MutableStore interface {
	Store
	Put(bp Breakpoint) bool
	Remove(key Key) bool
}

// MemoryStore is an in-memory MutableStore. Invalid breakpoints are ignored.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Breakpoint
}

func NewMemoryStore(initial ...Breakpoint) *MemoryStore {
	s := &MemoryStore{items: make(map[string]Breakpoint)}
	for _, bp := range initial {
		s.Put(bp)
	}
	return s
}

func (s *MemoryStore) Lookup(key Key) (Breakpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.items[key.id()]
	return bp, ok
}

// Keys returns the stored keys sorted by file and line
func (s *MemoryStore) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.items))
	for _, bp := range s.items {
		keys = append(keys, bp.Key())
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].File != keys[j].File {
			return keys[i].File < keys[j].File
		}
		return keys[i].Line < keys[j].Line
	})
	return keys
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Put inserts or replaces bp. It returns false for an invalid location.
func (s *MemoryStore) Put(bp Breakpoint) bool {
	key := bp.Key()
	if !key.Valid() {
		return false
	}
	bp.File = key.File

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key.id()] = bp
	return true
}

func (s *MemoryStore) Remove(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key.id()]; !ok {
		return false
	}
	delete(s.items, key.id())
	return true
}
