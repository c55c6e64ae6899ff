package quizcache

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryMaxEntries caps the in-process cache when MemoryOptions leaves
// MaxEntries unset.
const DefaultMemoryMaxEntries = 10000

// MemoryOptions tunes the in-process store.
type MemoryOptions struct {
	// MaxEntries bounds the number of stored rows. Zero selects
	// DefaultMemoryMaxEntries.
	MaxEntries int
	Now        func() time.Time
}

type memoryStore struct {
	mu         sync.RWMutex
	entries    map[entryKey]Entry
	maxEntries int
	now        func() time.Time
}

type entryKey struct {
	key      string
	provider string
}

// NewMemory returns a process-local store. Rows are kept until the store is
// full; inserting a new row then drops expired rows first and otherwise the
// oldest one.
func NewMemory(opts MemoryOptions) Store {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &memoryStore{
		entries:    make(map[entryKey]Entry),
		maxEntries: maxEntries,
		now:        now,
	}
}

func (s *memoryStore) Get(_ context.Context, key, provider string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryKey{key: key, provider: provider}]
	if !ok {
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (s *memoryStore) Upsert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := entryKey{key: entry.Key, provider: entry.Provider}
	if _, exists := s.entries[k]; !exists && len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}
	s.entries[k] = cloneEntry(entry)
	return nil
}

// evictLocked frees at least one slot. Callers hold s.mu.
func (s *memoryStore) evictLocked() {
	now := s.now()
	var (
		oldest     entryKey
		oldestAt   time.Time
		haveOldest bool
	)
	for k, e := range s.entries {
		if !e.Valid(now) {
			delete(s.entries, k)
			continue
		}
		if !haveOldest || e.CreatedAt.Before(oldestAt) {
			oldest, oldestAt, haveOldest = k, e.CreatedAt, true
		}
	}
	if len(s.entries) >= s.maxEntries && haveOldest {
		delete(s.entries, oldest)
	}
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
