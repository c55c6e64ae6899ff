package limits

import (
	"context"
	"sync"
	"time"
)

// MemoryOptions tunes the in-process store.
type MemoryOptions struct {
	// SweepInterval controls how often fully expired keys are dropped. Zero
	// selects one minute; a negative value disables the sweeper.
	SweepInterval time.Duration
	Now           func() time.Time
}

type memoryStore struct {
	now func() time.Time

	mu   sync.Mutex
	sets map[string]map[string]time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemory returns a store local to this process. Close stops the sweeper.
func NewMemory(opts MemoryOptions) Store {
	s := &memoryStore{
		now:  opts.Now,
		sets: make(map[string]map[string]time.Time),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	interval := opts.SweepInterval
	if interval == 0 {
		interval = time.Minute
	}
	if interval < 0 {
		close(s.done)
		return s
	}
	go s.sweepLoop(interval)
	return s
}

func (s *memoryStore) Add(_ context.Context, key, member string, ttl time.Duration) (bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.pruneLocked(key, now)
	if set == nil {
		set = make(map[string]time.Time)
		s.sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false, nil
	}
	set[member] = now.Add(ttl)
	return true, nil
}

func (s *memoryStore) Count(_ context.Context, key string) (int64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pruneLocked(key, now))), nil
}

func (s *memoryStore) Remove(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	delete(set, member)
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	s.once.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}

// pruneLocked drops expired members of key and returns what remains, or nil
// when the key no longer exists.
func (s *memoryStore) pruneLocked(key string, now time.Time) map[string]time.Time {
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for member, expiry := range set {
		if !now.Before(expiry) {
			delete(set, member)
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
		return nil
	}
	return set
}

func (s *memoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.sets {
		s.pruneLocked(key, now)
	}
}

func (s *memoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// keyCount is used by tests to observe sweeping.
func (s *memoryStore) keyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}
