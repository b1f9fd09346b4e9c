package result

import (
	"context"
	"sync"
	"time"

	"github.com/batchline/batchline/internal/apperror"
	"github.com/batchline/batchline/internal/batch"
)

// MemoryStore keeps results in memory and evicts them after a TTL so
// sustained job submission does not leak. Expired entries are swept
// opportunistically on access; there is no background goroutine to manage.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
}

type memEntry struct {
	res      batch.Result
	storedAt time.Time
}

// NewMemoryStore creates a store evicting entries older than ttl. A
// non-positive ttl disables eviction; callers doing that own the growth.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memEntry),
	}
}

func (s *MemoryStore) Put(_ context.Context, res *batch.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	cp := *res
	cp.Errors = make([]batch.ItemError, len(res.Errors))
	copy(cp.Errors, res.Errors)
	if res.EndTime != nil {
		t := *res.EndTime
		cp.EndTime = &t
	}
	s.entries[res.BatchID] = memEntry{res: cp, storedAt: s.now()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, batchID string) (*batch.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	entry, ok := s.entries[batchID]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "result not found: "+batchID)
	}
	cp := entry.res
	return &cp, nil
}

// Len reports how many results are currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

func (s *MemoryStore) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, entry := range s.entries {
		if entry.storedAt.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}
