package dedupe

import (
	"sort"
	"sync"
	"time"
)

// Store holds the records observed inside the retention window. All methods
// must be safe for concurrent use.
type Store interface {
	// Insert adds rec unless a record with the same ID is already present.
	Insert(rec MessageRecord) bool
	// SnapshotWindow returns a copy of the records younger than maxAge,
	// ordered by SentAt (oldest first, insertion order on ties).
	SnapshotWindow(now time.Time, maxAge time.Duration) []MessageRecord
	// Recent returns a copy of every record, newest first.
	Recent() []MessageRecord
	// RemoveMany drops the given IDs and returns how many were present.
	RemoveMany(ids []string) int
	// Compact drops every record sent at or before cutoff plus the given
	// IDs in one step. A zero cutoff ages out nothing. It returns the
	// number aged out and the number removed by ID.
	Compact(cutoff time.Time, ids []string) (aged, removed int)
	Len() int
}

// MemoryStore is the in-process Store. A single mutex guards the slice.
type MemoryStore struct {
	mu      sync.RWMutex
	records []MessageRecord
	ids     map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Insert(rec MessageRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[rec.ID]; exists {
		return false
	}
	s.ids[rec.ID] = struct{}{}
	s.records = append(s.records, rec)
	return true
}

func (s *MemoryStore) SnapshotWindow(now time.Time, maxAge time.Duration) []MessageRecord {
	s.mu.RLock()
	out := make([]MessageRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Age(now) < maxAge {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

func (s *MemoryStore) Recent() []MessageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MessageRecord, len(s.records))
	for i, rec := range s.records {
		out[len(s.records)-1-i] = rec
	}
	return out
}

func (s *MemoryStore) RemoveMany(ids []string) int {
	_, removed := s.Compact(time.Time{}, ids)
	return removed
}

func (s *MemoryStore) Compact(cutoff time.Time, ids []string) (aged, removed int) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if _, ok := drop[rec.ID]; ok {
			removed++
			delete(s.ids, rec.ID)
			continue
		}
		if !cutoff.IsZero() && !rec.SentAt.After(cutoff) {
			aged++
			delete(s.ids, rec.ID)
			continue
		}
		kept = append(kept, rec)
	}
	// Clear the tail so dropped records can be collected.
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = MessageRecord{}
	}
	s.records = kept
	return aged, removed
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
