package jobmanager

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a Store kept in process memory. Records do not survive a
// restart; it is meant for tests and ephemeral managers.
type MemoryStore struct {
	mu      sync.Mutex
	seq     int64
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Put stores a copy of r and assigns its Seq.
func (s *MemoryStore) Put(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return ErrDuplicateJob
	}
	s.seq++
	r.Seq = s.seq
	s.records[r.ID] = r.Clone()
	return nil
}

// Get returns a copy of the record, or ErrJobNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return r.Clone(), nil
}

// Delete removes the record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.records, id)
	return nil
}

// IncrementAttempt bumps the attempt counter and returns the new value.
func (s *MemoryStore) IncrementAttempt(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return 0, ErrJobNotFound
	}
	r.Attempt++
	return r.Attempt, nil
}

// Reschedule records the next run time and the last error.
func (s *MemoryStore) Reschedule(_ context.Context, id string, nextRunAt int64, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrJobNotFound
	}
	r.NextRunAt = nextRunAt
	r.LastError = lastErr
	return nil
}

// IDs lists stored records in submission order.
func (s *MemoryStore) IDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids, nil
}
