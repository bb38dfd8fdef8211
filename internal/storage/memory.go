package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]Record
	nextID  int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]Record),
		nextID:  1,
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, query string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Record{
		ID:        s.nextID,
		Query:     query,
		CreatedAt: s.now().UTC(),
	}
	s.nextID++
	s.records[r.ID] = r
	return cloneRecord(r), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, out Outcome) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	answer := out.Answer
	r.Answer = &answer
	r.Results = cloneResults(out.Results)
	if r.Results == nil {
		r.Results = []Result{}
	}
	r.CompletionDegraded = out.Degraded
	s.records[id] = r
	return cloneRecord(r), nil
}

func (s *MemoryStore) ListRecent(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	s.mu.RLock()
	all := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	for i := range all {
		all[i] = cloneRecord(all[i])
	}
	return all, nil
}

func (s *MemoryStore) Close() error { return nil }
