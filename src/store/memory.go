package store

import (
	"context"
	"sync"
	"time"

	"buildtriage/src/contracts"
	"buildtriage/src/query"
)

// MemoryStore is an in-memory implementation of Store.
// Useful for testing and one-shot CLI runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[contracts.TriageKey]contracts.TriageRecord
	builds  map[contracts.BuildKey]contracts.Build
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[contracts.TriageKey]contracts.TriageRecord),
		builds:  make(map[contracts.BuildKey]contracts.Build),
	}
}

func (s *MemoryStore) Exists(ctx context.Context, key contracts.TriageKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[key]
	return ok, nil
}

func (s *MemoryStore) RecordIfAbsent(ctx context.Context, rec contracts.TriageRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[key] = rec
	return true, nil
}

func (s *MemoryStore) RecordsForIssue(ctx context.Context, issueURI string) ([]contracts.TriageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.TriageRecord
	for key, rec := range s.records {
		if key.IssueURI == issueURI {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) UpsertBuild(ctx context.Context, build contracts.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builds[build.Key] = build
	return nil
}

func (s *MemoryStore) SearchBuilds(ctx context.Context, req *query.BuildsRequest) ([]contracts.Build, error) {
	s.mu.RLock()
	all := make([]contracts.Build, 0, len(s.builds))
	for _, b := range s.builds {
		all = append(all, b)
	}
	s.mu.RUnlock()

	SortBuilds(all)
	matched := req.Filter(all)
	if limit := req.Limit(query.DefaultBuildCount); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
