// Package store persists triage records and the searchable build list.
package store

import (
	"context"
	"sort"

	"buildtriage/src/contracts"
	"buildtriage/src/query"
)

// TriageStore records which builds failed for which reason under which
// tracking issue. Records are immutable once created.
type TriageStore interface {
	// Exists reports whether a record with the given key exists.
	Exists(ctx context.Context, key contracts.TriageKey) (bool, error)

	// RecordIfAbsent creates the record unless one with the same key exists.
	// It returns true only when a new record was created. A uniqueness
	// conflict with a concurrent writer is reported as false, not an error.
	RecordIfAbsent(ctx context.Context, rec contracts.TriageRecord) (bool, error)

	// RecordsForIssue returns every record for the issue, newest build first.
	RecordsForIssue(ctx context.Context, issueURI string) ([]contracts.TriageRecord, error)
}

// BuildStore holds build summaries for search.
type BuildStore interface {
	// UpsertBuild inserts or refreshes a build summary.
	UpsertBuild(ctx context.Context, build contracts.Build) error

	// SearchBuilds returns the builds matching req, newest first, capped at
	// req.Limit(query.DefaultBuildCount).
	SearchBuilds(ctx context.Context, req *query.BuildsRequest) ([]contracts.Build, error)
}

// Store is the full persistence capability.
type Store interface {
	TriageStore
	BuildStore

	// Close closes the store connection
	Close() error
}

// Open selects the backing store: Postgres when a DSN is given, otherwise
// SQLite at sqlitePath.
func Open(ctx context.Context, postgresDSN, sqlitePath string) (Store, error) {
	if postgresDSN != "" {
		s, err := NewPostgresStore(ctx, postgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(ctx, sqlitePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SortBuilds orders builds newest first, breaking ties by number.
func SortBuilds(builds []contracts.Build) {
	sort.SliceStable(builds, func(i, j int) bool {
		ti, tj := builds[i].ActivityTime(), builds[j].ActivityTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return builds[i].Key.Number > builds[j].Key.Number
	})
}

// sortRecords orders records newest build first.
func sortRecords(records []contracts.TriageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].BuildStarted, records[j].BuildStarted
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].Build.Number > records[j].Build.Number
	})
}
