// Package ingest copies build summaries from a build provider into the
// searchable build store, and exposes a provider as a live build source.
package ingest

import (
	"context"
	"fmt"
	"time"

	"buildtriage/src/contracts"
	"buildtriage/src/logger"
	"buildtriage/src/provider"
	"buildtriage/src/query"
	"buildtriage/src/store"
)

// SyncOptions selects the builds to copy.
type SyncOptions struct {
	Organization string
	Project      string
	Definition   string
	// Top caps the number of builds listed; 0 uses the provider default.
	Top int
	// Since drops builds queued before it.
	Since time.Time
}

// SyncResult counts what a sync did.
type SyncResult struct {
	Listed int
	Stored int
	Failed int
}

// Syncer copies provider builds into a BuildStore.
type Syncer struct {
	builds provider.BuildLister
	store  store.BuildStore
	logger logger.Logger
}

// NewSyncer creates a syncer.
func NewSyncer(builds provider.BuildLister, st store.BuildStore, log logger.Logger) *Syncer {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Syncer{builds: builds, store: st, logger: log}
}

// Sync lists builds and upserts each one. A build that fails to store is
// logged and counted; listing errors abort the sync.
func (s *Syncer) Sync(ctx context.Context, opts SyncOptions) (SyncResult, error) {
	s.logger.Info("[Syncer] Listing builds for %s/%s (definition %q)", opts.Organization, opts.Project, opts.Definition)

	builds, err := s.builds.ListBuilds(ctx, provider.ListOptions{
		Organization: opts.Organization,
		Project:      opts.Project,
		Definition:   opts.Definition,
		Top:          opts.Top,
		MinTime:      opts.Since,
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("list builds: %w", err)
	}

	res := SyncResult{Listed: len(builds)}
	for _, b := range builds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.store.UpsertBuild(ctx, b); err != nil {
			s.logger.Error("[Syncer] Failed to store build %s: %v", b.Key, err)
			res.Failed++
			continue
		}
		res.Stored++
	}

	s.logger.Info("[Syncer] Stored %d of %d builds", res.Stored, res.Listed)
	return res, nil
}

// LiveSource answers build searches straight from a provider, for runs
// without a synced store.
type LiveSource struct {
	Builds       provider.BuildLister
	Organization string
	Project      string
}

// SearchBuilds lists builds for the request's definition and applies the
// remaining predicates locally. Results are newest first whatever order the
// provider lists them in.
func (l LiveSource) SearchBuilds(ctx context.Context, req *query.BuildsRequest) ([]contracts.Build, error) {
	limit := req.Limit(query.DefaultBuildCount)
	opts := provider.ListOptions{
		Organization: l.Organization,
		Project:      l.Project,
		Definition:   req.Definition,
	}
	// Only listings the provider filters itself can be capped at the source.
	// A definition name is matched after listing, so capping it would drop
	// builds of that definition behind newer builds of others.
	if _, byID := req.DefinitionID(); onlyDefinition(req) && (byID || req.Definition == "") {
		opts.Top = limit
	}
	if req.Started != nil {
		from, _ := req.Started.Range(query.Now())
		opts.MinTime = from
	}

	builds, err := l.Builds.ListBuilds(ctx, opts)
	if err != nil {
		return nil, err
	}
	matched := req.Filter(builds)
	store.SortBuilds(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func onlyDefinition(req *query.BuildsRequest) bool {
	return req.Repository == "" && req.Kind == "" && req.Result == "" &&
		req.TargetBranch == "" && req.Started == nil && req.Finished == nil
}
