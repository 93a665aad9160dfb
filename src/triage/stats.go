package triage

import (
	"context"

	"golang.org/x/sync/errgroup"

	"buildtriage/src/contracts"
	"buildtriage/src/timeline"
)

// JobStats tallies per-job pass rates over the latest attempt of each
// build. Builds that cannot be fetched are skipped like in Match.
func (m *Matcher) JobStats(ctx context.Context, builds []contracts.Build) (*timeline.JobStats, []SkippedBuild) {
	trees := make([][]*timeline.Tree, len(builds))
	errs := make([]error, len(builds))

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for i, b := range builds {
		i, b := i, b
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			trees[i], errs[i] = m.Trees(fetchCtx, contracts.BuildAttemptKey{BuildKey: b.Key})
			return nil
		})
	}
	_ = g.Wait()

	stats := timeline.NewJobStats()
	var skipped []SkippedBuild
	for i, b := range builds {
		if errs[i] != nil {
			m.log.Warn("[Matcher] Skipping build %s: %v", b.Key, errs[i])
			skipped = append(skipped, SkippedBuild{Build: b.Key, Err: errs[i]})
			continue
		}
		stats.AddBuild(b.Key, trees[i])
	}
	return stats, skipped
}
