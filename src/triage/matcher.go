// Package triage finds known failures in build timelines, records them once
// per (build, reason, issue) and keeps the tracking issue's report current.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"buildtriage/src/contracts"
	"buildtriage/src/logger"
	"buildtriage/src/provider"
	"buildtriage/src/query"
	"buildtriage/src/timeline"
)

const (
	DefaultParallelism  = 8
	DefaultFetchTimeout = 30 * time.Second

	// maxSubTimelineDepth bounds how far detailsRef chains are followed.
	maxSubTimelineDepth = 3
)

// Match is one timeline record that satisfied a timeline query.
type Match struct {
	Build      contracts.Build
	Attempt    int
	RecordID   string
	RecordName string
	RecordType string
	JobName    string
	// Message is the sanitized issue message that matched.
	Message string
}

// SkippedBuild is a build whose timeline could not be searched.
type SkippedBuild struct {
	Build contracts.BuildKey
	Err   error
}

// MatchResult holds the matches across a set of builds, in build order and
// then timeline walk order.
type MatchResult struct {
	Matches       []Match
	BuildsScanned int
	Skipped       []SkippedBuild
}

// Err summarizes the builds skipped because their timeline could not be
// fetched or built. A timeline that is not available yet is skipped without
// being an error. It returns nil when no such build was skipped.
func (r MatchResult) Err() error {
	var errs []error
	for _, s := range r.Skipped {
		if errors.Is(s.Err, provider.ErrTimelineUnavailable) {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Build, s.Err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d builds skipped: %w", len(errs), errors.Join(errs...))
}

// MatcherOptions tunes timeline fetching.
type MatcherOptions struct {
	// Parallelism bounds concurrent timeline fetches.
	Parallelism int
	// FetchTimeout bounds the fetch of one build's timelines.
	FetchTimeout time.Duration
	Logger       logger.Logger
}

// Matcher runs timeline queries across builds.
type Matcher struct {
	timelines   provider.TimelineProvider
	parallelism int
	timeout     time.Duration
	log         logger.Logger
}

// NewMatcher creates a matcher reading timelines from p. When p also
// implements provider.SubTimelineFetcher, nested timelines are searched too.
func NewMatcher(p provider.TimelineProvider, opts MatcherOptions) *Matcher {
	m := &Matcher{
		timelines:   p,
		parallelism: opts.Parallelism,
		timeout:     opts.FetchTimeout,
		log:         opts.Logger,
	}
	if m.parallelism <= 0 {
		m.parallelism = DefaultParallelism
	}
	if m.timeout <= 0 {
		m.timeout = DefaultFetchTimeout
	}
	if m.log == nil {
		m.log = logger.NewSilentLogger()
	}
	return m
}

type buildOutcome struct {
	matches []Match
	err     error
}

// Match searches the latest attempt of every build. A build that cannot be
// fetched or whose timeline is malformed is skipped; the rest are still
// searched. Cancelling ctx skips the builds not yet started.
func (m *Matcher) Match(ctx context.Context, builds []contracts.Build, filter *query.TimelineFilter) MatchResult {
	outcomes := make([]buildOutcome, len(builds))

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for i, b := range builds {
		i, b := i, b
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].err = err
				return nil
			}
			outcomes[i].matches, outcomes[i].err = m.matchBuild(ctx, b, filter)
			return nil
		})
	}
	_ = g.Wait()

	var res MatchResult
	for i, o := range outcomes {
		if o.err != nil {
			m.log.Warn("[Matcher] Skipping build %s: %v", builds[i].Key, o.err)
			res.Skipped = append(res.Skipped, SkippedBuild{Build: builds[i].Key, Err: o.err})
			continue
		}
		res.BuildsScanned++
		res.Matches = append(res.Matches, o.matches...)
	}
	return res
}

func (m *Matcher) matchBuild(ctx context.Context, b contracts.Build, filter *query.TimelineFilter) ([]Match, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	trees, err := m.Trees(ctx, contracts.BuildAttemptKey{BuildKey: b.Key})
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, t := range trees {
		t.Walk(func(n *timeline.Node) bool {
			jobName := n.JobName()
			if msg, ok := filter.Match(n.Record, jobName); ok {
				matches = append(matches, Match{
					Build:      b,
					Attempt:    t.Attempt.Attempt,
					RecordID:   n.Record.ID,
					RecordName: n.Record.Name,
					RecordType: n.Record.RecordType,
					JobName:    jobName,
					Message:    msg,
				})
			}
			return true
		})
	}
	return matches, nil
}

// Trees fetches one attempt's timeline and, when supported, the nested
// timelines its records reference. The first tree is the attempt's own.
// A missing timeline returns provider.ErrTimelineUnavailable.
func (m *Matcher) Trees(ctx context.Context, key contracts.BuildAttemptKey) ([]*timeline.Tree, error) {
	records, ok, err := m.timelines.FetchTimeline(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, provider.ErrTimelineUnavailable
	}

	if key.Attempt == 0 {
		key.Attempt = latestAttempt(records)
	}
	root, err := m.build(key, records)
	if err != nil {
		return nil, err
	}
	trees := []*timeline.Tree{root}

	sub, ok := m.timelines.(provider.SubTimelineFetcher)
	if !ok {
		return trees, nil
	}

	seen := map[string]bool{}
	frontier := []*timeline.Tree{root}
	for depth := 0; depth < maxSubTimelineDepth && len(frontier) > 0; depth++ {
		var next []*timeline.Tree
		for _, t := range frontier {
			for _, ref := range detailRefs(t) {
				if seen[ref.ID] {
					continue
				}
				seen[ref.ID] = true

				subRecords, found, err := sub.FetchSubTimeline(ctx, key.BuildKey, ref)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					m.log.Warn("[Matcher] Sub-timeline %s of %s unavailable: %v", ref.ID, key, err)
					continue
				}
				if !found {
					continue
				}
				st, err := m.build(key, subRecords)
				if err != nil {
					m.log.Warn("[Matcher] Sub-timeline %s of %s: %v", ref.ID, key, err)
					continue
				}
				next = append(next, st)
			}
		}
		trees = append(trees, next...)
		frontier = next
	}
	return trees, nil
}

func (m *Matcher) build(key contracts.BuildAttemptKey, records []contracts.TimelineRecord) (*timeline.Tree, error) {
	t, err := timeline.Build(key, records)
	if err != nil {
		return nil, err
	}
	for _, w := range t.Warnings {
		m.log.Warn("[Matcher] %s: %s", key, w)
	}
	return t, nil
}

func detailRefs(t *timeline.Tree) []contracts.TimelineDetailsRef {
	var refs []contracts.TimelineDetailsRef
	t.Walk(func(n *timeline.Node) bool {
		if n.Record.Details != nil {
			refs = append(refs, *n.Record.Details)
		}
		return true
	})
	return refs
}

func latestAttempt(records []contracts.TimelineRecord) int {
	latest := 1
	for _, r := range records {
		if r.Attempt > latest {
			latest = r.Attempt
		}
	}
	return latest
}
