package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"buildtriage/src/broker"
	"buildtriage/src/config"
	"buildtriage/src/contracts"
	"buildtriage/src/github"
	"buildtriage/src/issuebody"
	"buildtriage/src/logger"
	"buildtriage/src/query"
	"buildtriage/src/store"
)

// State is the phase a rule is in.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateRecording
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateRecording:
		return "recording"
	case StateReporting:
		return "reporting"
	default:
		return "idle"
	}
}

// BuildSource selects the builds a rule searches.
type BuildSource interface {
	SearchBuilds(ctx context.Context, req *query.BuildsRequest) ([]contracts.Build, error)
}

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	// Tracker receives report updates. Nil disables issue updates.
	Tracker github.IssueTracker
	// Publisher receives match events and rule summaries.
	Publisher broker.Publisher
	// BuildURL links builds in reports.
	BuildURL func(contracts.BuildKey) string
	// Parallelism bounds how many rules run at once.
	Parallelism int
	// Timeout bounds each issue tracker call.
	Timeout time.Duration
	Logger  logger.Logger
	Now     func() time.Time
}

// Orchestrator runs triage rules: find matches, record new ones, refresh
// the tracking issue.
type Orchestrator struct {
	builds  BuildSource
	store   store.TriageStore
	matcher *Matcher
	opts    Options
	log     logger.Logger

	mu     sync.Mutex
	states map[string]State
}

// NewOrchestrator composes the triage pipeline.
func NewOrchestrator(builds BuildSource, st store.TriageStore, matcher *Matcher, opts Options) *Orchestrator {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewSilentLogger()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		builds:  builds,
		store:   st,
		matcher: matcher,
		opts:    opts,
		log:     opts.Logger,
		states:  make(map[string]State),
	}
}

// State returns the current phase of the named rule.
func (o *Orchestrator) State(rule string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[rule]
}

func (o *Orchestrator) setState(rule string, s State) {
	o.mu.Lock()
	o.states[rule] = s
	o.mu.Unlock()
	o.log.Debug("[Orchestrator] Rule %s: %s", rule, s)
}

// RunAll runs rules concurrently and returns one summary per rule in rule
// order. A failing rule never stops the others. An empty requestID gets a
// generated one.
func (o *Orchestrator) RunAll(ctx context.Context, requestID string, rules []config.Rule) []contracts.RuleSummary {
	if requestID == "" {
		requestID = uuid.New().String()
	}

	summaries := make([]contracts.RuleSummary, len(rules))
	var g errgroup.Group
	g.SetLimit(o.opts.Parallelism)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				summaries[i] = contracts.RuleSummary{RequestID: requestID, RuleName: rule.Name, Error: err.Error()}
				return nil
			}
			summaries[i] = o.Run(ctx, requestID, rule)
			return nil
		})
	}
	_ = g.Wait()
	return summaries
}

// Run executes one rule cycle. Errors are reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, requestID string, rule config.Rule) contracts.RuleSummary {
	summary := contracts.RuleSummary{RequestID: requestID, RuleName: rule.Name}
	defer o.setState(rule.Name, StateIdle)

	o.setState(rule.Name, StateSearching)
	res, err := o.search(ctx, rule)
	if err != nil {
		o.log.Error("[Orchestrator] Rule %s: search failed: %v", rule.Name, err)
		summary.Error = err.Error()
		o.publishSummary(ctx, summary)
		return summary
	}
	summary.BuildsScanned = res.BuildsScanned
	summary.BuildsSkipped = len(res.Skipped)
	summary.Matches = len(res.Matches)
	if err := res.Err(); err != nil {
		summary.Error = err.Error()
	}

	o.setState(rule.Name, StateRecording)
	newRecords, err := o.record(ctx, requestID, rule, res.Matches)
	summary.NewRecords = newRecords
	if err != nil {
		o.log.Error("[Orchestrator] Rule %s: recording stopped: %v", rule.Name, err)
		summary.Error = err.Error()
	}

	if rule.UpdateIssue && o.opts.Tracker != nil && ctx.Err() == nil {
		o.setState(rule.Name, StateReporting)
		updated, err := o.report(ctx, rule)
		if err != nil {
			o.log.Error("[Orchestrator] Rule %s: issue %s not updated: %v", rule.Name, rule.Issue, err)
		}
		summary.IssueUpdated = updated
	}

	o.log.Info("[Orchestrator] Rule %s: %d builds scanned, %d skipped, %d matches, %d new",
		rule.Name, summary.BuildsScanned, summary.BuildsSkipped, summary.Matches, summary.NewRecords)
	o.publishSummary(ctx, summary)
	return summary
}

func (o *Orchestrator) search(ctx context.Context, rule config.Rule) (MatchResult, error) {
	builds, err := o.builds.SearchBuilds(ctx, rule.Builds)
	if err != nil {
		return MatchResult{}, fmt.Errorf("search builds %q: %w", rule.Builds, err)
	}
	filter, err := rule.Timeline.Filter()
	if err != nil {
		return MatchResult{}, fmt.Errorf("timeline query %q: %w", rule.Timeline, err)
	}
	return o.matcher.Match(ctx, builds, filter), nil
}

// record stores matches one at a time so the new-record count is exact.
// It stops early only on cancellation.
func (o *Orchestrator) record(ctx context.Context, requestID string, rule config.Rule, matches []Match) (int, error) {
	created := 0
	var errs []error
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		rec := contracts.TriageRecord{
			Build:          m.Build.Key,
			Reason:         rule.Reason,
			IssueURI:       rule.IssueURI,
			DefinitionName: m.Build.DefinitionName,
			JobName:        m.JobName,
			Message:        m.Message,
			BuildStarted:   m.Build.ActivityTime(),
			CreatedAt:      o.opts.Now(),
		}
		isNew, err := o.store.RecordIfAbsent(ctx, rec)
		if err != nil {
			o.log.Error("[Orchestrator] Rule %s: record %s: %v", rule.Name, rec.Build, err)
			errs = append(errs, err)
			continue
		}
		if !isNew {
			continue
		}
		created++
		o.publishMatch(ctx, requestID, rule, m, rec)
	}
	return created, errors.Join(errs...)
}

// report rewrites the issue's marker region. A body without markers is
// left alone.
func (o *Orchestrator) report(ctx context.Context, rule config.Rule) (bool, error) {
	records, err := o.store.RecordsForIssue(ctx, rule.IssueURI)
	if err != nil {
		return false, fmt.Errorf("load records: %w", err)
	}
	fragment := Report{BuildURL: o.opts.BuildURL}.Render(records, o.opts.Now())

	getCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	body, err := o.opts.Tracker.GetIssueBody(getCtx, rule.Issue)
	cancel()
	if err != nil {
		return false, err
	}

	updated, err := issuebody.Replace(body, fragment)
	if err != nil {
		return false, err
	}
	if updated == body {
		return false, nil
	}

	putCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()
	if err := o.opts.Tracker.UpdateIssueBody(putCtx, rule.Issue, updated); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) publishMatch(ctx context.Context, requestID string, rule config.Rule, m Match, rec contracts.TriageRecord) {
	if o.opts.Publisher == nil {
		return
	}
	event := contracts.TriageMatchEvent{
		RequestID: requestID,
		RuleName:  rule.Name,
		Record:    rec,
		RecordID:  m.RecordID,
		JobName:   m.JobName,
		Timestamp: o.opts.Now().Format(time.RFC3339),
	}
	if err := broker.PublishJSON(ctx, o.opts.Publisher, contracts.TopicTriageMatches, rec.IssueURI, event); err != nil {
		o.log.Warn("[Orchestrator] Failed to publish match for %s: %v", rec.Build, err)
	}
}

func (o *Orchestrator) publishSummary(ctx context.Context, s contracts.RuleSummary) {
	if o.opts.Publisher == nil {
		return
	}
	if err := broker.PublishJSON(ctx, o.opts.Publisher, contracts.TopicRuleSummaries, s.RuleName, s); err != nil {
		o.log.Warn("[Orchestrator] Failed to publish summary for %s: %v", s.RuleName, err)
	}
}
