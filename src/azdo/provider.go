package azdo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
)

func init() {
	provider.Register("azdo", func(opts provider.Options) (provider.Provider, error) {
		p := NewProvider(opts.Token)
		if opts.BaseURL != "" {
			p.client.WithBaseURL(opts.BaseURL)
		}
		return p, nil
	})
}

// Provider implements the provider capabilities for Azure DevOps.
type Provider struct {
	client *Client
}

// NewProvider creates an Azure DevOps provider. The token may be empty.
func NewProvider(token string) *Provider {
	return &Provider{client: NewClient(token)}
}

// Name returns "azdo"
func (p *Provider) Name() string {
	return "azdo"
}

// FetchTimeline returns the latest timeline, or the timeline of an earlier
// attempt located through the previousAttempts references of the latest one.
func (p *Provider) FetchTimeline(ctx context.Context, key contracts.BuildAttemptKey) ([]contracts.TimelineRecord, bool, error) {
	b := key.BuildKey
	latest, err := p.client.GetTimeline(ctx, b.Organization, b.Project, b.Number)
	if err != nil {
		return nil, false, err
	}
	if latest == nil {
		return nil, false, nil
	}

	if key.Attempt == 0 || key.Attempt == LatestAttempt(latest) {
		return convertRecords(latest.Records), true, nil
	}

	timelineID, ok := previousTimelineID(latest, key.Attempt)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s has no attempt %d", provider.ErrBuildNotFound, b, key.Attempt)
	}

	previous, err := p.client.GetTimelineByID(ctx, b.Organization, b.Project, b.Number, timelineID, 0)
	if err != nil {
		return nil, false, err
	}
	if previous == nil {
		return nil, false, nil
	}
	return convertRecords(previous.Records), true, nil
}

// FetchSubTimeline fetches a nested timeline referenced by a record's details.
func (p *Provider) FetchSubTimeline(ctx context.Context, build contracts.BuildKey, ref contracts.TimelineDetailsRef) ([]contracts.TimelineRecord, bool, error) {
	t, err := p.client.GetTimelineByID(ctx, build.Organization, build.Project, build.Number, ref.ID, ref.ChangeID)
	if err != nil {
		return nil, false, err
	}
	if t == nil {
		return nil, false, nil
	}
	return convertRecords(t.Records), true, nil
}

// ListBuilds lists builds newest first. A non-numeric definition is matched
// by name after listing, since the API only filters by definition ID.
func (p *Provider) ListBuilds(ctx context.Context, opts provider.ListOptions) ([]contracts.Build, error) {
	params := ListBuildsParams{Top: opts.Top, MinTime: opts.MinTime}
	byName := ""
	if opts.Definition != "" {
		if id, err := strconv.Atoi(opts.Definition); err == nil {
			params.Definitions = []int{id}
		} else {
			byName = opts.Definition
		}
	}

	raw, err := p.client.ListBuilds(ctx, opts.Organization, opts.Project, params)
	if err != nil {
		return nil, err
	}

	builds := make([]contracts.Build, 0, len(raw))
	for _, b := range raw {
		build := convertBuild(opts.Organization, opts.Project, b)
		if byName != "" && !strings.EqualFold(build.DefinitionName, byName) {
			continue
		}
		builds = append(builds, build)
	}
	return builds, nil
}

// LatestAttempt is the highest record attempt in a timeline, at least 1.
func LatestAttempt(t *Timeline) int {
	latest := 1
	for _, r := range t.Records {
		if r.Attempt > latest {
			latest = r.Attempt
		}
	}
	return latest
}

func previousTimelineID(t *Timeline, attempt int) (string, bool) {
	for _, r := range t.Records {
		for _, prev := range r.PreviousAttempts {
			if prev.Attempt == attempt && prev.TimelineID != "" {
				return prev.TimelineID, true
			}
		}
	}
	return "", false
}

func convertRecords(records []Record) []contracts.TimelineRecord {
	out := make([]contracts.TimelineRecord, 0, len(records))
	for _, r := range records {
		rec := contracts.TimelineRecord{
			ID:         r.ID,
			ParentID:   str(r.ParentID),
			Name:       str(r.Name),
			RecordType: str(r.Type),
			Result:     contracts.ParseTaskResult(str(r.Result)),
			Attempt:    r.Attempt,
		}
		for _, issue := range r.Issues {
			rec.Issues = append(rec.Issues, contracts.TimelineIssue{
				Type:     str(issue.Type),
				Category: str(issue.Category),
				Message:  str(issue.Message),
			})
		}
		if r.Details != nil && r.Details.ID != "" {
			rec.Details = &contracts.TimelineDetailsRef{ID: r.Details.ID, ChangeID: r.Details.ChangeID}
		}
		out = append(out, rec)
	}
	return out
}

func convertBuild(org, project string, b Build) contracts.Build {
	build := contracts.Build{
		Key:        contracts.BuildKey{Organization: org, Project: project, Number: b.ID},
		Kind:       buildKind(str(b.Reason)),
		Result:     contracts.ParseTaskResult(str(b.Result)),
		StartTime:  b.StartTime,
		FinishTime: b.FinishTime,
	}
	if b.QueueTime != nil {
		build.QueueTime = *b.QueueTime
	}
	if b.Definition != nil {
		build.DefinitionID = b.Definition.ID
		build.DefinitionName = str(b.Definition.Name)
	}
	if b.Repository != nil {
		build.Repository = str(b.Repository.Name)
	}
	if web, ok := b.Links["web"]; ok {
		build.WebURL = web.Href
	}

	build.TargetBranch = str(b.SourceBranch)
	if build.Kind == contracts.BuildKindPullRequest {
		if target := b.TriggerInfo["pr.targetBranch"]; target != "" {
			build.TargetBranch = target
		}
		build.PullRequest, _ = strconv.Atoi(b.TriggerInfo["pr.number"])
	}
	build.TargetBranch = strings.TrimPrefix(build.TargetBranch, "refs/heads/")
	return build
}

func buildKind(reason string) contracts.BuildKind {
	switch strings.ToLower(reason) {
	case "pullrequest":
		return contracts.BuildKindPullRequest
	case "manual":
		return contracts.BuildKindManual
	default:
		return contracts.BuildKindRolling
	}
}
