package buildkite

import (
	"context"
	"fmt"
	"strconv"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
)

func init() {
	// Register the Buildkite provider factory
	provider.Register("buildkite", func(opts provider.Options) (provider.Provider, error) {
		if opts.Token == "" {
			return nil, provider.MissingToken("Buildkite", "BUILDKITE_API_TOKEN")
		}
		p := NewProvider(opts.Token)
		if opts.BaseURL != "" {
			p.client.baseURL = opts.BaseURL
		}
		return p, nil
	})
}

// Provider maps Buildkite builds onto flat timelines: every command job is
// a root Job record. Build keys use the organization slug, the pipeline slug
// and the build number.
type Provider struct {
	client *Client
}

// NewProvider creates a Buildkite provider with API token
func NewProvider(token string) *Provider {
	return &Provider{
		client: NewClient(token),
	}
}

// Name returns "buildkite"
func (p *Provider) Name() string {
	return "buildkite"
}

// FetchTimeline returns one Job record per command job. Buildkite retries
// jobs in place, so the attempt is carried per record and key.Attempt only
// selects jobs of that attempt when set.
func (p *Provider) FetchTimeline(ctx context.Context, key contracts.BuildAttemptKey) ([]contracts.TimelineRecord, bool, error) {
	build, err := p.client.GetBuild(ctx, key.Organization, key.Project, key.Number)
	if err != nil {
		return nil, false, err
	}

	var records []contracts.TimelineRecord
	for _, job := range build.Jobs {
		if job.Type != "script" {
			continue
		}
		attempt := job.RetriesCount + 1
		if key.Attempt > 0 && attempt != key.Attempt {
			continue
		}

		rec := contracts.TimelineRecord{
			ID:         job.ID,
			Name:       jobName(job),
			RecordType: contracts.RecordTypeJob,
			Result:     mapState(job.State, job.SoftFailed),
			Attempt:    attempt,
		}
		if job.ExitStatus != nil && *job.ExitStatus != 0 {
			rec.Issues = []contracts.TimelineIssue{{
				Type:    "error",
				Message: fmt.Sprintf("Job %q failed with exit status %d", rec.Name, *job.ExitStatus),
			}}
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, false, nil
	}
	return records, true, nil
}

// ListBuilds lists builds of the pipeline named by opts.Project.
func (p *Provider) ListBuilds(ctx context.Context, opts provider.ListOptions) ([]contracts.Build, error) {
	raw, err := p.client.ListBuilds(ctx, opts.Organization, opts.Project, opts.Top, opts.MinTime)
	if err != nil {
		return nil, err
	}

	builds := make([]contracts.Build, 0, len(raw))
	for _, b := range raw {
		build := contracts.Build{
			Key:          contracts.BuildKey{Organization: opts.Organization, Project: opts.Project, Number: b.Number},
			Result:       mapState(b.State, false),
			TargetBranch: b.Branch,
			QueueTime:    b.CreatedAt,
			StartTime:    b.StartedAt,
			FinishTime:   b.FinishedAt,
			WebURL:       b.WebURL,
			Kind:         contracts.BuildKindRolling,
		}
		if b.Pipeline != nil {
			build.DefinitionName = b.Pipeline.Slug
			build.Repository = b.Pipeline.Repository
		}
		if b.Source == "ui" || b.Source == "api" {
			build.Kind = contracts.BuildKindManual
		}
		if b.PullRequest != nil && b.PullRequest.ID != "" {
			build.Kind = contracts.BuildKindPullRequest
			build.PullRequest, _ = strconv.Atoi(b.PullRequest.ID)
			build.TargetBranch = b.PullRequest.Base
		}
		builds = append(builds, build)
	}
	return builds, nil
}

func jobName(job Job) string {
	if job.Name != nil && *job.Name != "" {
		return *job.Name
	}
	return job.ID
}

func mapState(state string, softFailed bool) contracts.TaskResult {
	switch state {
	case "passed":
		return contracts.ResultSucceeded
	case "failed", "timed_out":
		if softFailed {
			return contracts.ResultSucceededWithIssues
		}
		return contracts.ResultFailed
	case "canceled", "canceling":
		return contracts.ResultCanceled
	case "skipped", "not_run":
		return contracts.ResultSkipped
	case "broken", "expired":
		return contracts.ResultAbandoned
	default:
		return contracts.ResultNone
	}
}
