package githubactions

import (
	"context"
	"fmt"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
)

func init() {
	// Register the GitHub Actions provider factory
	provider.Register("github", func(opts provider.Options) (provider.Provider, error) {
		if opts.Token == "" {
			return nil, provider.MissingToken("GitHub", "GITHUB_TOKEN")
		}
		p := NewProvider(opts.Token)
		if opts.BaseURL != "" {
			p.client.baseURL = opts.BaseURL
		}
		return p, nil
	})
}

// Provider maps workflow runs onto timelines: each job becomes a Job record
// and each of its steps a Task record beneath it. Check run annotations
// become the job's issues. Build keys use the owner as organization, the
// repository as project and the run ID as number.
type Provider struct {
	client *Client
}

// NewProvider creates a GitHub Actions provider with API token
func NewProvider(token string) *Provider {
	return &Provider{
		client: NewClient(token),
	}
}

// Name returns "github"
func (p *Provider) Name() string {
	return "github"
}

// FetchTimeline builds the timeline of one run attempt. A run with no jobs
// yet has no timeline.
func (p *Provider) FetchTimeline(ctx context.Context, key contracts.BuildAttemptKey) ([]contracts.TimelineRecord, bool, error) {
	owner, repo := key.Organization, key.Project
	runID := int64(key.Number)

	jobs, err := p.client.GetWorkflowJobs(ctx, owner, repo, runID, key.Attempt)
	if err != nil {
		return nil, false, err
	}
	if len(jobs) == 0 {
		return nil, false, nil
	}

	var records []contracts.TimelineRecord
	for _, job := range jobs {
		jobID := fmt.Sprintf("job-%d", job.ID)
		rec := contracts.TimelineRecord{
			ID:         jobID,
			Name:       job.Name,
			RecordType: contracts.RecordTypeJob,
			Result:     mapConclusion(job.Status, str(job.Conclusion)),
			Attempt:    job.RunAttempt,
		}

		if rec.Result != contracts.ResultNone && !rec.Result.IsSuccess() {
			annotations, err := p.client.GetJobAnnotations(ctx, owner, repo, job.ID)
			if err != nil {
				return nil, false, fmt.Errorf("annotations for job %d: %w", job.ID, err)
			}
			for _, a := range annotations {
				rec.Issues = append(rec.Issues, contracts.TimelineIssue{
					Type:     issueType(a.AnnotationLevel),
					Category: str(a.Title),
					Message:  a.Message,
				})
			}
		}
		records = append(records, rec)

		for _, step := range job.Steps {
			records = append(records, contracts.TimelineRecord{
				ID:         fmt.Sprintf("%s-step-%d", jobID, step.Number),
				ParentID:   jobID,
				Name:       step.Name,
				RecordType: contracts.RecordTypeTask,
				Result:     mapConclusion(step.Status, str(step.Conclusion)),
				Attempt:    job.RunAttempt,
			})
		}
	}

	return records, true, nil
}

// ListBuilds lists workflow runs. Definition is a workflow ID or file name.
func (p *Provider) ListBuilds(ctx context.Context, opts provider.ListOptions) ([]contracts.Build, error) {
	runs, err := p.client.ListWorkflowRuns(ctx, opts.Organization, opts.Project, ListWorkflowRunsParams{
		Workflow: opts.Definition,
		Top:      opts.Top,
		MinTime:  opts.MinTime,
	})
	if err != nil {
		return nil, err
	}

	builds := make([]contracts.Build, 0, len(runs))
	for _, run := range runs {
		if opts.Top > 0 && len(builds) == opts.Top {
			break
		}
		builds = append(builds, convertRun(opts.Organization, opts.Project, run))
	}
	return builds, nil
}

func convertRun(owner, repo string, run WorkflowRun) contracts.Build {
	build := contracts.Build{
		Key:            contracts.BuildKey{Organization: owner, Project: repo, Number: int(run.ID)},
		DefinitionID:   int(run.WorkflowID),
		DefinitionName: run.Name,
		Repository:     owner + "/" + repo,
		Result:         mapConclusion(run.Status, str(run.Conclusion)),
		TargetBranch:   str(run.HeadBranch),
		QueueTime:      run.CreatedAt,
		StartTime:      run.RunStartedAt,
		WebURL:         run.HTMLURL,
	}
	if run.Repository != nil && run.Repository.FullName != "" {
		build.Repository = run.Repository.FullName
	}
	if run.Status == "completed" {
		build.FinishTime = run.UpdatedAt
	}

	switch run.Event {
	case "pull_request", "pull_request_target":
		build.Kind = contracts.BuildKindPullRequest
		if len(run.PullRequests) > 0 {
			build.PullRequest = run.PullRequests[0].Number
			build.TargetBranch = run.PullRequests[0].Base.Ref
		}
	case "workflow_dispatch":
		build.Kind = contracts.BuildKindManual
	default:
		build.Kind = contracts.BuildKindRolling
	}
	return build
}

// mapConclusion maps GitHub status/conclusion onto a task result. Runs that
// have not completed have no result yet.
func mapConclusion(status, conclusion string) contracts.TaskResult {
	if status != "completed" {
		return contracts.ResultNone
	}
	switch conclusion {
	case "success", "neutral":
		return contracts.ResultSucceeded
	case "failure", "timed_out", "startup_failure":
		return contracts.ResultFailed
	case "cancelled":
		return contracts.ResultCanceled
	case "skipped":
		return contracts.ResultSkipped
	case "action_required", "stale":
		return contracts.ResultAbandoned
	default:
		return contracts.ParseTaskResult(conclusion)
	}
}

func issueType(level string) string {
	switch level {
	case "failure":
		return "error"
	case "warning":
		return "warning"
	default:
		return level
	}
}

