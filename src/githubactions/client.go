// Package githubactions maps GitHub Actions workflow runs onto build
// timelines.
package githubactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"buildtriage/src/provider"
)

const (
	perPage    = 100 // GitHub's max per page
	apiVersion = "2022-11-28"
)

// Client is a GitHub Actions API client
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new GitHub Actions client
func NewClient(token string) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: "https://api.github.com",
	}
}

// GetWorkflowRun fetches workflow run metadata
func (c *Client) GetWorkflowRun(ctx context.Context, owner, repo string, runID int64) (*WorkflowRun, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d", c.baseURL, owner, repo, runID)

	var run WorkflowRun
	if err := c.get(ctx, u, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetWorkflowJobs fetches the jobs of one run attempt, or of the latest
// attempt when attempt is 0 (handles pagination)
func (c *Client) GetWorkflowJobs(ctx context.Context, owner, repo string, runID int64, attempt int) ([]WorkflowJob, error) {
	path := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/jobs", c.baseURL, owner, repo, runID)
	if attempt > 0 {
		path = fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d/attempts/%d/jobs", c.baseURL, owner, repo, runID, attempt)
	}

	var allJobs []WorkflowJob
	for page := 1; ; page++ {
		params := url.Values{}
		if attempt == 0 {
			params.Set("filter", "latest")
		}
		params.Set("per_page", strconv.Itoa(perPage))
		params.Set("page", strconv.Itoa(page))
		u := path + "?" + params.Encode()

		var jobsResp WorkflowJobsResponse
		if err := c.get(ctx, u, &jobsResp); err != nil {
			return nil, err
		}
		allJobs = append(allJobs, jobsResp.Jobs...)

		// Check if we've fetched all jobs
		if len(allJobs) >= jobsResp.TotalCount || len(jobsResp.Jobs) < perPage {
			break
		}
	}

	return allJobs, nil
}

// GetJobAnnotations fetches the check run annotations of a job.
func (c *Client) GetJobAnnotations(ctx context.Context, owner, repo string, jobID int64) ([]Annotation, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/check-runs/%d/annotations?per_page=%d", c.baseURL, owner, repo, jobID, perPage)

	var annotations []Annotation
	if err := c.get(ctx, u, &annotations); err != nil {
		return nil, err
	}
	return annotations, nil
}

// ListWorkflowRunsParams filters a run listing. Workflow is a workflow ID or
// file name; empty lists runs of every workflow.
type ListWorkflowRunsParams struct {
	Workflow string
	Top      int
	MinTime  time.Time
}

// ListWorkflowRuns lists runs newest first.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo string, p ListWorkflowRunsParams) ([]WorkflowRun, error) {
	path := fmt.Sprintf("%s/repos/%s/%s/actions/runs", c.baseURL, owner, repo)
	if p.Workflow != "" {
		path = fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/runs", c.baseURL, owner, repo, url.PathEscape(p.Workflow))
	}

	params := url.Values{}
	size := perPage
	if p.Top > 0 && p.Top < perPage {
		size = p.Top
	}
	params.Set("per_page", strconv.Itoa(size))
	if !p.MinTime.IsZero() {
		params.Set("created", ">="+p.MinTime.UTC().Format(time.RFC3339))
	}

	var runsResp WorkflowRunsResponse
	if err := c.get(ctx, path+"?"+params.Encode(), &runsResp); err != nil {
		return nil, err
	}
	return runsResp.WorkflowRuns, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError maps a non-200 response onto the provider sentinels. GitHub
// reports an exhausted primary rate limit as 403 with no remaining quota.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	base := fmt.Sprintf("GitHub API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		sentinel = provider.ErrAuthFailed
	case resp.StatusCode == http.StatusNotFound:
		sentinel = provider.ErrBuildNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		sentinel = provider.ErrRateLimited
	case resp.StatusCode == http.StatusForbidden:
		sentinel = provider.ErrAuthFailed
	default:
		return errors.New(base)
	}
	return fmt.Errorf("%s: %w", base, sentinel)
}
