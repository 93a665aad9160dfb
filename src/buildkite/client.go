// Package buildkite provides a client for interacting with the Buildkite API.
package buildkite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"buildtriage/src/provider"
)

const (
	// APIBaseURL is the base URL for the Buildkite API.
	APIBaseURL = "https://api.buildkite.com/v2"
)

// Client is a Buildkite API client.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// Build represents a Buildkite build.
type Build struct {
	ID          string     `json:"id"`
	Number      int        `json:"number"`
	State       string     `json:"state"`
	Source      string     `json:"source"`
	Branch      string     `json:"branch"`
	WebURL      string     `json:"web_url"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Pipeline    *Pipeline  `json:"pipeline"`
	PullRequest *struct {
		ID   string `json:"id"`
		Base string `json:"base"`
	} `json:"pull_request"`
	Jobs []Job `json:"jobs"`
}

// Pipeline is the pipeline summary embedded in a build.
type Pipeline struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Repository string `json:"repository"`
}

// Job represents a Buildkite job within a build.
type Job struct {
	ID           string     `json:"id"`
	Name         *string    `json:"name"`
	Type         string     `json:"type"`
	State        string     `json:"state"`
	ExitStatus   *int       `json:"exit_status"`
	SoftFailed   bool       `json:"soft_failed"`
	RetriesCount int        `json:"retries_count"`
	Retried      bool       `json:"retried"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
}

// NewClient creates a new Buildkite API client.
func NewClient(apiToken string) *Client {
	return &Client{
		apiToken: apiToken,
		baseURL:  APIBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetBuild fetches a build's metadata from the Buildkite API.
func (c *Client) GetBuild(ctx context.Context, org, pipeline string, buildNumber int) (*Build, error) {
	u := fmt.Sprintf("%s/organizations/%s/pipelines/%s/builds/%d", c.baseURL, org, pipeline, buildNumber)

	var build Build
	if err := c.get(ctx, u, &build); err != nil {
		return nil, err
	}
	return &build, nil
}

// ListBuilds lists the builds of a pipeline newest first.
func (c *Client) ListBuilds(ctx context.Context, org, pipeline string, perPage int, createdFrom time.Time) ([]Build, error) {
	params := url.Values{}
	if perPage > 0 {
		params.Set("per_page", strconv.Itoa(perPage))
	}
	if !createdFrom.IsZero() {
		params.Set("created_from", createdFrom.UTC().Format(time.RFC3339))
	}
	u := fmt.Sprintf("%s/organizations/%s/pipelines/%s/builds?%s", c.baseURL, org, pipeline, params.Encode())

	var builds []Build
	if err := c.get(ctx, u, &builds); err != nil {
		return nil, err
	}
	return builds, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiToken))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return fmt.Errorf("API request failed with status %d: %w", resp.StatusCode, provider.ErrAuthFailed)
	case http.StatusNotFound:
		return fmt.Errorf("API request failed with status %d: %w", resp.StatusCode, provider.ErrBuildNotFound)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
