// Package azdo provides a client and build provider for the Azure DevOps
// build REST API.
package azdo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"buildtriage/src/provider"
)

const (
	// APIBaseURL is the base URL for the Azure DevOps API.
	APIBaseURL = "https://dev.azure.com"
	apiVersion = "7.1"

	// Requests per second and burst allowed per client. Matching fans out
	// timeline fetches, which Azure DevOps throttles per identity.
	defaultRateLimit = 10
	defaultRateBurst = 5
)

// Client is an Azure DevOps API client. An empty token makes anonymous
// requests, which public projects allow.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Azure DevOps API client.
func NewClient(token string) *Client {
	return &Client{
		baseURL: APIBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
	}
}

// WithRateLimit replaces the request rate limit. A non-positive rps
// disables limiting.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithBaseURL points the client at another endpoint.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

func (c *Client) buildsURL(org, project string, parts ...string) string {
	u := fmt.Sprintf("%s/%s/%s/_apis/build/builds", c.baseURL, url.PathEscape(org), url.PathEscape(project))
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// GetTimeline fetches the latest timeline of a build. A nil timeline with a
// nil error means the build has no timeline yet.
func (c *Client) GetTimeline(ctx context.Context, org, project string, buildID int) (*Timeline, error) {
	u := c.buildsURL(org, project, strconv.Itoa(buildID), "timeline")
	return c.getTimeline(ctx, u, nil)
}

// GetTimelineByID fetches a specific timeline of a build: an earlier attempt
// or a nested sub-timeline.
func (c *Client) GetTimelineByID(ctx context.Context, org, project string, buildID int, timelineID string, changeID int) (*Timeline, error) {
	u := c.buildsURL(org, project, strconv.Itoa(buildID), "timeline", timelineID)
	params := url.Values{}
	if changeID > 0 {
		params.Set("changeId", strconv.Itoa(changeID))
	}
	return c.getTimeline(ctx, u, params)
}

func (c *Client) getTimeline(ctx context.Context, u string, params url.Values) (*Timeline, error) {
	var timeline *Timeline
	found, err := c.getJSON(ctx, u, params, &timeline)
	if err != nil || !found {
		return nil, err
	}
	return timeline, nil
}

// ListBuildsParams are the supported filters of the builds listing.
type ListBuildsParams struct {
	Definitions []int
	Top         int
	MinTime     time.Time
	BranchName  string
}

// ListBuilds lists builds newest first.
func (c *Client) ListBuilds(ctx context.Context, org, project string, p ListBuildsParams) ([]Build, error) {
	params := url.Values{}
	params.Set("queryOrder", "queueTimeDescending")
	if len(p.Definitions) > 0 {
		ids := make([]string, len(p.Definitions))
		for i, id := range p.Definitions {
			ids[i] = strconv.Itoa(id)
		}
		params.Set("definitions", strings.Join(ids, ","))
	}
	if p.Top > 0 {
		params.Set("$top", strconv.Itoa(p.Top))
	}
	if !p.MinTime.IsZero() {
		params.Set("minTime", p.MinTime.UTC().Format(time.RFC3339))
	}
	if p.BranchName != "" {
		params.Set("branchName", p.BranchName)
	}

	var list BuildList
	if _, err := c.getJSON(ctx, c.buildsURL(org, project), params, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// getJSON decodes a GET response into out. found is false for 204 No
// Content and for a JSON null body.
func (c *Client) getJSON(ctx context.Context, u string, params url.Values, out any) (bool, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api-version", apiVersion)

	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.SetBasicAuth("", c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return false, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, fmt.Errorf("%w: status %d", provider.ErrAuthFailed, resp.StatusCode)
	case http.StatusNotFound:
		return false, fmt.Errorf("%w: %s", provider.ErrBuildNotFound, u)
	case http.StatusTooManyRequests:
		return false, provider.ErrRateLimited
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed == "" || trimmed == "null" {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}
