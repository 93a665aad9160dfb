package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
)

// Client talks to the GitHub issues REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a GitHub issues client.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.github.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithBaseURL points the client at another endpoint.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type issue struct {
	Number int     `json:"number"`
	Body   *string `json:"body"`
}

func (c *Client) issueURL(key contracts.GitHubIssueKey) string {
	return fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.baseURL, key.Organization, key.Repository, key.Number)
}

// GetIssueBody returns the issue body; an issue without a body yields "".
func (c *Client) GetIssueBody(ctx context.Context, key contracts.GitHubIssueKey) (string, error) {
	var out issue
	if err := c.do(ctx, http.MethodGet, c.issueURL(key), nil, &out); err != nil {
		return "", err
	}
	if out.Body == nil {
		return "", nil
	}
	return *out.Body, nil
}

// UpdateIssueBody replaces the issue body.
func (c *Client) UpdateIssueBody(ctx context.Context, key contracts.GitHubIssueKey, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, c.issueURL(key), payload, nil)
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("GitHub API error %d: %s: %w", resp.StatusCode, msg, provider.ErrAuthFailed)
		case http.StatusNotFound:
			return fmt.Errorf("GitHub API error %d: issue %s not found", resp.StatusCode, u)
		}
		return fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
