// Package contracts defines the data model shared by every part of buildtriage:
// build and timeline identity, timeline records, triage records and the
// messages exchanged over the broker.
package contracts

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidIssueURL = errors.New("invalid GitHub issue URL")

// BuildKey is the immutable identity of one build.
type BuildKey struct {
	Organization string `json:"organization"`
	Project      string `json:"project"`
	Number       int    `json:"number"`
}

func (k BuildKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Organization, k.Project, k.Number)
}

// BuildAttemptKey identifies one attempt of a build. Attempt 0 means
// "latest attempt" when passed to a provider.
type BuildAttemptKey struct {
	BuildKey
	Attempt int `json:"attempt"`
}

func (k BuildAttemptKey) String() string {
	return fmt.Sprintf("%s#%d", k.BuildKey, k.Attempt)
}

// GitHubIssueKey identifies a tracked GitHub issue.
type GitHubIssueKey struct {
	Organization string `json:"organization"`
	Repository   string `json:"repository"`
	Number       int    `json:"number"`
}

func (k GitHubIssueKey) String() string {
	return fmt.Sprintf("%s/%s#%d", k.Organization, k.Repository, k.Number)
}

// URL returns the canonical html URL for the issue.
func (k GitHubIssueKey) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", k.Organization, k.Repository, k.Number)
}

// ParseGitHubIssueKey extracts the issue key from a URL shaped like
// .../<org>/<repo>/issues/<number>. Both html and api.github.com URLs work.
func ParseGitHubIssueKey(issueURL string) (GitHubIssueKey, error) {
	u, err := url.Parse(strings.TrimSpace(issueURL))
	if err != nil || u.Path == "" {
		return GitHubIssueKey{}, fmt.Errorf("%w: %s", ErrInvalidIssueURL, issueURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[len(parts)-2] != "issues" {
		return GitHubIssueKey{}, fmt.Errorf("%w: %s", ErrInvalidIssueURL, issueURL)
	}

	number, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || number <= 0 {
		return GitHubIssueKey{}, fmt.Errorf("%w: %s", ErrInvalidIssueURL, issueURL)
	}

	n := len(parts)
	return GitHubIssueKey{
		Organization: parts[n-4],
		Repository:   parts[n-3],
		Number:       number,
	}, nil
}
