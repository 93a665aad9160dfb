// Package github provides the issue tracker capability used to publish
// triage reports: a REST client and a remapping decorator for development.
package github

import (
	"context"
	"fmt"

	"buildtriage/src/contracts"
)

// IssueTracker reads and writes issue bodies.
type IssueTracker interface {
	GetIssueBody(ctx context.Context, issue contracts.GitHubIssueKey) (string, error)
	UpdateIssueBody(ctx context.Context, issue contracts.GitHubIssueKey, body string) error
}

// RemappingTracker redirects issues listed in its table to other issues,
// typically sandbox copies. Unlisted issues pass through unchanged.
type RemappingTracker struct {
	inner IssueTracker
	table map[contracts.GitHubIssueKey]contracts.GitHubIssueKey
}

// NewRemappingTracker wraps inner with a static remapping table.
func NewRemappingTracker(inner IssueTracker, table map[contracts.GitHubIssueKey]contracts.GitHubIssueKey) *RemappingTracker {
	return &RemappingTracker{inner: inner, table: table}
}

// Resolve returns the issue that requests for issue are sent to.
func (r *RemappingTracker) Resolve(issue contracts.GitHubIssueKey) contracts.GitHubIssueKey {
	if to, ok := r.table[issue]; ok {
		return to
	}
	return issue
}

func (r *RemappingTracker) GetIssueBody(ctx context.Context, issue contracts.GitHubIssueKey) (string, error) {
	target := r.Resolve(issue)
	body, err := r.inner.GetIssueBody(ctx, target)
	if err != nil && target != issue {
		return "", fmt.Errorf("%s (remapped from %s): %w", target, issue, err)
	}
	return body, err
}

func (r *RemappingTracker) UpdateIssueBody(ctx context.Context, issue contracts.GitHubIssueKey, body string) error {
	target := r.Resolve(issue)
	err := r.inner.UpdateIssueBody(ctx, target, body)
	if err != nil && target != issue {
		return fmt.Errorf("%s (remapped from %s): %w", target, issue, err)
	}
	return err
}

// NewTracker composes the tracker used by the process: the client itself,
// or the client behind a remapping decorator when a table is configured.
func NewTracker(client IssueTracker, remap map[contracts.GitHubIssueKey]contracts.GitHubIssueKey) IssueTracker {
	if len(remap) == 0 {
		return client
	}
	return NewRemappingTracker(client, remap)
}
