package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthFailed     = errors.New("authentication failed")
	ErrBuildNotFound  = errors.New("build not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrNetworkTimeout = errors.New("network timeout")

	// ErrTimelineUnavailable marks a build whose timeline has not been
	// published yet. Triage counts such builds as skipped.
	ErrTimelineUnavailable = errors.New("timeline not available yet")
)

// UserError is an error an operator can act on: what went wrong plus a hint.
type UserError struct {
	Message string
	Hint    string
	Err     error
}

func (e *UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString("\n\nHint: ")
		b.WriteString(e.Hint)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, "\n\nDetails: %v", e.Err)
	}
	return b.String()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

type hint struct {
	target  error
	message string
	hint    string
}

// hints are checked in order; the first wrapped target wins.
var hints = []hint{
	{ErrInvalidURL, "Invalid build URL",
		"Supported formats:\n  - https://dev.azure.com/org/project/_build/results?buildId=789\n  - https://github.com/owner/repo/actions/runs/456\n  - https://buildkite.com/org/pipeline/builds/123"},
	{ErrAuthFailed, "Authentication failed",
		"Check that the token is valid and can read builds.\n  - Azure DevOps: AZDO_TOKEN\n  - GitHub: GITHUB_TOKEN\n  - Buildkite: BUILDKITE_API_TOKEN"},
	{ErrBuildNotFound, "Build not found",
		"Check the organization, project and build number, and that the token can see the project."},
	{ErrRateLimited, "The build provider is throttling requests",
		"Lower TRIAGE_PARALLELISM or wait before retrying."},
	{ErrTimelineUnavailable, "The build has no timeline yet",
		"Builds that are queued or just started publish their timeline later."},
	{ErrNetworkTimeout, "The build provider did not answer in time",
		"Raise TRIAGE_FETCH_TIMEOUT or retry."},
	{context.DeadlineExceeded, "The build provider did not answer in time",
		"Raise TRIAGE_FETCH_TIMEOUT or retry."},
}

// WrapError attaches an operator hint to known provider errors. Other errors,
// and errors that already carry a hint, are returned unchanged.
func WrapError(err error) error {
	if err == nil {
		return nil
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return err
	}

	if errors.Is(err, ErrProviderUnknown) {
		return &UserError{
			Message: "Unknown build provider",
			Hint:    "BUILD_PROVIDER must be one of: " + strings.Join(Registered(), ", "),
			Err:     err,
		}
	}

	for _, h := range hints {
		if errors.Is(err, h.target) {
			return &UserError{Message: h.message, Hint: h.hint, Err: err}
		}
	}
	return err
}

// MissingToken reports a provider constructed without credentials.
func MissingToken(provider, envVar string) error {
	return &UserError{
		Message: fmt.Sprintf("%s API token is not configured", provider),
		Hint:    fmt.Sprintf("Set %s to a token with read access to builds.", envVar),
		Err:     ErrAuthFailed,
	}
}
