package provider

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"buildtriage/src/contracts"
)

// BuildRef identifies a build in a CI system
type BuildRef struct {
	Provider string // "azdo", "github" or "buildkite"
	Build    contracts.BuildKey
	// Attempt is 0 unless the URL names a specific attempt.
	Attempt int
}

// AttemptKey returns the attempt key for the referenced build.
func (r BuildRef) AttemptKey() contracts.BuildAttemptKey {
	return contracts.BuildAttemptKey{BuildKey: r.Build, Attempt: r.Attempt}
}

var (
	buildkiteURLPattern = regexp.MustCompile(`^https://buildkite\.com/([^/]+)/([^/]+)/builds/(\d+)`)
	githubURLPattern    = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/actions/runs/(\d+)(?:/attempts/(\d+))?`)
)

// ParseURL detects provider and parses build reference from URL.
//
// Azure DevOps build URLs look like
// https://dev.azure.com/{org}/{project}/_build/results?buildId=N and
// optionally carry an attempt parameter.
func ParseURL(raw string) (*BuildRef, error) {
	raw = strings.TrimSpace(raw)

	if matches := buildkiteURLPattern.FindStringSubmatch(raw); matches != nil {
		n, _ := strconv.Atoi(matches[3])
		return &BuildRef{
			Provider: "buildkite",
			Build:    contracts.BuildKey{Organization: matches[1], Project: matches[2], Number: n},
		}, nil
	}

	if matches := githubURLPattern.FindStringSubmatch(raw); matches != nil {
		n, _ := strconv.Atoi(matches[3])
		ref := &BuildRef{
			Provider: "github",
			Build:    contracts.BuildKey{Organization: matches[1], Project: matches[2], Number: n},
		}
		if matches[4] != "" {
			ref.Attempt, _ = strconv.Atoi(matches[4])
		}
		return ref, nil
	}

	if ref, ok := parseAzdoURL(raw); ok {
		return ref, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrInvalidURL, raw)
}

func parseAzdoURL(raw string) (*BuildRef, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, "dev.azure.com") {
		return nil, false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[2] != "_build" {
		return nil, false
	}

	number, err := strconv.Atoi(u.Query().Get("buildId"))
	if err != nil || number <= 0 {
		return nil, false
	}

	ref := &BuildRef{
		Provider: "azdo",
		Build:    contracts.BuildKey{Organization: parts[0], Project: parts[1], Number: number},
	}
	if attempt, err := strconv.Atoi(u.Query().Get("attempt")); err == nil && attempt > 0 {
		ref.Attempt = attempt
	}
	return ref, true
}

// BuildURL renders the web URL of a build for the named provider. It is the
// inverse of ParseURL for attempt-less references.
func BuildURL(providerName string, key contracts.BuildKey) string {
	switch strings.ToLower(providerName) {
	case "github":
		return fmt.Sprintf("https://github.com/%s/%s/actions/runs/%d", key.Organization, key.Project, key.Number)
	case "buildkite":
		return fmt.Sprintf("https://buildkite.com/%s/%s/builds/%d", key.Organization, key.Project, key.Number)
	default:
		return fmt.Sprintf("https://dev.azure.com/%s/%s/_build/results?buildId=%d",
			url.PathEscape(key.Organization), url.PathEscape(key.Project), key.Number)
	}
}
