package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"buildtriage/src/contracts"
	"buildtriage/src/query"
)

// RuleFile is the on-disk shape of the rule file.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
	// IssueRemap maps real issue URLs to sandbox issue URLs. When non-empty,
	// issue reads and writes go to the sandbox issue instead.
	IssueRemap map[string]string `yaml:"issueRemap"`
}

// RuleSpec is one rule as written in the rule file.
type RuleSpec struct {
	Name        string `yaml:"name"`
	Reason      string `yaml:"reason"`
	Issue       string `yaml:"issue"`
	Builds      string `yaml:"builds"`
	Timeline    string `yaml:"timeline"`
	UpdateIssue bool   `yaml:"updateIssue"`
}

// Rule is a validated triage rule.
type Rule struct {
	Name        string
	Reason      contracts.TriageReason
	Issue       contracts.GitHubIssueKey
	IssueURI    string
	Builds      *query.BuildsRequest
	Timeline    *query.TimelinesRequest
	UpdateIssue bool
}

// Rules is the validated rule file.
type Rules struct {
	Rules      []Rule
	IssueRemap map[contracts.GitHubIssueKey]contracts.GitHubIssueKey
}

// Find returns the rule with the given name.
func (r *Rules) Find(name string) (Rule, bool) {
	for _, rule := range r.Rules {
		if strings.EqualFold(rule.Name, name) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Select returns the named rule, or every rule when name is empty.
func (r *Rules) Select(name string) ([]Rule, error) {
	if name == "" {
		return r.Rules, nil
	}
	rule, ok := r.Find(name)
	if !ok {
		return nil, fmt.Errorf("no rule named %q", name)
	}
	return []Rule{rule}, nil
}

// LoadRules reads and validates a rule file.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, errors.New("TRIAGE_RULES is not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	rules, err := ParseRules(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and validates rules from r. Unknown fields are rejected.
func ParseRules(r io.Reader) (*Rules, error) {
	var file RuleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	out := &Rules{IssueRemap: map[contracts.GitHubIssueKey]contracts.GitHubIssueKey{}}
	seen := map[string]bool{}
	for i, spec := range file.Rules {
		rule, err := spec.compile()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, spec.Name, err)
		}
		lower := strings.ToLower(rule.Name)
		if seen[lower] {
			return nil, fmt.Errorf("rule %d: duplicate name %q", i+1, rule.Name)
		}
		seen[lower] = true
		out.Rules = append(out.Rules, rule)
	}

	for from, to := range file.IssueRemap {
		fromKey, err := contracts.ParseGitHubIssueKey(from)
		if err != nil {
			return nil, fmt.Errorf("issueRemap: %w", err)
		}
		toKey, err := contracts.ParseGitHubIssueKey(to)
		if err != nil {
			return nil, fmt.Errorf("issueRemap: %w", err)
		}
		out.IssueRemap[fromKey] = toKey
	}

	return out, nil
}

func (s RuleSpec) compile() (Rule, error) {
	if strings.TrimSpace(s.Name) == "" {
		return Rule{}, errors.New("name is required")
	}
	reason, err := contracts.ParseTriageReason(s.Reason)
	if err != nil {
		return Rule{}, err
	}
	issue, err := contracts.ParseGitHubIssueKey(s.Issue)
	if err != nil {
		return Rule{}, err
	}
	builds, err := query.ParseBuildsRequest(s.Builds)
	if err != nil {
		return Rule{}, fmt.Errorf("builds query: %w", err)
	}
	timeline, err := query.ParseTimelinesRequest(s.Timeline)
	if err != nil {
		return Rule{}, fmt.Errorf("timeline query: %w", err)
	}
	if timeline.Text == "" {
		return Rule{}, errors.New("timeline query needs a text pattern")
	}

	return Rule{
		Name:        s.Name,
		Reason:      reason,
		Issue:       issue,
		IssueURI:    issue.URL(),
		Builds:      builds,
		Timeline:    timeline,
		UpdateIssue: s.UpdateIssue,
	}, nil
}
