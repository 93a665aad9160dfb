package contracts

import (
	"fmt"
	"strings"
	"time"
)

// TriageReason is the closed set of failure classifications.
type TriageReason string

const (
	ReasonInfrastructure TriageReason = "infrastructure"
	ReasonPackageFeed    TriageReason = "package-feed"
	ReasonTest           TriageReason = "test"
	ReasonBuild          TriageReason = "build"
	ReasonOther          TriageReason = "other"
)

// AllTriageReasons lists every reason in display order.
var AllTriageReasons = []TriageReason{ReasonInfrastructure, ReasonPackageFeed, ReasonTest, ReasonBuild, ReasonOther}

// ParseTriageReason accepts the canonical names plus the legacy short forms.
func ParseTriageReason(s string) (TriageReason, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "infrastructure", "infra":
		return ReasonInfrastructure, nil
	case "package-feed", "nuget", "feed":
		return ReasonPackageFeed, nil
	case "test":
		return ReasonTest, nil
	case "build":
		return ReasonBuild, nil
	case "other":
		return ReasonOther, nil
	}
	return "", fmt.Errorf("unknown triage reason %q", s)
}

// TriageRecord associates a build with a failure reason and a tracking issue.
// (Build, Reason, IssueURI) is unique; the remaining fields are captured once
// at creation for reporting and never updated.
type TriageRecord struct {
	Build          BuildKey     `json:"build"`
	Reason         TriageReason `json:"reason"`
	IssueURI       string       `json:"issue_uri"`
	DefinitionName string       `json:"definition_name,omitempty"`
	JobName        string       `json:"job_name,omitempty"`
	Message        string       `json:"message,omitempty"`
	BuildStarted   time.Time    `json:"build_started"`
	CreatedAt      time.Time    `json:"created_at"`
}

// TriageKey is the deduplication key of a TriageRecord.
type TriageKey struct {
	Build    BuildKey
	Reason   TriageReason
	IssueURI string
}

// Key returns the record's deduplication key.
func (r TriageRecord) Key() TriageKey {
	return TriageKey{Build: r.Build, Reason: r.Reason, IssueURI: r.IssueURI}
}
