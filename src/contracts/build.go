package contracts

import (
	"strings"
	"time"
)

// BuildKind classifies why a build ran.
type BuildKind string

const (
	BuildKindAll         BuildKind = "all"
	BuildKindPullRequest BuildKind = "pr"
	BuildKindRolling     BuildKind = "rolling"
	BuildKindManual      BuildKind = "manual"
)

// ParseBuildKind accepts the query spellings of a build kind.
func ParseBuildKind(s string) (BuildKind, bool) {
	switch strings.ToLower(s) {
	case "all", "*":
		return BuildKindAll, true
	case "pr", "pullrequest":
		return BuildKindPullRequest, true
	case "rolling", "ci", "schedule":
		return BuildKindRolling, true
	case "manual":
		return BuildKindManual, true
	}
	return "", false
}

// Build is the searchable summary of one build.
type Build struct {
	Key            BuildKey   `json:"key"`
	DefinitionID   int        `json:"definition_id"`
	DefinitionName string     `json:"definition_name"`
	Repository     string     `json:"repository,omitempty"`
	Kind           BuildKind  `json:"kind"`
	Result         TaskResult `json:"result"`
	TargetBranch   string     `json:"target_branch,omitempty"`
	PullRequest    int        `json:"pull_request,omitempty"`
	QueueTime      time.Time  `json:"queue_time"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	FinishTime     *time.Time `json:"finish_time,omitempty"`
	WebURL         string     `json:"web_url,omitempty"`
}

// ActivityTime is the best known time for ordering builds newest first.
func (b Build) ActivityTime() time.Time {
	if b.StartTime != nil {
		return *b.StartTime
	}
	return b.QueueTime
}

// TestResult is one test case outcome recorded for a build.
type TestResult struct {
	Build        BuildKey      `json:"build"`
	RunName      string        `json:"run_name"`
	SuiteName    string        `json:"suite_name,omitempty"`
	TestName     string        `json:"test_name"`
	Outcome      TaskResult    `json:"outcome"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StackTrace   string        `json:"stack_trace,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// HelixLogKind identifies one of the log files a Helix work item uploads.
type HelixLogKind string

const (
	HelixLogConsole     HelixLogKind = "console"
	HelixLogRunClient   HelixLogKind = "runclient"
	HelixLogTestResults HelixLogKind = "testresults"
	HelixLogCrashDump   HelixLogKind = "crashdump"
)

// AllHelixLogKinds lists the kinds in canonical order.
var AllHelixLogKinds = []HelixLogKind{HelixLogConsole, HelixLogRunClient, HelixLogTestResults, HelixLogCrashDump}

// HelixLog is the content of one Helix work item log.
type HelixLog struct {
	Build    BuildKey     `json:"build"`
	JobName  string       `json:"job_name"`
	WorkItem string       `json:"work_item"`
	Kind     HelixLogKind `json:"kind"`
	URI      string       `json:"uri"`
	Content  string       `json:"content"`
}
