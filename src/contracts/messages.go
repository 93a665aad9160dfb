package contracts

// TriageRequest asks a worker to run one triage rule, or all rules when
// RuleName is empty.
// Published to: buildtriage.triage.requests
// Key: {request_id}
type TriageRequest struct {
	RequestID string `json:"request_id"`
	RuleName  string `json:"rule_name,omitempty"`
	Timestamp string `json:"timestamp"`
}

// TriageMatchEvent announces a newly recorded triage record.
// Published to: buildtriage.triage.matches
// Key: {issue_uri}
type TriageMatchEvent struct {
	RequestID string       `json:"request_id,omitempty"`
	RuleName  string       `json:"rule_name"`
	Record    TriageRecord `json:"record"`
	RecordID  string       `json:"record_id"`
	JobName   string       `json:"job_name"`
	Timestamp string       `json:"timestamp"`
}

// RuleSummary is the outcome of one rule run.
// Published to: buildtriage.triage.summaries
// Key: {rule_name}
type RuleSummary struct {
	RequestID     string `json:"request_id,omitempty"`
	RuleName      string `json:"rule_name"`
	BuildsScanned int    `json:"builds_scanned"`
	BuildsSkipped int    `json:"builds_skipped"`
	Matches       int    `json:"matches"`
	NewRecords    int    `json:"new_records"`
	IssueUpdated  bool   `json:"issue_updated"`
	Error         string `json:"error,omitempty"`
}

const (
	// TopicTriageRequests carries TriageRequest messages.
	TopicTriageRequests = "buildtriage.triage.requests"

	// TopicTriageMatches carries TriageMatchEvent messages.
	TopicTriageMatches = "buildtriage.triage.matches"

	// TopicRuleSummaries carries RuleSummary messages.
	TopicRuleSummaries = "buildtriage.triage.summaries"
)
