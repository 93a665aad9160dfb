package contracts

import "strings"

// TaskResult is the outcome of a timeline record or a whole build.
type TaskResult string

const (
	ResultNone                TaskResult = ""
	ResultSucceeded           TaskResult = "succeeded"
	ResultSucceededWithIssues TaskResult = "succeededWithIssues"
	ResultFailed              TaskResult = "failed"
	ResultCanceled            TaskResult = "canceled"
	ResultSkipped             TaskResult = "skipped"
	ResultAbandoned           TaskResult = "abandoned"
	ResultUnknown             TaskResult = "unknown"
)

// ParseTaskResult maps provider spellings onto TaskResult. Anything
// unrecognised becomes ResultUnknown.
func ParseTaskResult(s string) TaskResult {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ResultNone
	case "succeeded", "success", "passed":
		return ResultSucceeded
	case "succeededwithissues", "partiallysucceeded":
		return ResultSucceededWithIssues
	case "failed", "failure", "timed_out":
		return ResultFailed
	case "canceled", "cancelled", "canceling":
		return ResultCanceled
	case "skipped", "not_run":
		return ResultSkipped
	case "abandoned", "broken":
		return ResultAbandoned
	default:
		return ResultUnknown
	}
}

// IsSuccess reports whether the result counts as a pass.
func (r TaskResult) IsSuccess() bool {
	return r == ResultSucceeded || r == ResultSucceededWithIssues
}

// Record types with special meaning to the tree.
const (
	RecordTypeStage = "Stage"
	RecordTypePhase = "Phase"
	RecordTypeJob   = "Job"
	RecordTypeTask  = "Task"
)

// TimelineIssue is one error or warning attached to a timeline record.
type TimelineIssue struct {
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// TimelineDetailsRef points at a nested sub-timeline.
type TimelineDetailsRef struct {
	ID       string `json:"id"`
	ChangeID int    `json:"change_id"`
}

// TimelineRecord is one node of a provider timeline snapshot. ParentID is
// empty for roots.
type TimelineRecord struct {
	ID         string              `json:"id"`
	ParentID   string              `json:"parent_id,omitempty"`
	Name       string              `json:"name"`
	RecordType string              `json:"record_type"`
	Result     TaskResult          `json:"result"`
	Attempt    int                 `json:"attempt,omitempty"`
	Issues     []TimelineIssue     `json:"issues,omitempty"`
	Details    *TimelineDetailsRef `json:"details,omitempty"`
}

// IsJob reports whether the record denotes a job.
func (r TimelineRecord) IsJob() bool {
	return strings.EqualFold(r.RecordType, RecordTypeJob)
}
