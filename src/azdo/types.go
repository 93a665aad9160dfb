package azdo

import "time"

// Wire types for the Azure DevOps build REST API. Optional fields are
// pointers because the service omits or nulls them freely.

// Timeline is the response of the build timeline endpoint.
type Timeline struct {
	ID       string   `json:"id"`
	ChangeID int      `json:"changeId"`
	URL      *string  `json:"url"`
	Records  []Record `json:"records"`
}

// Record is one timeline record.
type Record struct {
	ID               string         `json:"id"`
	ParentID         *string        `json:"parentId"`
	Type             *string        `json:"type"`
	Name             *string        `json:"name"`
	Identifier       *string        `json:"identifier"`
	State            *string        `json:"state"`
	Result           *string        `json:"result"`
	ResultCode       *string        `json:"resultCode"`
	Order            *int           `json:"order"`
	Attempt          int            `json:"attempt"`
	StartTime        *time.Time     `json:"startTime"`
	FinishTime       *time.Time     `json:"finishTime"`
	ErrorCount       *int           `json:"errorCount"`
	WarningCount     *int           `json:"warningCount"`
	WorkerName       *string        `json:"workerName"`
	Log              *LogReference  `json:"log"`
	Details          *TimelineRef   `json:"details"`
	PreviousAttempts []AttemptRef   `json:"previousAttempts"`
	Issues           []Issue        `json:"issues"`
	Task             *TaskReference `json:"task"`
}

// TimelineRef points at a nested timeline.
type TimelineRef struct {
	ID       string  `json:"id"`
	ChangeID int     `json:"changeId"`
	URL      *string `json:"url"`
}

// AttemptRef locates the timeline of an earlier attempt of a record.
type AttemptRef struct {
	Attempt    int    `json:"attempt"`
	TimelineID string `json:"timelineId"`
	RecordID   string `json:"recordId"`
}

// Issue is an error or warning logged against a record.
type Issue struct {
	Type     *string           `json:"type"`
	Category *string           `json:"category"`
	Message  *string           `json:"message"`
	Data     map[string]string `json:"data"`
}

type LogReference struct {
	ID  int     `json:"id"`
	URL *string `json:"url"`
}

type TaskReference struct {
	ID      string  `json:"id"`
	Name    *string `json:"name"`
	Version *string `json:"version"`
}

// BuildList is the response of the builds listing endpoint.
type BuildList struct {
	Count int     `json:"count"`
	Value []Build `json:"value"`
}

// Build is a build summary.
type Build struct {
	ID            int                `json:"id"`
	BuildNumber   *string            `json:"buildNumber"`
	Status        *string            `json:"status"`
	Result        *string            `json:"result"`
	Reason        *string            `json:"reason"`
	SourceBranch  *string            `json:"sourceBranch"`
	SourceVersion *string            `json:"sourceVersion"`
	QueueTime     *time.Time         `json:"queueTime"`
	StartTime     *time.Time         `json:"startTime"`
	FinishTime    *time.Time         `json:"finishTime"`
	Definition    *DefinitionRef     `json:"definition"`
	Project       *ProjectRef        `json:"project"`
	Repository    *RepositoryRef     `json:"repository"`
	TriggerInfo   map[string]string  `json:"triggerInfo"`
	Links         map[string]LinkRef `json:"_links"`
}

type DefinitionRef struct {
	ID   int     `json:"id"`
	Name *string `json:"name"`
}

type ProjectRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

type RepositoryRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
	Type *string `json:"type"`
}

type LinkRef struct {
	Href string `json:"href"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
