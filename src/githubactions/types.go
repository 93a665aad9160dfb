package githubactions

import "time"

// WorkflowRun represents a GitHub Actions workflow run
type WorkflowRun struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	WorkflowID   int64         `json:"workflow_id"`
	RunNumber    int           `json:"run_number"`
	RunAttempt   int           `json:"run_attempt"`
	Event        string        `json:"event"`
	Status       string        `json:"status"`
	Conclusion   *string       `json:"conclusion"`
	HeadBranch   *string       `json:"head_branch"`
	HTMLURL      string        `json:"html_url"`
	CreatedAt    time.Time     `json:"created_at"`
	RunStartedAt *time.Time    `json:"run_started_at"`
	UpdatedAt    *time.Time    `json:"updated_at"`
	Repository   *Repository   `json:"repository"`
	PullRequests []PullRequest `json:"pull_requests"`
}

// Repository is the repository a run belongs to.
type Repository struct {
	FullName string `json:"full_name"`
}

// PullRequest is a pull request associated with a run.
type PullRequest struct {
	Number int `json:"number"`
	Base   struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// WorkflowJob represents a job within a workflow run
type WorkflowJob struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	RunAttempt  int        `json:"run_attempt"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  *string    `json:"conclusion"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Steps       []Step     `json:"steps"`
}

// Step represents a step within a job
type Step struct {
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Conclusion *string `json:"conclusion"`
	Number     int     `json:"number"`
}

// Annotation is a check run annotation. Job IDs double as check run IDs.
type Annotation struct {
	Path            string  `json:"path"`
	AnnotationLevel string  `json:"annotation_level"`
	Title           *string `json:"title"`
	Message         string  `json:"message"`
}

// WorkflowJobsResponse is the API response for listing jobs
type WorkflowJobsResponse struct {
	TotalCount int           `json:"total_count"`
	Jobs       []WorkflowJob `json:"jobs"`
}

// WorkflowRunsResponse is the API response for listing runs
type WorkflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
