package azdo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
)

const latestTimeline = `{
  "id": "tl-latest",
  "changeId": 12,
  "records": [
    {"id": "stage", "parentId": null, "type": "Stage", "name": "Build", "result": "failed", "attempt": 2},
    {"id": "job", "parentId": "stage", "type": "Job", "name": "Linux x64", "result": "failed", "attempt": 2,
     "previousAttempts": [{"attempt": 1, "timelineId": "tl-attempt1", "recordId": "job-1"}]},
    {"id": "task", "parentId": "job", "type": "Task", "name": "Restore", "result": "failed", "attempt": 2,
     "issues": [{"type": "error", "category": "General", "message": "Response status code does not indicate success: 503"}],
     "details": {"id": "sub-1", "changeId": 3}},
    {"id": "pending", "parentId": "job", "type": "Task", "name": "Publish", "result": null, "attempt": 2}
  ]
}`

const attempt1Timeline = `{
  "id": "tl-attempt1",
  "records": [
    {"id": "job-1", "type": "Job", "name": "Linux x64", "result": "succeeded", "attempt": 1}
  ]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("api-version"); got != apiVersion {
			t.Errorf("api-version = %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "" || pass != "pat" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/dnceng/public/_apis/build/builds/100/timeline":
			w.Write([]byte(latestTimeline))
		case "/dnceng/public/_apis/build/builds/100/timeline/tl-attempt1":
			w.Write([]byte(attempt1Timeline))
		case "/dnceng/public/_apis/build/builds/100/timeline/sub-1":
			if r.URL.Query().Get("changeId") != "3" {
				t.Errorf("changeId = %q", r.URL.Query().Get("changeId"))
			}
			w.Write([]byte(`{"id":"sub-1","records":[{"id":"inner","type":"Task","name":"Helix","result":"failed"}]}`))
		case "/dnceng/public/_apis/build/builds/101/timeline":
			w.WriteHeader(http.StatusNoContent)
		case "/dnceng/public/_apis/build/builds/102/timeline":
			w.Write([]byte("null"))
		case "/dnceng/public/_apis/build/builds":
			if r.URL.Query().Get("definitions") != "" && r.URL.Query().Get("definitions") != "15" {
				t.Errorf("definitions = %q", r.URL.Query().Get("definitions"))
			}
			w.Write([]byte(`{"count": 2, "value": [
			  {"id": 100, "result": "failed", "reason": "pullRequest", "sourceBranch": "refs/pull/42/merge",
			   "queueTime": "2024-03-01T10:00:00Z", "startTime": "2024-03-01T10:05:00Z",
			   "definition": {"id": 15, "name": "runtime"}, "repository": {"id": "r", "name": "dotnet/runtime"},
			   "triggerInfo": {"pr.number": "42", "pr.targetBranch": "refs/heads/main"},
			   "_links": {"web": {"href": "https://dev.azure.com/dnceng/public/_build/results?buildId=100"}}},
			  {"id": 99, "result": "succeeded", "reason": "individualCI", "sourceBranch": "refs/heads/release/8.0",
			   "queueTime": "2024-03-01T09:00:00Z", "definition": {"id": 16, "name": "roslyn-ci"}}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestProvider(t *testing.T) *Provider {
	srv := newTestServer(t)
	t.Cleanup(srv.Close)
	p, err := provider.New("azdo", provider.Options{Token: "pat", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	return p.(*Provider)
}

func key(number, attempt int) contracts.BuildAttemptKey {
	return contracts.BuildAttemptKey{
		BuildKey: contracts.BuildKey{Organization: "dnceng", Project: "public", Number: number},
		Attempt:  attempt,
	}
}

func TestFetchTimeline_Latest(t *testing.T) {
	p := newTestProvider(t)

	records, ok, err := p.FetchTimeline(context.Background(), key(100, 0))
	if err != nil || !ok {
		t.Fatalf("FetchTimeline() = %v, %v", ok, err)
	}

	want := []contracts.TimelineRecord{
		{ID: "stage", Name: "Build", RecordType: "Stage", Result: contracts.ResultFailed, Attempt: 2},
		{ID: "job", ParentID: "stage", Name: "Linux x64", RecordType: "Job", Result: contracts.ResultFailed, Attempt: 2},
		{
			ID: "task", ParentID: "job", Name: "Restore", RecordType: "Task", Result: contracts.ResultFailed, Attempt: 2,
			Issues:  []contracts.TimelineIssue{{Type: "error", Category: "General", Message: "Response status code does not indicate success: 503"}},
			Details: &contracts.TimelineDetailsRef{ID: "sub-1", ChangeID: 3},
		},
		{ID: "pending", ParentID: "job", Name: "Publish", RecordType: "Task", Attempt: 2},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	// Asking for the latest attempt by number returns the same timeline.
	again, _, err := p.FetchTimeline(context.Background(), key(100, 2))
	if err != nil || len(again) != len(records) {
		t.Errorf("FetchTimeline(attempt 2) = %d records, %v", len(again), err)
	}
}

func TestFetchTimeline_PreviousAttempt(t *testing.T) {
	p := newTestProvider(t)

	records, ok, err := p.FetchTimeline(context.Background(), key(100, 1))
	if err != nil || !ok {
		t.Fatalf("FetchTimeline(attempt 1) = %v, %v", ok, err)
	}
	if len(records) != 1 || records[0].Result != contracts.ResultSucceeded {
		t.Errorf("attempt 1 records = %+v", records)
	}

	_, _, err = p.FetchTimeline(context.Background(), key(100, 5))
	if !errors.Is(err, provider.ErrBuildNotFound) {
		t.Errorf("FetchTimeline(attempt 5) error = %v, want ErrBuildNotFound", err)
	}
}

func TestFetchTimeline_NotAvailable(t *testing.T) {
	p := newTestProvider(t)

	for _, number := range []int{101, 102} {
		records, ok, err := p.FetchTimeline(context.Background(), key(number, 0))
		if err != nil || ok || records != nil {
			t.Errorf("build %d: FetchTimeline() = %v, %v, %v; want absent", number, records, ok, err)
		}
	}

	if _, _, err := p.FetchTimeline(context.Background(), key(404, 0)); !errors.Is(err, provider.ErrBuildNotFound) {
		t.Errorf("missing build error = %v, want ErrBuildNotFound", err)
	}
}

func TestFetchTimeline_Unauthorized(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	p := NewProvider("wrong")
	p.client.WithBaseURL(srv.URL)

	_, _, err := p.FetchTimeline(context.Background(), key(100, 0))
	if !errors.Is(err, provider.ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

func TestFetchSubTimeline(t *testing.T) {
	p := newTestProvider(t)

	records, ok, err := p.FetchSubTimeline(context.Background(), key(100, 0).BuildKey, contracts.TimelineDetailsRef{ID: "sub-1", ChangeID: 3})
	if err != nil || !ok {
		t.Fatalf("FetchSubTimeline() = %v, %v", ok, err)
	}
	if len(records) != 1 || records[0].Name != "Helix" {
		t.Errorf("records = %+v", records)
	}
}

func TestListBuilds(t *testing.T) {
	p := newTestProvider(t)

	builds, err := p.ListBuilds(context.Background(), provider.ListOptions{Organization: "dnceng", Project: "public"})
	if err != nil {
		t.Fatalf("ListBuilds() error = %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("got %d builds, want 2", len(builds))
	}

	pr := builds[0]
	if pr.Kind != contracts.BuildKindPullRequest || pr.PullRequest != 42 || pr.TargetBranch != "main" {
		t.Errorf("pr build = %+v", pr)
	}
	if pr.DefinitionName != "runtime" || pr.Repository != "dotnet/runtime" || pr.StartTime == nil {
		t.Errorf("pr build = %+v", pr)
	}
	if builds[1].Kind != contracts.BuildKindRolling || builds[1].TargetBranch != "release/8.0" {
		t.Errorf("rolling build = %+v", builds[1])
	}

	byName, err := p.ListBuilds(context.Background(), provider.ListOptions{Organization: "dnceng", Project: "public", Definition: "Roslyn-CI"})
	if err != nil || len(byName) != 1 || byName[0].Key.Number != 99 {
		t.Errorf("ListBuilds(by name) = %+v, %v", byName, err)
	}

	byID, err := p.ListBuilds(context.Background(), provider.ListOptions{Organization: "dnceng", Project: "public", Definition: "15"})
	if err != nil || len(byID) != 2 {
		t.Errorf("ListBuilds(by id) = %d builds, %v", len(byID), err)
	}
}

func TestClient_RateLimit(t *testing.T) {
	p := newTestProvider(t)
	p.client.WithRateLimit(0.01, 1)

	if _, _, err := p.FetchTimeline(context.Background(), key(100, 0)); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, err := p.FetchTimeline(ctx, key(100, 0)); err == nil {
		t.Error("second fetch should wait past the deadline and fail")
	}

	p.client.WithRateLimit(0, 0)
	for i := 0; i < 3; i++ {
		if _, _, err := p.FetchTimeline(context.Background(), key(100, 0)); err != nil {
			t.Fatalf("unlimited fetch %d: %v", i, err)
		}
	}
}
