package buildkite

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"buildtriage/src/contracts"
	"buildtriage/src/provider"
)

func TestBuildkiteProvider_Name(t *testing.T) {
	p := NewProvider("fake-token")
	if p.Name() != "buildkite" {
		t.Errorf("Name() = %v, want buildkite", p.Name())
	}
}

func newMockServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/organizations/myorg/pipelines/mypipeline/builds/123":
			w.Write([]byte(`{"id": "b-123", "number": 123, "state": "failed", "jobs": [
			  {"id": "j1", "name": "lint", "type": "script", "state": "passed", "exit_status": 0},
			  {"id": "j2", "name": ":go: test", "type": "script", "state": "failed", "exit_status": 137, "retries_count": 1},
			  {"id": "w1", "type": "waiter", "state": "passed"},
			  {"id": "j3", "name": null, "type": "script", "state": "failed", "exit_status": 1, "soft_failed": true}
			]}`))
		case "/organizations/myorg/pipelines/mypipeline/builds/124":
			w.Write([]byte(`{"id": "b-124", "number": 124, "state": "scheduled", "jobs": []}`))
		case "/organizations/myorg/pipelines/mypipeline/builds":
			if r.URL.Query().Get("per_page") != "2" {
				t.Errorf("per_page = %q", r.URL.Query().Get("per_page"))
			}
			w.Write([]byte(`[
			  {"id": "b-124", "number": 124, "state": "passed", "source": "ui", "branch": "main",
			   "created_at": "2024-01-02T00:00:00Z", "pipeline": {"slug": "mypipeline", "repository": "git@github.com:myorg/repo.git"}},
			  {"id": "b-123", "number": 123, "state": "failed", "source": "webhook", "branch": "feature",
			   "created_at": "2024-01-01T00:00:00Z", "pull_request": {"id": "17", "base": "main"}}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func mockProvider(t *testing.T, token string) *Provider {
	server := newMockServer(t)
	t.Cleanup(server.Close)
	p, err := provider.New("buildkite", provider.Options{Token: token, BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	return p.(*Provider)
}

func buildKey(number, attempt int) contracts.BuildAttemptKey {
	return contracts.BuildAttemptKey{
		BuildKey: contracts.BuildKey{Organization: "myorg", Project: "mypipeline", Number: number},
		Attempt:  attempt,
	}
}

func TestBuildkiteProvider_FetchTimeline(t *testing.T) {
	p := mockProvider(t, "test-token")

	records, ok, err := p.FetchTimeline(context.Background(), buildKey(123, 0))
	if err != nil || !ok {
		t.Fatalf("FetchTimeline() = %v, %v", ok, err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 script jobs", len(records))
	}

	for _, rec := range records {
		if rec.ParentID != "" || !rec.IsJob() {
			t.Errorf("record %s should be a root job: %+v", rec.ID, rec)
		}
	}

	test := records[1]
	if test.Result != contracts.ResultFailed || test.Attempt != 2 {
		t.Errorf("test job = %+v", test)
	}
	if len(test.Issues) != 1 || test.Issues[0].Message != `Job ":go: test" failed with exit status 137` {
		t.Errorf("test job issues = %+v", test.Issues)
	}

	soft := records[2]
	if soft.Name != "j3" || soft.Result != contracts.ResultSucceededWithIssues {
		t.Errorf("soft failed job = %+v", soft)
	}

	second, ok, err := p.FetchTimeline(context.Background(), buildKey(123, 2))
	if err != nil || !ok || len(second) != 1 || second[0].ID != "j2" {
		t.Errorf("FetchTimeline(attempt 2) = %+v, %v, %v", second, ok, err)
	}
}

func TestBuildkiteProvider_FetchTimeline_NoJobs(t *testing.T) {
	p := mockProvider(t, "test-token")

	records, ok, err := p.FetchTimeline(context.Background(), buildKey(124, 0))
	if err != nil || ok || records != nil {
		t.Errorf("FetchTimeline() = %v, %v, %v; want absent", records, ok, err)
	}

	if _, _, err := p.FetchTimeline(context.Background(), buildKey(999, 0)); !errors.Is(err, provider.ErrBuildNotFound) {
		t.Errorf("missing build error = %v, want ErrBuildNotFound", err)
	}
}

func TestBuildkiteProvider_Unauthorized(t *testing.T) {
	p := mockProvider(t, "wrong-token")

	_, _, err := p.FetchTimeline(context.Background(), buildKey(123, 0))
	if !errors.Is(err, provider.ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}

	if _, err := provider.New("buildkite", provider.Options{}); !errors.Is(err, provider.ErrAuthFailed) {
		t.Errorf("New() without token error = %v, want ErrAuthFailed", err)
	}
}

func TestBuildkiteProvider_ListBuilds(t *testing.T) {
	p := mockProvider(t, "test-token")

	builds, err := p.ListBuilds(context.Background(), provider.ListOptions{Organization: "myorg", Project: "mypipeline", Top: 2})
	if err != nil {
		t.Fatalf("ListBuilds() error = %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("got %d builds", len(builds))
	}
	if builds[0].Kind != contracts.BuildKindManual || builds[0].DefinitionName != "mypipeline" {
		t.Errorf("manual build = %+v", builds[0])
	}
	if builds[1].Kind != contracts.BuildKindPullRequest || builds[1].PullRequest != 17 || builds[1].TargetBranch != "main" {
		t.Errorf("pr build = %+v", builds[1])
	}
}
