package junit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"buildtriage/src/contracts"
	"buildtriage/src/query"
)

var build = contracts.BuildKey{Organization: "dnceng", Project: "public", Number: 42}

const multiSuite = `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="System.Net.Http.Tests" tests="3" failures="1" errors="0" skipped="1" time="1.5">
    <testcase name="GetAsync_Succeeds" classname="System.Net.Http.Tests.HttpClientTest" time="0.25"/>
    <testcase name="GetAsync_Timeout" classname="System.Net.Http.Tests.HttpClientTest" time="1.25">
      <failure message="Assert.Equal() Failure: Expected 200, Actual 503" type="Xunit.Sdk.EqualException">
at System.Net.Http.Tests.HttpClientTest.GetAsync_Timeout() in /_/src/HttpClientTest.cs:line 42
      </failure>
    </testcase>
    <testcase name="Http3_Only" classname="System.Net.Http.Tests.HttpClientTest" time="0">
      <skipped message="QUIC not supported"/>
    </testcase>
  </testsuite>
  <testsuite name="System.IO.Tests" tests="1" failures="0" errors="1" time="0.5">
    <testsuite name="Nested">
      <testcase name="System.IO.Tests.FileTest.Write_DiskFull" classname="System.IO.Tests.FileTest" time="0.5">
        <error type="System.IO.IOException">
System.IO.IOException : No space left on device
   at System.IO.FileStream.Write()
        </error>
      </testcase>
    </testsuite>
  </testsuite>
</testsuites>`

func TestResults_MultipleSuites(t *testing.T) {
	results, err := Results(build, "results.xml", []byte(multiSuite))
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}

	want := []contracts.TestResult{
		{
			Build: build, RunName: "results.xml", SuiteName: "System.Net.Http.Tests",
			TestName: "System.Net.Http.Tests.HttpClientTest.GetAsync_Succeeds",
			Outcome:  contracts.ResultSucceeded, Duration: 250 * time.Millisecond,
		},
		{
			Build: build, RunName: "results.xml", SuiteName: "System.Net.Http.Tests",
			TestName:     "System.Net.Http.Tests.HttpClientTest.GetAsync_Timeout",
			Outcome:      contracts.ResultFailed,
			ErrorMessage: "Assert.Equal() Failure: Expected 200, Actual 503",
			StackTrace:   "at System.Net.Http.Tests.HttpClientTest.GetAsync_Timeout() in /_/src/HttpClientTest.cs:line 42",
			Duration:     1250 * time.Millisecond,
		},
		{
			Build: build, RunName: "results.xml", SuiteName: "System.Net.Http.Tests",
			TestName:     "System.Net.Http.Tests.HttpClientTest.Http3_Only",
			Outcome:      contracts.ResultSkipped,
			ErrorMessage: "QUIC not supported",
		},
		{
			Build: build, RunName: "results.xml", SuiteName: "Nested",
			TestName:     "System.IO.Tests.FileTest.Write_DiskFull",
			Outcome:      contracts.ResultFailed,
			ErrorMessage: "System.IO.IOException : No space left on device",
			StackTrace:   "System.IO.IOException : No space left on device\n   at System.IO.FileStream.Write()",
			Duration:     500 * time.Millisecond,
		},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}

	if got := Failures(results); len(got) != 2 {
		t.Errorf("Failures() = %d, want 2", len(got))
	}
}

func TestResults_SingleSuite(t *testing.T) {
	xml := `<testsuite name="Suite"><testcase name="A" classname="C"/><testcase name="B"/></testsuite>`

	results, err := Results(build, "run", []byte(xml))
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if len(results) != 2 || results[0].TestName != "C.A" || results[1].TestName != "B" {
		t.Errorf("results = %+v", results)
	}
}

func TestParse_InvalidXML(t *testing.T) {
	if _, err := Parse([]byte(`not even xml at all`)); err == nil {
		t.Error("Expected error for invalid XML, got nil")
	}
}

func TestReadFiles_WithTestsRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "System.Net.Http.Tests.xml")
	if err := os.WriteFile(path, []byte(multiSuite), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := ReadFiles(build, []string{path})
	if err != nil {
		t.Fatalf("ReadFiles failed: %v", err)
	}

	req, err := query.ParseTestsRequest(`name:httpclient message:"actual 503"`)
	if err != nil {
		t.Fatal(err)
	}
	matched, err := req.Filter(results)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0].RunName != "System.Net.Http.Tests.xml" {
		t.Errorf("matched = %+v", matched)
	}

	if _, err := ReadFiles(build, []string{filepath.Join(dir, "missing.xml")}); err == nil {
		t.Error("expected error for missing file")
	}
}
