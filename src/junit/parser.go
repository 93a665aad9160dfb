// Package junit turns JUnit XML reports into test result records that the
// tests search request can filter.
package junit

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"buildtriage/src/contracts"
)

// TestSuites is the root element for multiple test suites.
type TestSuites struct {
	XMLName    xml.Name    `xml:"testsuites"`
	TestSuites []TestSuite `xml:"testsuite"`
}

// TestSuite represents a <testsuite> element. Suites may nest.
type TestSuite struct {
	Name      string      `xml:"name,attr"`
	Tests     int         `xml:"tests,attr"`
	Failures  int         `xml:"failures,attr"`
	Errors    int         `xml:"errors,attr"`
	Skipped   int         `xml:"skipped,attr"`
	Time      float64     `xml:"time,attr"`
	TestCases []TestCase  `xml:"testcase"`
	Suites    []TestSuite `xml:"testsuite"`
}

// TestCase represents a <testcase> element.
type TestCase struct {
	Name      string   `xml:"name,attr"`
	ClassName string   `xml:"classname,attr"`
	Time      float64  `xml:"time,attr"`
	Failure   *Problem `xml:"failure"`
	Error     *Problem `xml:"error"`
	Skipped   *Skipped `xml:"skipped"`
}

// Problem is a <failure> or <error> element.
type Problem struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// Skipped represents a skipped test.
type Skipped struct {
	Message string `xml:"message,attr"`
}

// Parse reads either a <testsuites> document or a single <testsuite>.
func Parse(data []byte) ([]TestSuite, error) {
	var suites TestSuites
	if err := xml.Unmarshal(data, &suites); err == nil && len(suites.TestSuites) > 0 {
		return suites.TestSuites, nil
	}

	var suite TestSuite
	if err := xml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse JUnit XML: %w", err)
	}
	return []TestSuite{suite}, nil
}

// Results converts a report into one result per test case. runName names
// the test run, usually the report file.
func Results(build contracts.BuildKey, runName string, data []byte) ([]contracts.TestResult, error) {
	suites, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var out []contracts.TestResult
	var walk func(suites []TestSuite)
	walk = func(suites []TestSuite) {
		for _, suite := range suites {
			for _, tc := range suite.TestCases {
				out = append(out, convert(build, runName, suite.Name, tc))
			}
			walk(suite.Suites)
		}
	}
	walk(suites)
	return out, nil
}

// ReadFiles loads every report in paths, naming each run after its file.
func ReadFiles(build contracts.BuildKey, paths []string) ([]contracts.TestResult, error) {
	var out []contracts.TestResult
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		results, err := Results(build, filepath.Base(p), data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, results...)
	}
	return out, nil
}

// Failures keeps the failed results.
func Failures(results []contracts.TestResult) []contracts.TestResult {
	var out []contracts.TestResult
	for _, r := range results {
		if r.Outcome == contracts.ResultFailed {
			out = append(out, r)
		}
	}
	return out
}

func convert(build contracts.BuildKey, runName, suiteName string, tc TestCase) contracts.TestResult {
	r := contracts.TestResult{
		Build:     build,
		RunName:   runName,
		SuiteName: suiteName,
		TestName:  QualifiedName(tc),
		Outcome:   contracts.ResultSucceeded,
		Duration:  time.Duration(tc.Time * float64(time.Second)),
	}

	problem := tc.Failure
	if problem == nil {
		problem = tc.Error
	}
	switch {
	case problem != nil:
		r.Outcome = contracts.ResultFailed
		r.ErrorMessage = problem.Message
		r.StackTrace = strings.TrimSpace(problem.Content)
		if r.ErrorMessage == "" {
			r.ErrorMessage = firstLine(r.StackTrace)
		}
	case tc.Skipped != nil:
		r.Outcome = contracts.ResultSkipped
		r.ErrorMessage = tc.Skipped.Message
	}
	return r
}

// QualifiedName is classname.name, or name when the class is absent or
// already part of the name.
func QualifiedName(tc TestCase) string {
	if tc.ClassName == "" || strings.HasPrefix(tc.Name, tc.ClassName+".") {
		return tc.Name
	}
	return tc.ClassName + "." + tc.Name
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
