package query

import (
	"fmt"
	"regexp"
	"strings"

	"buildtriage/src/contracts"
)

// TestsRequest selects test results by name substring and error message
// pattern.
type TestsRequest struct {
	Name    string
	Message string
}

// ParseTestsRequest parses a tests query. A bare value is the test name.
func ParseTestsRequest(q string) (*TestsRequest, error) {
	r := &TestsRequest{}
	for _, tok := range Tokenize(q) {
		switch tok.Key {
		case "", "name":
			r.Name = tok.Value
		case "message":
			if _, err := compilePattern(tok.Value); err != nil {
				return nil, badValue(tok, fmt.Errorf("%w: %v", ErrBadValue, err))
			}
			r.Message = tok.Value
		default:
			return nil, unknownOption(tok)
		}
	}
	return r, nil
}

// String renders the canonical query string for the request.
func (r *TestsRequest) String() string {
	var parts []string
	if r.Name != "" {
		parts = append(parts, FormatToken("name", r.Name))
	}
	if r.Message != "" {
		parts = append(parts, FormatToken("message", r.Message))
	}
	return joinTokens(parts)
}

// Filter keeps the matching test results, preserving order.
func (r *TestsRequest) Filter(results []contracts.TestResult) ([]contracts.TestResult, error) {
	var message *regexp.Regexp
	if r.Message != "" {
		re, err := compilePattern(r.Message)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
		}
		message = re
	}
	name := strings.ToLower(r.Name)

	var out []contracts.TestResult
	for _, tr := range results {
		if name != "" && !strings.Contains(strings.ToLower(tr.TestName), name) {
			continue
		}
		if message != nil && !message.MatchString(tr.ErrorMessage) {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}
