package query

import (
	"fmt"
	"regexp"
	"strings"

	"buildtriage/src/contracts"
	"buildtriage/src/sanitize"
)

// TimelinesRequest selects timeline records. Text is a case-insensitive
// regular expression matched against record issue messages.
type TimelinesRequest struct {
	Text    string
	Name    string
	JobName string
	Type    string
}

// ParseTimelinesRequest parses a timelines query. A bare value is the text
// pattern.
func ParseTimelinesRequest(q string) (*TimelinesRequest, error) {
	r := &TimelinesRequest{}
	for _, tok := range Tokenize(q) {
		switch tok.Key {
		case "", "text", "value":
			if _, err := compilePattern(tok.Value); err != nil {
				return nil, badValue(tok, fmt.Errorf("%w: %v", ErrBadValue, err))
			}
			r.Text = tok.Value
		case "name":
			r.Name = tok.Value
		case "jobname":
			r.JobName = tok.Value
		case "type":
			r.Type = tok.Value
		default:
			return nil, unknownOption(tok)
		}
	}
	return r, nil
}

// String renders the canonical query string for the request.
func (r *TimelinesRequest) String() string {
	var parts []string
	if r.Text != "" {
		parts = append(parts, FormatToken("text", r.Text))
	}
	if r.Name != "" {
		parts = append(parts, FormatToken("name", r.Name))
	}
	if r.JobName != "" {
		parts = append(parts, FormatToken("jobname", r.JobName))
	}
	if r.Type != "" {
		parts = append(parts, FormatToken("type", r.Type))
	}
	return joinTokens(parts)
}

// Filter compiles the request into a record predicate.
func (r *TimelinesRequest) Filter() (*TimelineFilter, error) {
	f := &TimelineFilter{
		name:       strings.ToLower(r.Name),
		jobName:    strings.ToLower(r.JobName),
		recordType: r.Type,
	}
	if r.Text != "" {
		re, err := compilePattern(r.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
		}
		f.text = re
	}
	return f, nil
}

// TimelineFilter is a compiled TimelinesRequest.
type TimelineFilter struct {
	text       *regexp.Regexp
	name       string
	jobName    string
	recordType string
}

// Match tests one record. jobName is the name of the job the record runs
// under. The returned message is the first sanitized issue message that
// matched the text pattern, or the first issue message when no pattern is
// set.
func (f *TimelineFilter) Match(rec contracts.TimelineRecord, jobName string) (string, bool) {
	if f.recordType != "" && !strings.EqualFold(rec.RecordType, f.recordType) {
		return "", false
	}
	if f.name != "" && !strings.Contains(strings.ToLower(rec.Name), f.name) {
		return "", false
	}
	if f.jobName != "" && !strings.Contains(strings.ToLower(jobName), f.jobName) {
		return "", false
	}

	if f.text == nil {
		if len(rec.Issues) > 0 {
			return sanitize.Message(rec.Issues[0].Message), true
		}
		return "", true
	}

	for _, issue := range rec.Issues {
		msg := sanitize.Message(issue.Message)
		if f.text.MatchString(msg) {
			return msg, true
		}
	}
	return "", false
}

func compilePattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + p)
}
