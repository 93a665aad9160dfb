package query

import (
	"fmt"
	"regexp"
	"strings"

	"buildtriage/src/contracts"
)

// HelixLogsRequest selects Helix work item logs whose content matches Text.
// An empty Kinds set means every kind.
type HelixLogsRequest struct {
	Text  string
	Kinds []contracts.HelixLogKind
}

// ParseHelixLogsRequest parses a helix logs query. A bare value is the text
// pattern; kind takes a comma separated list.
func ParseHelixLogsRequest(q string) (*HelixLogsRequest, error) {
	r := &HelixLogsRequest{}
	for _, tok := range Tokenize(q) {
		switch tok.Key {
		case "", "text", "value":
			if _, err := compilePattern(tok.Value); err != nil {
				return nil, badValue(tok, fmt.Errorf("%w: %v", ErrBadValue, err))
			}
			r.Text = tok.Value
		case "kind":
			kinds, err := parseHelixKinds(tok.Value)
			if err != nil {
				return nil, badValue(tok, err)
			}
			r.Kinds = kinds
		default:
			return nil, unknownOption(tok)
		}
	}
	return r, nil
}

// parseHelixKinds returns the kinds in canonical order without duplicates.
func parseHelixKinds(value string) ([]contracts.HelixLogKind, error) {
	want := make(map[contracts.HelixLogKind]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			return nil, nil
		}
		known := false
		for _, k := range contracts.AllHelixLogKinds {
			if string(k) == part {
				want[k] = true
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: unknown helix log kind %q", ErrBadValue, part)
		}
	}

	var kinds []contracts.HelixLogKind
	for _, k := range contracts.AllHelixLogKinds {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// String renders the canonical query string for the request.
func (r *HelixLogsRequest) String() string {
	var parts []string
	if r.Text != "" {
		parts = append(parts, FormatToken("text", r.Text))
	}
	if len(r.Kinds) > 0 {
		names := make([]string, len(r.Kinds))
		for i, k := range r.Kinds {
			names[i] = string(k)
		}
		parts = append(parts, FormatToken("kind", strings.Join(names, ",")))
	}
	return joinTokens(parts)
}

// HelixLogMatch is a log whose content matched, with the first matching line.
type HelixLogMatch struct {
	Log  contracts.HelixLog
	Line string
}

// Filter returns the logs of a selected kind whose content matches Text,
// preserving order.
func (r *HelixLogsRequest) Filter(logs []contracts.HelixLog) ([]HelixLogMatch, error) {
	var text *regexp.Regexp
	if r.Text != "" {
		re, err := compilePattern(r.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
		}
		text = re
	}

	var out []HelixLogMatch
	for _, log := range logs {
		if !r.wantsKind(log.Kind) {
			continue
		}
		if text == nil {
			out = append(out, HelixLogMatch{Log: log})
			continue
		}
		for _, line := range strings.Split(log.Content, "\n") {
			if text.MatchString(line) {
				out = append(out, HelixLogMatch{Log: log, Line: strings.TrimRight(line, "\r")})
				break
			}
		}
	}
	return out, nil
}

func (r *HelixLogsRequest) wantsKind(k contracts.HelixLogKind) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, want := range r.Kinds {
		if want == k {
			return true
		}
	}
	return false
}
