// Package issuebody replaces the machine-owned report region of an issue
// body. The region is delimited by two sentinel comment lines; everything
// outside it belongs to people and is preserved byte for byte.
package issuebody

import (
	"errors"
	"strings"
)

const (
	// StartMarker opens the report region.
	StartMarker = "<!-- buildtriage report start -->"
	// EndMarker closes the report region.
	EndMarker = "<!-- buildtriage report end -->"
)

var ErrMarkersNotFound = errors.New("report markers not found in issue body")

// Replace swaps the content between the first start marker line and the
// next end marker line for report. Marker lines match ignoring surrounding
// whitespace and are kept as written. When the markers are missing or out
// of order the body is returned unchanged with ErrMarkersNotFound.
func Replace(body, report string) (string, error) {
	lines := strings.SplitAfter(body, "\n")

	offset := 0
	startEnd := -1 // byte offset just past the start marker line
	endStart := -1 // byte offset of the end marker line
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case startEnd < 0 && trimmed == StartMarker:
			startEnd = offset + len(line)
		case startEnd >= 0 && trimmed == EndMarker:
			endStart = offset
		}
		if endStart >= 0 {
			break
		}
		offset += len(line)
	}

	if startEnd < 0 || endStart < 0 {
		return body, ErrMarkersNotFound
	}

	prefix := body[:startEnd]
	if report != "" && !strings.HasSuffix(report, "\n") {
		report += "\n"
	}

	var b strings.Builder
	b.Grow(len(prefix) + len(report) + len(body) - endStart)
	b.WriteString(prefix)
	b.WriteString(report)
	b.WriteString(body[endStart:])
	return b.String(), nil
}

// Update is Replace that reports whether the body changed.
func Update(body, report string) (string, bool) {
	updated, err := Replace(body, report)
	if err != nil {
		return body, false
	}
	return updated, updated != body
}

// Template returns an empty report region suitable for a new issue body.
func Template() string {
	return StartMarker + "\n" + EndMarker + "\n"
}
