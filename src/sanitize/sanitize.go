// Package sanitize cleans provider text before it is matched or reported.
// It removes ANSI escape sequences and CI-specific log markers such as Azure
// DevOps "##[error]" prefixes, GitHub Actions workflow commands and
// Buildkite timestamp markers.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// Buildkite timestamp markers: \x1b_bk;t=...\x07
	buildkiteTimestamp = regexp.MustCompile(`\x1b_bk;t=[0-9]+\x07`)

	// Azure Pipelines logging commands: ##[error], ##[warning], ##[section] ...
	loggingCommand = regexp.MustCompile(`##\[[a-zA-Z]+\]`)

	// GitHub Actions workflow commands: ::error file=a.go,line=3::message
	workflowCommand = regexp.MustCompile(`^::(?:error|warning|notice|debug)(?: [^:]*)?::`)

	// Log line timestamps, e.g. 2024-03-01T12:00:00.1234567Z
	lineTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z\s+`)
)

// StripANSI removes ANSI escape codes and Buildkite timestamp markers.
func StripANSI(s string) string {
	s = buildkiteTimestamp.ReplaceAllString(s, "")
	return ansi.Strip(s)
}

// Message prepares a timeline issue message for matching and display.
// Line breaks are kept; carriage returns are not.
func Message(s string) string {
	s = StripANSI(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSpace(s)
	s = lineTimestamp.ReplaceAllString(s, "")
	s = workflowCommand.ReplaceAllString(s, "")
	s = loggingCommand.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
