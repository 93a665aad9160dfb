// Package patterns normalizes timeline issue messages so that failures which
// differ only in volatile details (timestamps, build paths, GUIDs, retry
// counts) are reported as one group.
//
// Two masking levels share the same patterns:
//   - MaskRecurrence: aggressive, used as the grouping key
//   - MaskPresentation: conservative, used for the example shown in a report
package patterns

import (
	"regexp"
	"sort"
	"strings"
)

// MaskingLevel controls how aggressively messages are normalized.
type MaskingLevel int

const (
	// MaskPresentation keeps diagnostic details like line numbers.
	// Example: D:\a\_work\1\s\src\Foo.cs(42,5) → ...\Foo.cs(42,5)
	MaskPresentation MaskingLevel = iota

	// MaskRecurrence masks everything that varies between builds.
	// Example: Error on line 42 → Error on line [NUM]
	MaskRecurrence
)

var (
	// Matches: 2024-05-21T10:00:05.123Z, 2024-05-21 10:00:05,123
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}([.,]\d+)?(Z|[+-]\d{2}:?\d{2})?`)

	// Matches: 550e8400-e29b-41d4-a716-446655440000
	uuidPattern = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

	// Git SHAs, container IDs, content hashes.
	longHashPattern = regexp.MustCompile(`\b[a-f0-9]{12,}\b`)

	hexAddressPattern = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)

	numberPattern = regexp.MustCompile(`\b\d+\b`)

	// Absolute unix paths with 3+ directories; the last element is captured.
	unixPathPattern = regexp.MustCompile(`/(?:[^/\s]+/){3,}([^/\s:]+(?::\d+)?)`)

	// Drive-letter paths as printed by Windows agents: D:\a\_work\1\s\Foo.cs
	windowsPathPattern = regexp.MustCompile(`\b[A-Za-z]:\\(?:[^\\\s]+\\){2,}([^\\\s:(]+(?:\(\d+,\d+\))?)`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Normalize applies pattern normalization to a single message.
func Normalize(msg string, level MaskingLevel) string {
	msg = stripTimestamps(msg, level)
	msg = mask(msg, uuidPattern, "UUID", level)
	msg = mask(msg, hexAddressPattern, "HEX", level)

	switch level {
	case MaskPresentation:
		msg = unixPathPattern.ReplaceAllString(msg, ".../$1")
		msg = windowsPathPattern.ReplaceAllString(msg, `...\$1`)
		msg = longHashPattern.ReplaceAllString(msg, "<HASH>")
	case MaskRecurrence:
		msg = unixPathPattern.ReplaceAllString(msg, "[PATH]")
		msg = windowsPathPattern.ReplaceAllString(msg, "[PATH]")
		msg = longHashPattern.ReplaceAllString(msg, "<HASH>")
		msg = numberPattern.ReplaceAllString(msg, "[NUM]")
	}

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(msg, " "))
}

// stripTimestamps drops a leading timestamp for display and masks every
// timestamp for grouping.
func stripTimestamps(msg string, level MaskingLevel) string {
	if level == MaskRecurrence {
		return timestampPattern.ReplaceAllString(msg, "[TIMESTAMP]")
	}
	if loc := timestampPattern.FindStringIndex(msg); loc != nil && loc[0] < 5 {
		msg = strings.TrimSpace(msg[loc[1]:])
	}
	return msg
}

func mask(msg string, re *regexp.Regexp, name string, level MaskingLevel) string {
	if level == MaskRecurrence {
		return re.ReplaceAllString(msg, "["+name+"]")
	}
	return re.ReplaceAllString(msg, "<"+name+">")
}

// Group is a set of messages sharing one recurrence pattern.
type Group struct {
	Pattern string
	// Example is the presentation form of the first message seen.
	Example string
	Count   int
}

// GroupMessages groups messages by recurrence pattern, largest group first.
// Ties keep first-seen order. Empty messages are ignored.
func GroupMessages(messages []string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, m := range messages {
		if strings.TrimSpace(m) == "" {
			continue
		}
		key := Normalize(m, MaskRecurrence)
		if i, ok := index[key]; ok {
			groups[i].Count++
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Group{Pattern: key, Example: Normalize(m, MaskPresentation), Count: 1})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

// Top returns at most n groups.
func Top(groups []Group, n int) []Group {
	if n >= 0 && len(groups) > n {
		return groups[:n]
	}
	return groups
}
