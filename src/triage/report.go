package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"buildtriage/src/contracts"
	"buildtriage/src/patterns"
)

const (
	// maxReportBuilds caps the builds table of a report.
	maxReportBuilds = 100
	// maxReportMessages caps the top messages table.
	maxReportMessages = 5
	// maxMessageWidth truncates messages shown in tables.
	maxMessageWidth = 120
)

// Report renders the markdown written between the issue body markers.
type Report struct {
	// BuildURL links a build in the builds table. Nil renders plain keys.
	BuildURL func(contracts.BuildKey) string
}

// Render builds the report for records, which must be newest first as
// returned by the store.
func (r Report) Render(records []contracts.TriageRecord, now time.Time) string {
	var b strings.Builder

	day, week, month := 0, 0, 0
	for _, rec := range records {
		age := now.Sub(recordTime(rec))
		if age <= 24*time.Hour {
			day++
		}
		if age <= 7*24*time.Hour {
			week++
		}
		if age <= 30*24*time.Hour {
			month++
		}
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| 24 hours | 7 days | 30 days | Total |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", day, week, month, len(records))

	messages := make([]string, 0, len(records))
	for _, rec := range records {
		messages = append(messages, rec.Message)
	}
	if groups := patterns.Top(patterns.GroupMessages(messages), maxReportMessages); len(groups) > 0 {
		b.WriteString("\n## Top messages\n\n")
		b.WriteString("| Count | Message |\n")
		b.WriteString("| --- | --- |\n")
		for _, g := range groups {
			fmt.Fprintf(&b, "| %d | %s |\n", g.Count, cell(g.Example))
		}
	}

	if len(records) == 0 {
		return b.String()
	}

	b.WriteString("\n## Builds\n\n")
	b.WriteString("| Build | Definition | Job | Started | Message |\n")
	b.WriteString("| --- | --- | --- | --- | --- |\n")
	for i, rec := range records {
		if i == maxReportBuilds {
			fmt.Fprintf(&b, "\n%d older builds not shown.\n", len(records)-maxReportBuilds)
			break
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.buildLink(rec.Build),
			cell(rec.DefinitionName),
			cell(rec.JobName),
			formatTime(recordTime(rec)),
			cell(rec.Message))
	}
	return b.String()
}

func (r Report) buildLink(key contracts.BuildKey) string {
	if r.BuildURL == nil {
		return key.String()
	}
	return fmt.Sprintf("[%d](%s)", key.Number, r.BuildURL(key))
}

// recordTime is when the recorded build started, or when it was recorded.
func recordTime(rec contracts.TriageRecord) time.Time {
	if !rec.BuildStarted.IsZero() {
		return rec.BuildStarted
	}
	return rec.CreatedAt
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// cell makes s safe for a single markdown table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	return runewidth.Truncate(s, maxMessageWidth, "...")
}
