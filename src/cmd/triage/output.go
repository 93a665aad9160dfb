package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"buildtriage/src/contracts"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8AB4F8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#34A853"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBC04"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EA4335")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9AA0A6"))
)

const maxColumnWidth = 80

// table writes rows as aligned columns. Cells wider than maxColumnWidth are
// truncated by display width.
type table struct {
	headers []string
	rows    [][]string
	// style optionally colors a padded body cell.
	style func(row, col int) *lipgloss.Style
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) widths() []int {
	w := make([]int, len(t.headers))
	for i, h := range t.headers {
		w[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i >= len(w) {
				break
			}
			if cw := runewidth.StringWidth(c); cw > w[i] {
				w[i] = cw
			}
		}
	}
	for i := range w {
		if w[i] > maxColumnWidth {
			w[i] = maxColumnWidth
		}
	}
	return w
}

func (t *table) render(out io.Writer) {
	w := t.widths()
	line := func(cells []string, style func(col int) *lipgloss.Style) {
		parts := make([]string, len(w))
		for i := range w {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			c = runewidth.FillRight(runewidth.Truncate(c, w[i], "..."), w[i])
			if i == len(w)-1 {
				c = strings.TrimRight(c, " ")
			}
			if st := style(i); st != nil {
				c = st.Render(c)
			}
			parts[i] = c
		}
		fmt.Fprintln(out, strings.Join(parts, "  "))
	}
	line(t.headers, func(int) *lipgloss.Style { return &headerStyle })
	for r, row := range t.rows {
		line(row, func(col int) *lipgloss.Style {
			if t.style == nil {
				return nil
			}
			return t.style(r, col)
		})
	}
}

// oneLine collapses whitespace so messages fit in a table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatBuildTime(b contracts.Build) string {
	t := b.ActivityTime()
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func printSummaries(out io.Writer, summaries []contracts.RuleSummary) {
	t := newTable("Rule", "Scanned", "Skipped", "Matches", "New", "Issue", "Status")
	t.style = func(row, col int) *lipgloss.Style {
		s := summaries[row]
		switch {
		case col == 5 && s.IssueUpdated:
			return &okStyle
		case col == 5:
			return &mutedStyle
		case col == 6 && s.Error != "":
			return &errStyle
		case col == 6 && s.BuildsSkipped > 0:
			return &warnStyle
		case col == 6:
			return &okStyle
		}
		return nil
	}
	for _, s := range summaries {
		t.add(s.RuleName,
			fmt.Sprint(s.BuildsScanned),
			fmt.Sprint(s.BuildsSkipped),
			fmt.Sprint(s.Matches),
			fmt.Sprint(s.NewRecords),
			issueState(s),
			status(s))
	}
	t.render(out)
}

func issueState(s contracts.RuleSummary) string {
	if s.IssueUpdated {
		return "updated"
	}
	return "unchanged"
}

func status(s contracts.RuleSummary) string {
	switch {
	case s.Error != "":
		return oneLine(s.Error)
	case s.BuildsSkipped > 0:
		return "partial"
	}
	return "ok"
}
