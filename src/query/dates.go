package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateKind selects how a DateValue compares against a timestamp.
type DateKind int

const (
	// DateOn matches timestamps within the UTC day of Date.
	DateOn DateKind = iota
	// DateAfter matches timestamps at or after the start of Date.
	DateAfter
	// DateBefore matches timestamps before the start of Date.
	DateBefore
	// DateWithinDays matches timestamps within Days of the evaluation time.
	DateWithinDays
)

const dateLayout = "2006-01-02"

// DateValue is a parsed date filter. Relative values keep the day count and
// are resolved against the clock each time a predicate is built.
type DateValue struct {
	Kind DateKind
	Date time.Time
	Days int
}

// ParseDateValue accepts YYYY-MM-DD, >YYYY-MM-DD, <YYYY-MM-DD and ~N.
func ParseDateValue(s string) (DateValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateValue{}, fmt.Errorf("empty date")
	}

	switch s[0] {
	case '~':
		days, err := strconv.Atoi(s[1:])
		if err != nil || days < 0 {
			return DateValue{}, fmt.Errorf("invalid relative day count %q", s[1:])
		}
		return DateValue{Kind: DateWithinDays, Days: days}, nil
	case '>':
		d, err := time.Parse(dateLayout, s[1:])
		if err != nil {
			return DateValue{}, err
		}
		return DateValue{Kind: DateAfter, Date: d}, nil
	case '<':
		d, err := time.Parse(dateLayout, s[1:])
		if err != nil {
			return DateValue{}, err
		}
		return DateValue{Kind: DateBefore, Date: d}, nil
	}

	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return DateValue{}, err
	}
	return DateValue{Kind: DateOn, Date: d}, nil
}

// String renders the value in the form ParseDateValue accepts.
func (d DateValue) String() string {
	switch d.Kind {
	case DateWithinDays:
		return "~" + strconv.Itoa(d.Days)
	case DateAfter:
		return ">" + d.Date.Format(dateLayout)
	case DateBefore:
		return "<" + d.Date.Format(dateLayout)
	default:
		return d.Date.Format(dateLayout)
	}
}

// Range resolves the value into a half-open [from, to) interval evaluated
// at now. A zero bound is open.
func (d DateValue) Range(now time.Time) (from, to time.Time) {
	switch d.Kind {
	case DateWithinDays:
		return now.UTC().AddDate(0, 0, -d.Days), time.Time{}
	case DateAfter:
		return d.Date, time.Time{}
	case DateBefore:
		return time.Time{}, d.Date
	default:
		return d.Date, d.Date.AddDate(0, 0, 1)
	}
}

// Contains reports whether t falls inside the range evaluated at now.
func (d DateValue) Contains(t, now time.Time) bool {
	from, to := d.Range(now)
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
