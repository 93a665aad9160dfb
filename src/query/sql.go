package query

import (
	"fmt"
	"strings"
	"time"
)

// Now is the clock used when a predicate is built. Relative dates in a
// stored query therefore describe a moving window.
var Now = func() time.Time { return time.Now().UTC() }

// Dialect adapts rendered SQL to a database driver.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// TimeArg converts a timestamp into the column's storage form.
	TimeArg func(t time.Time) any
}

// PostgresDialect binds $n parameters and native timestamps.
var PostgresDialect = Dialect{
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	TimeArg:     func(t time.Time) any { return t.UTC() },
}

// SQLiteDialect binds ? parameters and stores timestamps as unix seconds.
var SQLiteDialect = Dialect{
	Placeholder: func(int) string { return "?" },
	TimeArg:     func(t time.Time) any { return t.UTC().Unix() },
}

type where struct {
	dialect Dialect
	clauses []string
	args    []any
}

func newWhere(d Dialect) *where {
	return &where{dialect: d}
}

// add appends a clause with exactly one %s for the bind parameter.
func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, w.dialect.Placeholder(len(w.args))))
}

func (w *where) addRange(column string, d DateValue, now time.Time) {
	from, to := d.Range(now)
	if !from.IsZero() {
		w.add(column+" >= %s", w.dialect.TimeArg(from))
	}
	if !to.IsZero() {
		w.add(column+" < %s", w.dialect.TimeArg(to))
	}
}

func (w *where) String() string {
	return strings.Join(w.clauses, " AND ")
}
