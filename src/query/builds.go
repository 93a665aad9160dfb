package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"buildtriage/src/contracts"
)

// DefaultBuildCount is the build limit used when a query has no count.
const DefaultBuildCount = 5

// BuildsRequest selects builds. Zero-valued fields are unset.
type BuildsRequest struct {
	// Definition is a definition ID when it parses as an integer, otherwise
	// a definition name.
	Definition   string
	Count        int
	Repository   string
	Kind         contracts.BuildKind
	Result       contracts.TaskResult
	TargetBranch string
	Started      *DateValue
	Finished     *DateValue
}

// ParseBuildsRequest parses a builds query. Bare values name the definition.
func ParseBuildsRequest(q string) (*BuildsRequest, error) {
	r := &BuildsRequest{}
	for _, tok := range Tokenize(q) {
		if err := r.apply(tok); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *BuildsRequest) apply(tok Token) error {
	switch tok.Key {
	case "", "definition":
		r.Definition = tok.Value
	case "count":
		n, err := strconv.Atoi(tok.Value)
		if err != nil || n <= 0 {
			return badValue(tok, ErrBadNumber)
		}
		r.Count = n
	case "repository":
		r.Repository = tok.Value
	case "kind":
		kind, ok := contracts.ParseBuildKind(tok.Value)
		if !ok {
			return badValue(tok, ErrBadValue)
		}
		if kind == contracts.BuildKindAll {
			kind = ""
		}
		r.Kind = kind
	case "result":
		result := contracts.ParseTaskResult(tok.Value)
		if result == contracts.ResultUnknown || result == contracts.ResultNone {
			return badValue(tok, ErrBadValue)
		}
		r.Result = result
	case "targetbranch":
		r.TargetBranch = trimBranch(tok.Value)
	case "started", "finished":
		d, err := ParseDateValue(tok.Value)
		if err != nil {
			return badValue(tok, fmt.Errorf("%w: %v", ErrBadDate, err))
		}
		if tok.Key == "started" {
			r.Started = &d
		} else {
			r.Finished = &d
		}
	default:
		return unknownOption(tok)
	}
	return nil
}

// String renders the canonical query string for the request.
func (r *BuildsRequest) String() string {
	var parts []string
	if r.Definition != "" {
		parts = append(parts, FormatToken("definition", r.Definition))
	}
	if r.Count > 0 {
		parts = append(parts, FormatToken("count", strconv.Itoa(r.Count)))
	}
	if r.Repository != "" {
		parts = append(parts, FormatToken("repository", r.Repository))
	}
	if r.Kind != "" {
		parts = append(parts, FormatToken("kind", string(r.Kind)))
	}
	if r.Result != "" {
		parts = append(parts, FormatToken("result", string(r.Result)))
	}
	if r.TargetBranch != "" {
		parts = append(parts, FormatToken("targetbranch", r.TargetBranch))
	}
	if r.Started != nil {
		parts = append(parts, FormatToken("started", r.Started.String()))
	}
	if r.Finished != nil {
		parts = append(parts, FormatToken("finished", r.Finished.String()))
	}
	return joinTokens(parts)
}

// Limit returns the requested count, or def when none was given.
func (r *BuildsRequest) Limit(def int) int {
	if r.Count > 0 {
		return r.Count
	}
	return def
}

// DefinitionID returns the definition as an ID when it is numeric.
func (r *BuildsRequest) DefinitionID() (int, bool) {
	if r.Definition == "" {
		return 0, false
	}
	id, err := strconv.Atoi(r.Definition)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Matcher returns the conjunction of every set field. Relative dates are
// resolved against now.
func (r *BuildsRequest) Matcher(now time.Time) func(contracts.Build) bool {
	defID, byID := r.DefinitionID()
	return func(b contracts.Build) bool {
		if r.Definition != "" {
			if byID {
				if b.DefinitionID != defID {
					return false
				}
			} else if !strings.EqualFold(b.DefinitionName, r.Definition) {
				return false
			}
		}
		if r.Repository != "" && !strings.EqualFold(b.Repository, r.Repository) {
			return false
		}
		if r.Kind != "" && b.Kind != r.Kind {
			return false
		}
		if r.Result != "" && b.Result != r.Result {
			return false
		}
		if r.TargetBranch != "" && !strings.EqualFold(trimBranch(b.TargetBranch), r.TargetBranch) {
			return false
		}
		if r.Started != nil && !r.Started.Contains(b.ActivityTime(), now) {
			return false
		}
		if r.Finished != nil && (b.FinishTime == nil || !r.Finished.Contains(*b.FinishTime, now)) {
			return false
		}
		return true
	}
}

// Filter keeps the builds that match, preserving their order. Count is not
// applied here.
func (r *BuildsRequest) Filter(builds []contracts.Build) []contracts.Build {
	match := r.Matcher(Now())
	var out []contracts.Build
	for _, b := range builds {
		if match(b) {
			out = append(out, b)
		}
	}
	return out
}

// SQLWhere renders the request as a WHERE clause over the builds table. An
// empty clause means every row matches.
func (r *BuildsRequest) SQLWhere(now time.Time, d Dialect) (string, []any) {
	w := newWhere(d)
	if r.Definition != "" {
		if id, ok := r.DefinitionID(); ok {
			w.add("definition_id = %s", id)
		} else {
			w.add("LOWER(definition_name) = LOWER(%s)", r.Definition)
		}
	}
	if r.Repository != "" {
		w.add("LOWER(repository) = LOWER(%s)", r.Repository)
	}
	if r.Kind != "" {
		w.add("kind = %s", string(r.Kind))
	}
	if r.Result != "" {
		w.add("result = %s", string(r.Result))
	}
	if r.TargetBranch != "" {
		w.add("LOWER(target_branch) = LOWER(%s)", r.TargetBranch)
	}
	if r.Started != nil {
		w.addRange("COALESCE(start_time, queue_time)", *r.Started, now)
	}
	if r.Finished != nil {
		w.addRange("finish_time", *r.Finished, now)
	}
	return w.String(), w.args
}

func trimBranch(branch string) string {
	return strings.TrimPrefix(branch, "refs/heads/")
}
