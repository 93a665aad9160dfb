package timeline

import (
	"sort"

	"buildtriage/src/contracts"
)

// IsAnySuccess reports whether any node named jobName in any of the trees
// succeeded. ok is false when no tree has such a node. A build with several
// attempts or sub-timelines passes a job if any of them passed it.
func IsAnySuccess(trees []*Tree, jobName string) (success, ok bool) {
	for _, t := range trees {
		s, found := t.IsAnySuccess(jobName)
		if !found {
			continue
		}
		ok = true
		if s {
			return true, true
		}
	}
	return false, ok
}

// JobStat is the pass/fail tally of one job name across builds.
type JobStat struct {
	JobName string
	Passed  int
	Total   int
}

// Failed is the number of builds where the job never succeeded.
func (s JobStat) Failed() int {
	return s.Total - s.Passed
}

// Rate returns Passed/Total. ok is false when there is no data.
func (s JobStat) Rate() (rate float64, ok bool) {
	if s.Total == 0 {
		return 0, false
	}
	return float64(s.Passed) / float64(s.Total), true
}

// JobStats accumulates per-job pass rates across many builds.
type JobStats struct {
	stats  map[string]*JobStat
	builds map[contracts.BuildKey]bool
}

// NewJobStats creates an empty accumulator.
func NewJobStats() *JobStats {
	return &JobStats{
		stats:  make(map[string]*JobStat),
		builds: make(map[contracts.BuildKey]bool),
	}
}

// AddBuild tallies every job name found in the trees of one build. Adding
// the same build twice is ignored.
func (js *JobStats) AddBuild(build contracts.BuildKey, trees []*Tree) {
	if js.builds[build] {
		return
	}
	js.builds[build] = true

	names := make(map[string]bool)
	for _, t := range trees {
		for _, n := range t.JobNodes {
			names[n.Record.Name] = true
		}
	}

	for name := range names {
		success, ok := IsAnySuccess(trees, name)
		if !ok {
			continue
		}
		stat, exists := js.stats[name]
		if !exists {
			stat = &JobStat{JobName: name}
			js.stats[name] = stat
		}
		stat.Total++
		if success {
			stat.Passed++
		}
	}
}

// Get returns the tally for one job. A job never seen has Total 0, which
// Rate reports as no data.
func (js *JobStats) Get(jobName string) JobStat {
	if s, ok := js.stats[jobName]; ok {
		return *s
	}
	return JobStat{JobName: jobName}
}

// All returns every tally ordered by name.
func (js *JobStats) All() []JobStat {
	out := make([]JobStat, 0, len(js.stats))
	for _, s := range js.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].JobName < out[j].JobName
	})
	return out
}
