package timeline

import (
	"testing"

	"buildtriage/src/contracts"
)

func jobTree(t *testing.T, number int, results map[string]contracts.TaskResult) *Tree {
	t.Helper()
	var records []contracts.TimelineRecord
	for name, result := range results {
		records = append(records, contracts.TimelineRecord{
			ID:         name,
			Name:       name,
			RecordType: contracts.RecordTypeJob,
			Result:     result,
		})
	}
	key := contracts.BuildAttemptKey{BuildKey: contracts.BuildKey{Organization: "o", Project: "p", Number: number}, Attempt: 1}
	tree, err := Build(key, records)
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestIsAnySuccess_NoData(t *testing.T) {
	tree := jobTree(t, 1, map[string]contracts.TaskResult{"linux": contracts.ResultFailed})

	success, ok := tree.IsAnySuccess("windows")
	if ok || success {
		t.Errorf("IsAnySuccess(windows) = %v, %v; want no data", success, ok)
	}

	success, ok = IsAnySuccess(nil, "windows")
	if ok || success {
		t.Errorf("IsAnySuccess(no trees) = %v, %v; want no data", success, ok)
	}
}

func TestIsAnySuccess_AcrossAttempts(t *testing.T) {
	first := jobTree(t, 1, map[string]contracts.TaskResult{"linux": contracts.ResultFailed})
	retry := jobTree(t, 1, map[string]contracts.TaskResult{"linux": contracts.ResultSucceededWithIssues})

	if success, ok := IsAnySuccess([]*Tree{first}, "linux"); !ok || success {
		t.Errorf("first attempt only: got %v, %v; want failure", success, ok)
	}
	if success, ok := IsAnySuccess([]*Tree{first, retry}, "linux"); !ok || !success {
		t.Errorf("with partially succeeded retry: got %v, %v; want success", success, ok)
	}
}

func TestJobStats(t *testing.T) {
	stats := NewJobStats()
	stats.AddBuild(contracts.BuildKey{Number: 1}, []*Tree{jobTree(t, 1, map[string]contracts.TaskResult{
		"linux":   contracts.ResultSucceeded,
		"windows": contracts.ResultFailed,
	})})
	stats.AddBuild(contracts.BuildKey{Number: 2}, []*Tree{jobTree(t, 2, map[string]contracts.TaskResult{
		"linux":   contracts.ResultFailed,
		"windows": contracts.ResultFailed,
	})})
	// Same build again must not be double counted.
	stats.AddBuild(contracts.BuildKey{Number: 2}, []*Tree{jobTree(t, 2, map[string]contracts.TaskResult{
		"linux": contracts.ResultSucceeded,
	})})

	linux := stats.Get("linux")
	if linux.Passed != 1 || linux.Total != 2 || linux.Failed() != 1 {
		t.Errorf("linux = %+v", linux)
	}
	if rate, ok := linux.Rate(); !ok || rate != 0.5 {
		t.Errorf("linux rate = %v, %v; want 0.5", rate, ok)
	}

	windows := stats.Get("windows")
	if rate, ok := windows.Rate(); !ok || rate != 0 {
		t.Errorf("windows rate = %v, %v; want 0", rate, ok)
	}

	if rate, ok := stats.Get("macos").Rate(); ok {
		t.Errorf("macos rate = %v; want no data", rate)
	}

	all := stats.All()
	if len(all) != 2 || all[0].JobName != "linux" || all[1].JobName != "windows" {
		t.Errorf("All() = %+v", all)
	}
}
