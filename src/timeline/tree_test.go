package timeline

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"buildtriage/src/contracts"
)

var attempt = contracts.BuildAttemptKey{
	BuildKey: contracts.BuildKey{Organization: "dnceng", Project: "public", Number: 1234},
	Attempt:  1,
}

func rec(id, parent, recordType, name string) contracts.TimelineRecord {
	return contracts.TimelineRecord{ID: id, ParentID: parent, RecordType: recordType, Name: name}
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Record.ID
	}
	return out
}

func TestBuild_OrphanRecoveredAsRoot(t *testing.T) {
	records := []contracts.TimelineRecord{
		rec("A", "", "Job", "build"),
		rec("B", "A", "Task", "restore"),
		rec("C", "Z", "Task", "test"),
	}

	tree, err := Build(attempt, records)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if diff := cmp.Diff([]string{"A", "C"}, ids(tree.Roots)); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A"}, ids(tree.JobNodes)); diff != "" {
		t.Errorf("job nodes mismatch (-want +got):\n%s", diff)
	}

	want := []Warning{{Kind: WarningUnresolvedParent, RecordID: "C", ParentID: "Z"}}
	if diff := cmp.Diff(want, tree.Warnings); diff != "" {
		t.Errorf("warnings mismatch (-want +got):\n%s", diff)
	}

	c, _ := tree.Node("C")
	if !c.Promoted {
		t.Error("orphan should be marked promoted")
	}
	b, _ := tree.Node("B")
	if b.Parent == nil || b.Parent.Record.ID != "A" {
		t.Errorf("B should be a child of A")
	}
	if b.JobName() != "build" {
		t.Errorf("B.JobName() = %q, want %q", b.JobName(), "build")
	}
	if c.JobName() != "" {
		t.Errorf("orphan C is not under a job, JobName() = %q", c.JobName())
	}
}

func TestBuild_DuplicateID(t *testing.T) {
	records := []contracts.TimelineRecord{
		rec("A", "", "Job", "build"),
		rec("A", "", "Job", "test"),
	}

	_, err := Build(attempt, records)
	if !errors.Is(err, ErrDuplicateRecordID) {
		t.Fatalf("Build() error = %v, want ErrDuplicateRecordID", err)
	}
}

func TestBuild_CycleTerminatesAndBreaksOnce(t *testing.T) {
	tests := []struct {
		name       string
		records    []contracts.TimelineRecord
		wantRoots  []string
		wantBroken string
	}{
		{
			name: "two-cycle",
			records: []contracts.TimelineRecord{
				rec("A", "B", "Job", "a"),
				rec("B", "A", "Phase", "b"),
			},
			wantRoots:  []string{"B"},
			wantBroken: "B",
		},
		{
			name: "three-cycle under a real root",
			records: []contracts.TimelineRecord{
				rec("R", "", "Stage", "root"),
				rec("X", "Z", "Phase", "x"),
				rec("Y", "X", "Job", "y"),
				rec("Z", "Y", "Task", "z"),
			},
			wantRoots:  []string{"R", "Z"},
			wantBroken: "Z",
		},
		{
			name: "self parent",
			records: []contracts.TimelineRecord{
				rec("S", "S", "Job", "self"),
			},
			wantRoots:  []string{"S"},
			wantBroken: "S",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Build(attempt, tt.records)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantRoots, ids(tree.Roots)); diff != "" {
				t.Errorf("roots mismatch (-want +got):\n%s", diff)
			}

			var promoted []string
			for _, r := range tt.records {
				if n, _ := tree.Node(r.ID); n.Promoted {
					promoted = append(promoted, r.ID)
				}
			}
			if diff := cmp.Diff([]string{tt.wantBroken}, promoted); diff != "" {
				t.Errorf("promoted records mismatch (-want +got):\n%s", diff)
			}
			if len(tree.Warnings) != 1 || tree.Warnings[0].Kind != WarningParentCycle {
				t.Errorf("warnings = %+v, want one parent-cycle warning", tree.Warnings)
			}

			visited := 0
			tree.Walk(func(*Node) bool {
				visited++
				return true
			})
			if visited != len(tt.records) {
				t.Errorf("Walk visited %d nodes, want %d", visited, len(tt.records))
			}
		})
	}
}

func TestBuild_JobNodesDepthFirstOrder(t *testing.T) {
	records := []contracts.TimelineRecord{
		rec("stage2", "", "Stage", "Test"),
		rec("stage1", "", "Stage", "Build"),
		rec("job-b", "phase1", "Job", "Linux"),
		rec("phase1", "stage1", "Phase", "Build"),
		rec("job-a", "phase1", "Job", "Windows"),
		rec("job-c", "stage2", "Job", "Tests"),
		rec("task", "job-b", "Task", "compile"),
	}

	tree, err := Build(attempt, records)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"job-c", "job-b", "job-a"}
	if diff := cmp.Diff(want, ids(tree.JobNodes)); diff != "" {
		t.Errorf("job nodes mismatch (-want +got):\n%s", diff)
	}

	task, _ := tree.Node("task")
	if task.Depth() != 3 {
		t.Errorf("task depth = %d, want 3", task.Depth())
	}
	if tree.Len() != len(records) {
		t.Errorf("Len() = %d", tree.Len())
	}
}

func TestBuild_Empty(t *testing.T) {
	tree, err := Build(attempt, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Roots) != 0 || len(tree.JobNodes) != 0 {
		t.Errorf("empty snapshot produced %d roots, %d jobs", len(tree.Roots), len(tree.JobNodes))
	}
}
