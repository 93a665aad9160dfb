// Package timeline reconstructs the hierarchy of a build timeline from the
// flat record list a provider returns.
//
// Provider data is untrusted: duplicate record IDs are rejected, records
// whose parent is missing become extra roots, and parent cycles are broken
// by promoting the record that would close the cycle to a root.
package timeline

import (
	"errors"
	"fmt"

	"buildtriage/src/contracts"
)

var ErrDuplicateRecordID = errors.New("duplicate timeline record id")

// WarningKind classifies a recovered structural problem.
type WarningKind string

const (
	WarningUnresolvedParent WarningKind = "unresolved-parent"
	WarningParentCycle      WarningKind = "parent-cycle"
)

// Warning describes a record that was promoted to a root.
type Warning struct {
	Kind     WarningKind
	RecordID string
	ParentID string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: record %s (parent %s) treated as root", w.Kind, w.RecordID, w.ParentID)
}

// Node is one record in the tree.
type Node struct {
	Record   contracts.TimelineRecord
	Parent   *Node
	Children []*Node
	// Promoted is set when the record had a parent that could not be used.
	Promoted bool
}

// JobName returns the name of the nearest job at or above the node, or ""
// when the node is not under a job.
func (n *Node) JobName() string {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Record.IsJob() {
			return cur.Record.Name
		}
	}
	return ""
}

// Depth is the number of ancestors of the node.
func (n *Node) Depth() int {
	depth := 0
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		depth++
	}
	return depth
}

// Tree is an immutable timeline hierarchy for one build attempt.
type Tree struct {
	Attempt  contracts.BuildAttemptKey
	Roots    []*Node
	JobNodes []*Node
	Warnings []Warning

	byID map[string]*Node
}

// Build constructs a tree from one timeline snapshot. Children and roots
// keep record-array order.
func Build(attempt contracts.BuildAttemptKey, records []contracts.TimelineRecord) (*Tree, error) {
	t := &Tree{
		Attempt: attempt,
		byID:    make(map[string]*Node, len(records)),
	}

	nodes := make([]*Node, len(records))
	for i, rec := range records {
		if _, dup := t.byID[rec.ID]; dup {
			return nil, fmt.Errorf("%w: %q in %s", ErrDuplicateRecordID, rec.ID, attempt)
		}
		n := &Node{Record: rec}
		t.byID[rec.ID] = n
		nodes[i] = n
	}

	for _, n := range nodes {
		parentID := n.Record.ParentID
		if parentID == "" {
			continue
		}

		parent, ok := t.byID[parentID]
		if !ok {
			n.Promoted = true
			t.Warnings = append(t.Warnings, Warning{Kind: WarningUnresolvedParent, RecordID: n.Record.ID, ParentID: parentID})
			continue
		}

		// Attached links always form a forest, so this walk terminates.
		if parent == n || isAncestor(n, parent) {
			n.Promoted = true
			t.Warnings = append(t.Warnings, Warning{Kind: WarningParentCycle, RecordID: n.Record.ID, ParentID: parentID})
			continue
		}

		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}

	for _, n := range nodes {
		if n.Parent == nil {
			t.Roots = append(t.Roots, n)
		}
	}

	t.Walk(func(n *Node) bool {
		if n.Record.IsJob() {
			t.JobNodes = append(t.JobNodes, n)
		}
		return true
	})

	return t, nil
}

// isAncestor reports whether candidate is on the attached parent chain of n.
func isAncestor(candidate, n *Node) bool {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur == candidate {
			return true
		}
	}
	return false
}

// Node returns the node for a record id.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Len is the number of records in the tree.
func (t *Tree) Len() int {
	return len(t.byID)
}

// Walk visits nodes depth-first from the roots in record-array order.
// Returning false from fn skips the node's children.
func (t *Tree) Walk(fn func(*Node) bool) {
	var visit func(*Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range t.Roots {
		visit(r)
	}
}

// IsAnySuccess reports whether any node named jobName succeeded. ok is false
// when the tree has no node with that name.
func (t *Tree) IsAnySuccess(jobName string) (success, ok bool) {
	for _, n := range t.byID {
		if n.Record.Name != jobName {
			continue
		}
		ok = true
		if n.Record.Result.IsSuccess() {
			return true, true
		}
	}
	return false, ok
}
