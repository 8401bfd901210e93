// Package tree holds the mutable decomposition tree of a single run together
// with its checkpoint stack.
//
// A tree is single-owner: every node is owned by its parent and the root is
// owned by the State. The planner mutates it from one goroutine only, so
// nothing here is synchronised.
package tree

import "github.com/ShayCichocki/geodecomp/pkg/models"

// Status is the lifecycle state of a node.
type Status string

const (
	// StatusPending nodes have not been decomposed or executed.
	StatusPending Status = "pending"
	// StatusDecomposed nodes have children that carry their work.
	StatusDecomposed Status = "decomposed"
	// StatusInline nodes are executed directly without further decomposition.
	StatusInline Status = "inline"
	// StatusCompleted nodes executed successfully.
	StatusCompleted Status = "completed"
	// StatusFailed nodes executed and failed.
	StatusFailed Status = "failed"
	// StatusPruned nodes are kept for auditing but never executed.
	StatusPruned Status = "pruned"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDecomposed, StatusInline, StatusCompleted, StatusFailed, StatusPruned:
		return true
	default:
		return false
	}
}

// Executable reports whether a childless node in this status may run.
func (s Status) Executable() bool {
	return s == StatusPending || s == StatusInline
}

// Node is one subtask in the decomposition tree.
type Node struct {
	// ID is unique and monotonically increasing within a State.
	ID   int
	Task string
	// Status is the lifecycle state; see the Status constants.
	Status   Status
	Children []*Node
	// Result holds the leaf output once completed.
	Result string
	// Err holds the failure message once failed.
	Err     string
	Profile models.Profile
	// ToolHints are the tools the subtask expects to use, beyond its profile.
	ToolHints []string
	// HighStakes leaves are always executed through consensus voting.
	HighStakes bool
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// AddChild appends child to parent. Insertion order is execution order.
func AddChild(parent, child *Node) {
	parent.Children = append(parent.Children, child)
}

// MarkStatus sets the status of a node. For completed nodes result is stored
// as the node result, for failed nodes it is stored as the error message.
func MarkStatus(n *Node, status Status, result string) {
	n.Status = status
	switch status {
	case StatusCompleted:
		n.Result = result
		n.Err = ""
	case StatusFailed:
		n.Err = result
	}
}

// PruneNode marks n and all of its descendants pruned.
// Pruned nodes stay in the tree.
func PruneNode(n *Node) {
	n.Status = StatusPruned
	for _, c := range n.Children {
		PruneNode(c)
	}
}

// clone deep-copies n and its subtree.
func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.ToolHints != nil {
		cp.ToolHints = append([]string(nil), n.ToolHints...)
	}
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.clone()
		}
	}
	return &cp
}

// walk visits n and its descendants depth-first, pre-order.
// Returning false from fn skips the node's children.
func walk(n *Node, depth int, fn func(n *Node, depth int) bool) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		walk(c, depth+1, fn)
	}
}
