package tree

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// ErrNoCheckpoint is returned by Rollback when the checkpoint stack is empty.
var ErrNoCheckpoint = errors.New("no checkpoint to roll back to")

// ErrUnknownNode is returned when a node id is not part of the tree.
var ErrUnknownNode = errors.New("unknown node")

// Checkpoint is a snapshot of the tree taken before a risky mutation.
type Checkpoint struct {
	Tree      *Node
	Phenotype phenotype.Phenotype
	StepIndex int
	Reason    string
}

// State is the full mutable state of one decomposition run.
// It is created per top-level task and discarded once results are extracted.
type State struct {
	RootTask   string
	TaskType   models.TaskType
	Priority   models.Priority
	Root       *Node
	Phenotype  phenotype.Phenotype
	Limits     phenotype.Limits
	StepsTaken int
	Meta       map[string]string

	// checkpoints is a stack, most recent last.
	checkpoints []Checkpoint
	nextID      int
}

// NewState creates a run state whose root node carries rootTask.
func NewState(rootTask string, taskType models.TaskType, priority models.Priority, limits phenotype.Limits) *State {
	s := &State{
		RootTask:  rootTask,
		TaskType:  taskType,
		Priority:  priority,
		Phenotype: phenotype.Initial(),
		Limits:    limits,
		Meta:      make(map[string]string),
	}
	s.Root = s.NewNode(rootTask, "")
	return s
}

// NewNode allocates a pending node with the next id. It is not attached.
func (s *State) NewNode(task string, profile models.Profile) *Node {
	s.nextID++
	return &Node{
		ID:      s.nextID,
		Task:    task,
		Status:  StatusPending,
		Profile: profile,
	}
}

// Find returns the node with the given id, or nil.
func (s *State) Find(id int) *Node {
	var found *Node
	walk(s.Root, 0, func(n *Node, _ int) bool {
		if n.ID == id {
			found = n
		}
		return found == nil
	})
	return found
}

// NodeStatus returns the status of the node with the given id.
func (s *State) NodeStatus(id int) (Status, error) {
	n := s.Find(id)
	if n == nil {
		return "", fmt.Errorf("node %d: %w", id, ErrUnknownNode)
	}
	return n.Status, nil
}

// NodeDepth returns the depth of n below the root (the root is 0), or -1 if
// n is not in the tree. Depth is recomputed by traversal on every call.
func (s *State) NodeDepth(n *Node) int {
	depth := -1
	walk(s.Root, 0, func(cur *Node, d int) bool {
		if cur == n {
			depth = d
		}
		return depth < 0
	})
	return depth
}

// MaxDepth returns the depth of the deepest node.
func (s *State) MaxDepth() int {
	deepest := 0
	walk(s.Root, 0, func(_ *Node, d int) bool {
		deepest = max(deepest, d)
		return true
	})
	return deepest
}

// ComputeBreadth returns the largest number of siblings at any level of the
// tree. A lone root has breadth 1.
func (s *State) ComputeBreadth() int {
	perLevel := make(map[int]int)
	breadth := 0
	walk(s.Root, 0, func(_ *Node, d int) bool {
		perLevel[d]++
		breadth = max(breadth, perLevel[d])
		return true
	})
	return breadth
}

// Size returns the number of nodes in the tree, pruned nodes included.
func (s *State) Size() int {
	size := 0
	walk(s.Root, 0, func(*Node, int) bool {
		size++
		return true
	})
	return size
}

// Leaves returns every executable leaf in depth-first order: nodes without
// children whose status is pending or inline. Subtrees under a pruned node
// are skipped.
func (s *State) Leaves() []*Node {
	var leaves []*Node
	walk(s.Root, 0, func(n *Node, _ int) bool {
		if n.Status == StatusPruned {
			return false
		}
		if n.IsLeaf() && n.Status.Executable() {
			leaves = append(leaves, n)
		}
		return true
	})
	return leaves
}

// PendingLeaves returns the executable leaves that are still pending.
func (s *State) PendingLeaves() []*Node {
	var pending []*Node
	for _, n := range s.Leaves() {
		if n.Status == StatusPending {
			pending = append(pending, n)
		}
	}
	return pending
}

// Checkpoint pushes a deep copy of the tree and phenotype onto the stack.
func (s *State) Checkpoint(reason string) {
	s.checkpoints = append(s.checkpoints, Checkpoint{
		Tree:      s.Root.clone(),
		Phenotype: s.Phenotype,
		StepIndex: s.StepsTaken,
		Reason:    reason,
	})
}

// Rollback restores the most recent checkpoint and pops it.
func (s *State) Rollback() (Checkpoint, error) {
	if len(s.checkpoints) == 0 {
		return Checkpoint{}, ErrNoCheckpoint
	}
	last := len(s.checkpoints) - 1
	cp := s.checkpoints[last]
	s.checkpoints = s.checkpoints[:last]

	// The snapshot is handed over to the state; keep no alias to it.
	s.Root = cp.Tree
	s.Phenotype = cp.Phenotype
	s.StepsTaken = cp.StepIndex
	return cp, nil
}

// Commit drops every checkpoint above the first keep without restoring
// them. It is used once a mutation has been accepted.
func (s *State) Commit(keep int) {
	if keep < 0 {
		keep = 0
	}
	if keep >= len(s.checkpoints) {
		return
	}
	clear(s.checkpoints[keep:])
	s.checkpoints = s.checkpoints[:keep]
}

// CheckpointCount returns the number of checkpoints on the stack.
func (s *State) CheckpointCount() int {
	return len(s.checkpoints)
}

// LeafResult pairs an executed leaf task with its output.
type LeafResult struct {
	NodeID int
	Task   string
	Result string
	Err    string
	OK     bool
}

// Results returns the completed and failed leaves in execution order.
func (s *State) Results() []LeafResult {
	var results []LeafResult
	walk(s.Root, 0, func(n *Node, _ int) bool {
		if n.Status == StatusPruned {
			return false
		}
		if !n.IsLeaf() {
			return true
		}
		switch n.Status {
		case StatusCompleted:
			results = append(results, LeafResult{NodeID: n.ID, Task: n.Task, Result: n.Result, OK: true})
		case StatusFailed:
			results = append(results, LeafResult{NodeID: n.ID, Task: n.Task, Err: n.Err})
		}
		return true
	})
	return results
}
