package tree

import (
	"fmt"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// StepID returns the archived step id for a node.
func StepID(n *Node) string {
	return fmt.Sprintf("step-%d", n.ID)
}

// Hints returns the tool hints of n: its profile first, then its own
// hints without duplicates. ProfileFromHints recovers the profile from it.
func Hints(n *Node) []string {
	var hints []string
	seen := make(map[string]bool, len(n.ToolHints)+1)
	if n.Profile != "" {
		hints = append(hints, string(n.Profile))
		seen[string(n.Profile)] = true
	}
	for _, h := range n.ToolHints {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		hints = append(hints, h)
	}
	return hints
}

// Flatten turns the executed tree back into an ordered step sequence,
// depth-first. The root is not a step. Pruned and failed subtrees are left
// out. Each step depends only on its parent's step, except steps directly
// under the root, which have no dependencies.
func (s *State) Flatten() []models.DecompStep {
	var steps []models.DecompStep
	var visit func(parent, n *Node)
	visit = func(parent, n *Node) {
		if n.Status == StatusPruned || n.Status == StatusFailed {
			return
		}
		step := models.DecompStep{
			ID:          StepID(n),
			Description: n.Task,
			HighStakes:  n.HighStakes,
		}
		step.ToolHints = Hints(n)
		if parent != s.Root {
			step.Dependencies = []string{StepID(parent)}
		}
		steps = append(steps, step)
		for _, c := range n.Children {
			visit(n, c)
		}
	}
	for _, c := range s.Root.Children {
		visit(s.Root, c)
	}
	return steps
}
