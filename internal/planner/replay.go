package planner

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/internal/tree"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// TaskPlaceholder in an archived step description is replaced by the root
// task on replay.
const TaskPlaceholder = "{{task}}"

// AdaptDescription fills an archived step description in for rootTask.
func AdaptDescription(description, rootTask string) string {
	return strings.ReplaceAll(description, TaskPlaceholder, rootTask)
}

// replay rebuilds the tree from an archived pattern, one checkpointed step
// at a time. The step checkpoints are dropped once every step fits. An
// explosion rolls the whole replay back and returns false so
// the caller can fall back to maximal decomposition.
func (p *Planner) replay(r *run, pattern models.DecompositionPattern) (bool, error) {
	st := r.state
	base := st.CheckpointCount()
	nodes := make(map[string]*tree.Node, len(pattern.Steps))

	for _, step := range pattern.Steps {
		st.Checkpoint(step.ID)
		p.emit(r, Event{Type: EventCheckpoint, Message: step.ID})

		parent := st.Root
		for _, dep := range step.Dependencies {
			if n, ok := nodes[dep]; ok {
				parent = n
				break
			}
		}

		node := st.NewNode(AdaptDescription(step.Description, st.RootTask), models.ProfileFromHints(step.ToolHints))
		node.ToolHints = append([]string(nil), step.ToolHints...)
		node.HighStakes = step.HighStakes
		tree.AddChild(parent, node)
		if parent.Status == tree.StatusPending {
			tree.MarkStatus(parent, tree.StatusDecomposed, "")
		}
		nodes[step.ID] = node
		st.StepsTaken++

		st.Phenotype = phenotype.Update(st.Phenotype,
			phenotype.WithDepth(max(st.Phenotype.Depth, st.NodeDepth(node))),
			phenotype.WithBreadth(st.ComputeBreadth()),
		)

		if dim := phenotype.DetectExplosion(st.Phenotype, st.Limits); dim.Exploded() {
			p.opts.logger.Log("[planner] replay step %s exploded on %s", step.ID, dim)
			if err := p.unwind(st, base); err != nil {
				return false, err
			}
			p.emit(r, Event{Type: EventRollback, Message: fmt.Sprintf("replay step %s exploded on %s", step.ID, dim)})
			return false, nil
		}
	}
	st.Commit(base)
	return true, nil
}

// unwind rolls back until only base checkpoints remain.
func (p *Planner) unwind(st *tree.State, base int) error {
	for st.CheckpointCount() > base {
		if _, err := st.Rollback(); err != nil {
			return fmt.Errorf("unwind replay: %w", err)
		}
	}
	return nil
}
