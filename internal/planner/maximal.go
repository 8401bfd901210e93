package planner

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/geodecomp/internal/decompose"
	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/internal/tree"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// maximal expands pending leaves one at a time until none remain, the
// iteration cap is hit, or a stop signal arrives. ok is false when pending
// leaves are left over.
func (p *Planner) maximal(ctx context.Context, r *run) (ok, stopped bool, err error) {
	st := r.state

	for iter := 0; iter < p.opts.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return false, false, fmt.Errorf("maximal decomposition: %w", err)
		}
		if p.opts.stop != nil && p.opts.stop.ShouldStop() {
			p.opts.logger.Log("[planner] stop signal received after %d iterations", iter)
			return false, true, nil
		}

		if dim := spendExhausted(st.Phenotype, st.Limits); dim.Exploded() {
			p.inlinePending(r, dim)
			return true, false, nil
		}

		leaf := p.nextExpandable(st)
		if leaf == nil {
			return true, false, nil
		}

		if err := p.expand(ctx, r, leaf); err != nil {
			return false, false, err
		}
	}

	pending := len(st.PendingLeaves())
	if pending > 0 {
		p.opts.logger.Log("[planner] iteration cap %d reached with %d pending leaves", p.opts.maxIterations, pending)
	}
	return pending == 0, false, nil
}

// spendExhausted reports the spend dimension, cost or context, that is
// already over its limit. No further LLM call may be made once it is.
func spendExhausted(p phenotype.Phenotype, l phenotype.Limits) phenotype.Dimension {
	switch {
	case p.Cost > l.MaxCost:
		return phenotype.DimensionCost
	case p.ContextSize > l.MaxContext:
		return phenotype.DimensionContext
	default:
		return phenotype.DimensionNone
	}
}

// inlinePending marks every pending leaf inline without asking the LLM.
func (p *Planner) inlinePending(r *run, dim phenotype.Dimension) {
	pending := r.state.PendingLeaves()
	for _, leaf := range pending {
		tree.MarkStatus(leaf, tree.StatusInline, "")
	}
	p.opts.logger.Log("[planner] %s budget spent (%+v), %d pending leaves run inline", dim, r.state.Phenotype, len(pending))
}

// nextExpandable returns the first pending leaf above MaxDepth. Pending
// leaves already at MaxDepth are marked inline on the way.
func (p *Planner) nextExpandable(st *tree.State) *tree.Node {
	for _, leaf := range st.PendingLeaves() {
		if st.NodeDepth(leaf) < st.Limits.MaxDepth {
			return leaf
		}
		tree.MarkStatus(leaf, tree.StatusInline, "")
	}
	return nil
}

// expand asks the LLM to split leaf. Rejected or empty answers leave the
// leaf inline; an explosion rolls the expansion back and prunes the leaf
// to inline. The checkpoint is dropped once the outcome is settled.
// Children are attached so that dependencies run first.
func (p *Planner) expand(ctx context.Context, r *run, leaf *tree.Node) error {
	st := r.state
	id := leaf.ID

	base := st.CheckpointCount()
	st.Checkpoint(fmt.Sprintf("decompose node %d", id))
	defer st.Commit(base)
	p.emit(r, Event{Type: EventCheckpoint, NodeID: id, Task: leaf.Task})

	prompt := decompose.BuildPrompt(st.RootTask, leaf.Task, ancestry(st.Root, id), p.opts.maxSubtasks)
	resp, err := p.sender.Send(ctx, prompt)
	st.StepsTaken++
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("decompose node %d: %w", id, ctx.Err())
		}
		p.opts.logger.Log("[planner] decompose node %d: send failed: %v", id, err)
		tree.MarkStatus(leaf, tree.StatusInline, "")
		return nil
	}

	spent := resp.Cost()
	tokens := resp.Tokens()
	st.Phenotype = phenotype.Update(st.Phenotype,
		phenotype.WithCost(st.Phenotype.Cost+spent),
		phenotype.WithContext(st.Phenotype.ContextSize+tokens),
	)

	if !resp.OK {
		tree.MarkStatus(leaf, tree.StatusInline, "")
		return nil
	}

	if critical := decompose.CriticalFlags(p.opts.redFlagger.RedFlags(resp.Raw)); len(critical) > 0 {
		for _, f := range critical {
			p.opts.logger.Log("[planner] decompose node %d rejected: %s", id, f)
		}
		tree.MarkStatus(leaf, tree.StatusInline, "")
		return nil
	}

	subtasks, err := decompose.ParseSubtasks(resp.Raw, p.opts.maxSubtasks)
	if err != nil || len(subtasks) == 0 {
		if err != nil {
			p.opts.logger.Log("[planner] decompose node %d: %v", id, err)
		}
		tree.MarkStatus(leaf, tree.StatusInline, "")
		return nil
	}
	p.opts.redFlagger.MarkProtected(subtasks)

	for _, sub := range decompose.OrderByDependencies(subtasks) {
		child := st.NewNode(sub.Description, sub.Profile)
		child.ToolHints = sub.ToolHints
		child.HighStakes = sub.HighStakes
		tree.AddChild(leaf, child)
	}
	tree.MarkStatus(leaf, tree.StatusDecomposed, "")

	st.Phenotype = phenotype.Update(st.Phenotype,
		phenotype.WithDepth(max(st.Phenotype.Depth, st.NodeDepth(leaf)+1)),
		phenotype.WithBreadth(st.ComputeBreadth()),
	)

	if dim := phenotype.DetectExplosion(st.Phenotype, st.Limits); dim.Exploded() {
		if _, err := st.Rollback(); err != nil {
			return fmt.Errorf("roll back node %d: %w", id, err)
		}
		// The spend happened regardless of the rollback.
		st.Phenotype = phenotype.Update(st.Phenotype,
			phenotype.WithCost(st.Phenotype.Cost+spent),
			phenotype.WithContext(st.Phenotype.ContextSize+tokens),
		)
		restored := st.Find(id)
		if restored == nil {
			return fmt.Errorf("roll back node %d: %w", id, tree.ErrUnknownNode)
		}
		tree.PruneNode(restored)
		tree.MarkStatus(restored, tree.StatusInline, "")
		p.emit(r, Event{Type: EventRollback, NodeID: id, Task: restored.Task, Message: "exploded on " + dim.String()})
		return nil
	}

	p.emit(r, Event{Type: EventNodeDecomposed, NodeID: id, Task: leaf.Task, Message: fmt.Sprintf("%d subtasks", len(subtasks))})
	return nil
}

// ancestry returns the tasks from the root down to, but excluding, node id.
func ancestry(root *tree.Node, id int) []string {
	var path []string
	var find func(n *tree.Node) bool
	find = func(n *tree.Node) bool {
		if n.ID == id {
			return true
		}
		path = append(path, n.Task)
		for _, c := range n.Children {
			if find(c) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if !find(root) {
		return nil
	}
	return path
}

// profileOrAll returns p, or ProfileAll when p is not a known profile.
func profileOrAll(p models.Profile) models.Profile {
	if p.Valid() {
		return p
	}
	return models.ProfileAll
}
