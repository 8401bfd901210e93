package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/eval"
	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/internal/tree"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
	"github.com/google/uuid"
)

// leafOutcome is what executing one leaf produced.
type leafOutcome struct {
	output string
	err    error
	voted  bool
	vote   voting.Outcome
}

// executeLeaves runs every executable leaf in order. Leaves are isolated:
// a failure marks that leaf failed and execution moves on. The success
// rate is kept current after each leaf and ends as succeeded/total, or 1.0
// when there were no leaves.
func (p *Planner) executeLeaves(ctx context.Context, r *run) error {
	st := r.state
	leaves := st.Leaves()
	succeeded := 0

	for i, leaf := range leaves {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("execute leaves: %w", err)
		}

		start := p.opts.now()
		out := p.executeLeaf(ctx, r, leaf)
		elapsed := p.opts.now().Sub(start)

		if out.err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("execute leaf %d: %w", leaf.ID, ctx.Err())
			}
			tree.MarkStatus(leaf, tree.StatusFailed, out.err.Error())
			p.opts.logger.Log("[planner] leaf %d failed: %v", leaf.ID, out.err)
			p.emit(r, Event{Type: EventLeafFailed, NodeID: leaf.ID, Task: leaf.Task, Error: out.err})
		} else {
			succeeded++
			tree.MarkStatus(leaf, tree.StatusCompleted, out.output)
			p.emit(r, Event{Type: EventLeafCompleted, NodeID: leaf.ID, Task: leaf.Task})
		}

		st.Phenotype = phenotype.Update(st.Phenotype,
			phenotype.WithSuccessRate(float64(succeeded)/float64(i+1)))
		p.logEval(r, leaf, out, elapsed, start)
	}

	if len(leaves) == 0 {
		st.Phenotype = phenotype.Update(st.Phenotype, phenotype.WithSuccessRate(1.0))
	}
	return nil
}

func (p *Planner) executeLeaf(ctx context.Context, r *run, leaf *tree.Node) leafOutcome {
	profile := profileOrAll(leaf.Profile)
	step := models.DecompStep{
		Description: leaf.Task,
		ToolHints:   append([]string{string(profile)}, leaf.ToolHints...),
		HighStakes:  leaf.HighStakes,
	}

	if !p.opts.votingEnabled || !voting.ShouldVote(step, r.state.Phenotype) {
		output, err := p.runner.RunSubtask(ctx, leaf.Task, profile)
		return leafOutcome{output: output, err: err}
	}

	outcome, err := voting.VoteUntilConsensus(ctx, r.votingCfg, p.voterFunc(profile), leaf.Task, p.opts.maxRounds)
	p.emit(r, Event{
		Type:    EventVoteCompleted,
		NodeID:  leaf.ID,
		Task:    leaf.Task,
		Message: fmt.Sprintf("rounds=%d responses=%d consensus=%v", outcome.Rounds, len(outcome.Responses), outcome.Consensus),
		Error:   err,
	})
	return leafOutcome{output: outcome.Output, err: err, voted: true, vote: outcome}
}

// voterFunc adapts the runner to a voting.RunFunc, passing sampling
// parameters through when the runner accepts them.
func (p *Planner) voterFunc(profile models.Profile) voting.RunFunc {
	if sampled, ok := p.runner.(SampledRunner); ok {
		return func(ctx context.Context, task string, params voting.SampleParams) (string, error) {
			return sampled.RunSampled(ctx, task, profile, params)
		}
	}
	return func(ctx context.Context, task string, _ voting.SampleParams) (string, error) {
		return p.runner.RunSubtask(ctx, task, profile)
	}
}

func (p *Planner) logEval(r *run, leaf *tree.Node, out leafOutcome, elapsed time.Duration, at time.Time) {
	if p.opts.evals == nil {
		return
	}
	e := eval.Eval{
		ID:         uuid.New().String(),
		RunID:      r.id,
		NodeID:     leaf.ID,
		Task:       leaf.Task,
		TaskType:   string(r.state.TaskType),
		Profile:    string(profileOrAll(leaf.Profile)),
		OK:         out.err == nil,
		Output:     out.output,
		Voted:      out.voted,
		VoteRounds: out.vote.Rounds,
		Consensus:  out.vote.Consensus,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  at,
	}
	if out.err != nil {
		e.Err = out.err.Error()
	}
	p.opts.evals.LogEval(e)
}
