// Package planner turns a root task into a tree of subtasks, executes the
// leaves, and archives decompositions that worked.
//
// A run moves through classify, build-limits, select-strategy (replay or
// maximal), execute-leaves and score-and-archive. A run is single-goroutine;
// only the voting engine fans out.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/eval"
	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/internal/tree"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
	"github.com/google/uuid"
)

// Strategy names how the tree was built.
type Strategy string

const (
	StrategyReplay  Strategy = "replay"
	StrategyMaximal Strategy = "maximal"
)

// LeafResult pairs an executed leaf task with its output.
type LeafResult = tree.LeafResult

// RunContext carries the caller's preferences for one run.
type RunContext struct {
	// Priority fixes the limits tier. Empty means derive it from Preference.
	Priority models.Priority
	// Preference is free text such as "quick prototype" used to pick the
	// target phenotype.
	Preference string
	// Budget is the cost budget in currency units.
	Budget float64
	// ContextLimit is the context cap in tokens.
	ContextLimit int
}

// Result is the outcome of a run.
type Result struct {
	RunID     string
	Results   []LeafResult
	Phenotype phenotype.Phenotype
	Limits    phenotype.Limits
	// Success is true when the strategy finished and the leaf success rate
	// reached both the archive threshold and the limits' minimum.
	Success  bool
	Strategy Strategy
	// StrategyOK is false when the tree could not be fully built.
	StrategyOK bool
	// Stopped is true when a stop signal ended the run early.
	Stopped  bool
	TaskType models.TaskType
	Priority models.Priority
	Target   archive.Target
	// ReplayedPatternID is the archived pattern the tree was built from.
	ReplayedPatternID string
	// PatternID is the id of the pattern archived by this run, if any.
	PatternID string
	Root      *tree.Node
	Duration  time.Duration
}

// Planner runs decompositions.
type Planner struct {
	sender Sender
	runner SubtaskRunner
	opts   plannerOptions
}

// New creates a Planner.
func New(req Required, opts ...Option) (*Planner, error) {
	if req.Sender == nil {
		return nil, errors.New("planner: sender is required")
	}
	if req.Runner == nil {
		return nil, errors.New("planner: runner is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Planner{sender: req.Sender, runner: req.Runner, opts: o}, nil
}

// run is the mutable bookkeeping of one Run call.
type run struct {
	id        string
	state     *tree.State
	target    archive.Target
	archive   *archive.Archive
	replayed  *archive.Entry
	votingCfg voting.Config
	started   time.Time
	strategy  Strategy
}

func (p *Planner) emit(r *run, e Event) {
	e.RunID = r.id
	if e.Phenotype == (phenotype.Phenotype{}) {
		e.Phenotype = r.state.Phenotype
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = p.opts.now()
	}
	p.opts.emitter.Emit(e)
}

// Run decomposes rootTask, executes the leaves, and archives the
// decomposition when it succeeded. Runs that cannot make progress return
// Success=false with partial results and a nil error; errors are reserved
// for cancellation and broken invariants.
func (p *Planner) Run(ctx context.Context, rootTask string, rc RunContext) (*Result, error) {
	r := p.start(ctx, rootTask, rc)
	st := r.state

	strategyOK, stopped, err := p.buildTree(ctx, r)
	if err != nil {
		return nil, err
	}

	if !stopped {
		if err := p.executeLeaves(ctx, r); err != nil {
			return nil, err
		}
	}

	rate := st.Phenotype.SuccessRate
	success := strategyOK && rate >= MinArchiveSuccessRate && rate >= st.Limits.MinSuccessRate
	if strategyOK && rate < st.Limits.MinSuccessRate {
		p.opts.logger.Log("[planner] run %s: success rate %.2f below minimum %.2f", r.id, rate, st.Limits.MinSuccessRate)
	}
	res := &Result{
		RunID:      r.id,
		Results:    st.Results(),
		Phenotype:  st.Phenotype,
		Limits:     st.Limits,
		Success:    success,
		Strategy:   r.strategy,
		StrategyOK: strategyOK,
		Stopped:    stopped,
		TaskType:   st.TaskType,
		Priority:   st.Priority,
		Target:     r.target,
		Root:       st.Root,
		Duration:   p.opts.now().Sub(r.started),
	}
	if r.replayed != nil {
		res.ReplayedPatternID = r.replayed.Pattern.ID
	}

	if success {
		res.PatternID = p.archiveRun(ctx, r, res.Duration)
	}

	p.finish(ctx, r, res)
	return res, nil
}

// start classifies the task, resolves the target and builds the limits.
func (p *Planner) start(ctx context.Context, rootTask string, rc RunContext) *run {
	taskType := ClassifyTask(rootTask)

	input := rc.Preference
	if input == "" {
		input = string(rc.Priority)
	}
	target := archive.ResolveTarget(ctx, input, p.sender)
	priority := target.Priority
	if rc.Priority.Valid() {
		priority = rc.Priority
	}

	budget := rc.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	contextLimit := rc.ContextLimit
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}
	limits := phenotype.LimitsForPriority(priority, budget, contextLimit)

	r := &run{
		id:      uuid.New().String(),
		state:   tree.NewState(rootTask, taskType, priority, limits),
		target:  target,
		started: p.opts.now(),
	}
	r.state.Meta["run_id"] = r.id
	r.state.Meta["target_source"] = string(target.Source)

	if p.opts.votingConfig != nil {
		r.votingCfg = *p.opts.votingConfig
	} else {
		r.votingCfg = voting.ConfigForTier(voting.TierForPriority(priority))
		r.votingCfg.Mode = p.opts.votingMode
		if p.opts.voteTemp > 0 {
			r.votingCfg.BaseTemperature = p.opts.voteTemp
		}
		if p.opts.voteTimeout > 0 {
			r.votingCfg.Timeout = p.opts.voteTimeout
		}
	}

	p.opts.logger.Log("[planner] run %s: %q type=%s priority=%s limits={%s}", r.id, rootTask, taskType, priority, limits)
	p.emit(r, Event{Type: EventRunStarted, Task: rootTask, Message: limits.String()})

	if p.opts.runs != nil {
		err := p.opts.runs.StartRun(ctx, eval.Run{
			ID:        r.id,
			RootTask:  rootTask,
			TaskType:  string(taskType),
			Priority:  string(priority),
			StartedAt: r.started,
		})
		if err != nil {
			p.opts.logger.Log("[planner] record run start: %v", err)
		}
	}
	return r
}

// buildTree selects and runs a strategy. It reports whether the strategy
// finished and whether a stop signal ended it.
func (p *Planner) buildTree(ctx context.Context, r *run) (ok, stopped bool, err error) {
	st := r.state
	r.archive = p.loadArchive(ctx, st.TaskType)

	if pattern, ok := archive.SelectPattern(r.archive, r.target.Phenotype); ok {
		entry, _ := r.archive.Find(pattern.ID)
		r.strategy = StrategyReplay
		p.emit(r, Event{Type: EventStrategySelected, Message: fmt.Sprintf("replay %s (%d steps)", pattern.ID, len(pattern.Steps))})

		replayed, err := p.replay(r, *pattern)
		if err != nil {
			return false, false, err
		}
		if replayed {
			r.replayed = &entry
			return true, false, nil
		}
		p.opts.logger.Log("[planner] replay of %s exploded, falling back to maximal", pattern.ID)
	}

	r.strategy = StrategyMaximal
	p.emit(r, Event{Type: EventStrategySelected, Message: "maximal"})
	return p.maximal(ctx, r)
}

func (p *Planner) loadArchive(ctx context.Context, taskType models.TaskType) *archive.Archive {
	if p.opts.store == nil {
		return archive.New(taskType)
	}
	a, err := p.opts.store.Load(ctx, taskType)
	if err != nil {
		p.opts.logger.Log("[planner] load archive %s: %v", taskType, err)
		return archive.New(taskType)
	}
	if a == nil {
		return archive.New(taskType)
	}
	return a
}

func (p *Planner) finish(ctx context.Context, r *run, res *Result) {
	ok := 0
	for _, lr := range res.Results {
		if lr.OK {
			ok++
		}
	}
	p.opts.logger.Log("[planner] run %s finished: strategy=%s success=%v leaves=%d/%d phenotype=%+v",
		r.id, res.Strategy, res.Success, ok, len(res.Results), res.Phenotype)
	p.emit(r, Event{
		Type:    EventRunCompleted,
		Message: fmt.Sprintf("success=%v leaves=%d/%d", res.Success, ok, len(res.Results)),
	})

	if p.opts.runs == nil {
		return
	}
	err := p.opts.runs.FinishRun(ctx, eval.Run{
		ID:          r.id,
		RootTask:    r.state.RootTask,
		TaskType:    string(res.TaskType),
		Priority:    string(res.Priority),
		Strategy:    string(res.Strategy),
		PatternID:   res.PatternID,
		Success:     res.Success,
		SuccessRate: res.Phenotype.SuccessRate,
		Cost:        res.Phenotype.Cost,
		Leaves:      len(res.Results),
		StartedAt:   r.started,
		FinishedAt:  r.started.Add(res.Duration),
	})
	if err != nil {
		p.opts.logger.Log("[planner] record run finish: %v", err)
	}
}

// RunGeometricDecomposition is the functional entry point: it builds a
// Planner around send and runSubtask and runs rootTask once.
func RunGeometricDecomposition(
	ctx context.Context,
	rootTask string,
	rc RunContext,
	send Sender,
	runSubtask SubtaskRunner,
	budget float64,
	contextLimit int,
	opts ...Option,
) ([]LeafResult, phenotype.Phenotype, bool, error) {
	p, err := New(Required{Sender: send, Runner: runSubtask}, opts...)
	if err != nil {
		return nil, phenotype.Phenotype{}, false, err
	}
	if budget > 0 {
		rc.Budget = budget
	}
	if contextLimit > 0 {
		rc.ContextLimit = contextLimit
	}
	res, err := p.Run(ctx, rootTask, rc)
	if err != nil {
		return nil, phenotype.Phenotype{}, false, err
	}
	return res.Results, res.Phenotype, res.Success, nil
}
