package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/eval"
	"github.com/ShayCichocki/geodecomp/internal/llm"
	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/internal/tree"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// scriptedSender answers decomposition prompts by the subtask being broken
// down. Unknown subtasks get "[]".
type scriptedSender struct {
	mu        sync.Mutex
	responses map[string]string
	prompts   []string
	err       error
	// cost is charged per call; zero means 0.001.
	cost float64
}

func (s *scriptedSender) Send(_ context.Context, prompt string) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	raw, ok := s.responses[subtaskOf(prompt)]
	if !ok {
		raw = "[]"
	}
	cost := s.cost
	if cost == 0 {
		cost = 0.001
	}
	return llm.Response{OK: true, Raw: raw, Meta: map[string]any{llm.MetaCost: cost}}, nil
}

func (s *scriptedSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func subtaskOf(prompt string) string {
	const marker = "Subtask to break down:\n"
	i := strings.Index(prompt, marker)
	if i < 0 {
		return ""
	}
	rest := prompt[i+len(marker):]
	if j := strings.Index(rest, "\n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// subtasksJSON renders descriptions as a decomposition answer.
func subtasksJSON(descriptions ...string) string {
	parts := make([]string, len(descriptions))
	for i, d := range descriptions {
		parts[i] = fmt.Sprintf(`{"description": %q, "profile": "editor"}`, d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeRunner) RunSubtask(_ context.Context, task string, _ models.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, task)
	if f.fail[task] {
		return "", errors.New("subtask exploded")
	}
	return "done: " + task, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sampledRunner struct {
	fakeRunner
	temps []float64
}

func (s *sampledRunner) RunSampled(ctx context.Context, task string, profile models.Profile, params voting.SampleParams) (string, error) {
	s.mu.Lock()
	s.temps = append(s.temps, params.Temperature)
	s.mu.Unlock()
	return s.RunSubtask(ctx, task, profile)
}

type fakeEvals struct {
	mu    sync.Mutex
	evals []eval.Eval
}

func (f *fakeEvals) LogEval(e eval.Eval) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, e)
}

type fakeRuns struct {
	started  []eval.Run
	finished []eval.Run
}

func (f *fakeRuns) StartRun(_ context.Context, r eval.Run) error {
	f.started = append(f.started, r)
	return nil
}

func (f *fakeRuns) FinishRun(_ context.Context, r eval.Run) error {
	f.finished = append(f.finished, r)
	return nil
}

type stopAfter struct {
	stop bool
}

func (s *stopAfter) ShouldStop() bool { return s.stop }

func newTestPlanner(t *testing.T, sender Sender, runner SubtaskRunner, opts ...Option) *Planner {
	t.Helper()
	p, err := New(Required{Sender: sender, Runner: runner}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func drain(e *EventEmitter) []Event {
	var events []Event
	for {
		select {
		case ev := <-e.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Required{Runner: &fakeRunner{}}); err == nil {
		t.Error("New without a sender should fail")
	}
	if _, err := New(Required{Sender: &scriptedSender{}}); err == nil {
		t.Error("New without a runner should fail")
	}
}

func TestRun_MaximalDecomposition(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Add OAuth login": `[
			{"description": "Read the existing handler", "profile": "researcher"},
			{"description": "Write the callback", "dependencies": ["Read the existing handler"], "profile": "editor"}
		]`,
	}}
	runner := &fakeRunner{}
	store := archive.NewMemoryStore(0)
	runs := &fakeRuns{}
	emitter := NewEventEmitter(100)

	p := newTestPlanner(t, sender, runner,
		WithStore(store),
		WithRunRecorder(runs),
		WithEmitter(emitter),
		WithVoting(false),
	)
	res, err := p.Run(context.Background(), "Add OAuth login", RunContext{Priority: models.PriorityNormal})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Strategy != StrategyMaximal || !res.StrategyOK || !res.Success {
		t.Errorf("result = strategy %s ok %v success %v", res.Strategy, res.StrategyOK, res.Success)
	}
	if res.TaskType != models.TaskTypeImplement {
		t.Errorf("TaskType = %s, want implement", res.TaskType)
	}
	if len(res.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(res.Results))
	}
	if res.Results[0].Task != "Read the existing handler" || res.Results[0].Result != "done: Read the existing handler" {
		t.Errorf("Results[0] = %+v", res.Results[0])
	}
	if res.Phenotype.Depth != 1 || res.Phenotype.Breadth != 2 || res.Phenotype.SuccessRate != 1 {
		t.Errorf("Phenotype = %+v", res.Phenotype)
	}
	if res.Phenotype.Cost <= 0 || res.Phenotype.ContextSize <= 0 {
		t.Errorf("decomposition spend not recorded: %+v", res.Phenotype)
	}

	a, _ := store.Load(context.Background(), models.TaskTypeImplement)
	if a.Len() != 1 {
		t.Fatalf("archive has %d patterns, want 1", a.Len())
	}
	pat := a.Entries[0].Pattern
	if pat.ID != res.PatternID || len(pat.Steps) != 2 || pat.Stats.Uses != 1 {
		t.Errorf("archived pattern = %+v", pat)
	}
	if pat.Steps[0].ToolHints[0] != "researcher" {
		t.Errorf("step hints = %v", pat.Steps[0].ToolHints)
	}

	if len(runs.started) != 1 || len(runs.finished) != 1 || !runs.finished[0].Success {
		t.Errorf("run records = %+v / %+v", runs.started, runs.finished)
	}

	var types []EventType
	for _, ev := range drain(emitter) {
		types = append(types, ev.Type)
	}
	if types[0] != EventRunStarted || types[len(types)-1] != EventRunCompleted {
		t.Errorf("events = %v", types)
	}
	for _, want := range []EventType{EventStrategySelected, EventCheckpoint, EventNodeDecomposed, EventLeafCompleted, EventPatternArchived} {
		found := false
		for _, got := range types {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing event %s in %v", want, types)
		}
	}
}

func TestRun_LeafIsolation(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Fix the flaky build": subtasksJSON("leaf one", "leaf two", "leaf three"),
	}}
	runner := &fakeRunner{fail: map[string]bool{"leaf two": true}}
	evals := &fakeEvals{}

	p := newTestPlanner(t, sender, runner, WithEvalLogger(evals), WithVoting(false))
	res, err := p.Run(context.Background(), "Fix the flaky build", RunContext{Priority: models.PriorityCritical})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if runner.callCount() != 3 {
		t.Errorf("runner called %d times, want 3", runner.callCount())
	}
	if len(res.Results) != 3 || !res.Results[0].OK || res.Results[1].OK || !res.Results[2].OK {
		t.Fatalf("Results = %+v", res.Results)
	}
	if res.Results[1].Err != "subtask exploded" {
		t.Errorf("failed leaf error = %q", res.Results[1].Err)
	}
	if got, want := res.Phenotype.SuccessRate, 2.0/3.0; got != want {
		t.Errorf("SuccessRate = %v, want %v", got, want)
	}
	if !res.Success {
		t.Error("2/3 leaves clears the critical minimum of 0.6 and should succeed")
	}

	if len(evals.evals) != 3 {
		t.Fatalf("evals = %d, want 3", len(evals.evals))
	}
	if evals.evals[1].OK || evals.evals[1].Err == "" || evals.evals[1].RunID != res.RunID {
		t.Errorf("eval for failed leaf = %+v", evals.evals[1])
	}
	if evals.evals[0].TaskType != string(res.TaskType) {
		t.Errorf("eval task type = %q, want %q", evals.evals[0].TaskType, res.TaskType)
	}
}

func TestRun_BelowMinSuccessRateFails(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Fix the flaky build": subtasksJSON("leaf one", "leaf two", "leaf three"),
	}}
	runner := &fakeRunner{fail: map[string]bool{"leaf two": true}}
	store := archive.NewMemoryStore(0)
	runs := &fakeRuns{}

	p := newTestPlanner(t, sender, runner, WithStore(store), WithRunRecorder(runs), WithVoting(false))
	res, err := p.Run(context.Background(), "Fix the flaky build", RunContext{Priority: models.PriorityLow})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Phenotype.SuccessRate >= res.Limits.MinSuccessRate {
		t.Fatalf("SuccessRate = %v should be below the low minimum %v", res.Phenotype.SuccessRate, res.Limits.MinSuccessRate)
	}
	if !res.StrategyOK {
		t.Error("the tree was fully built")
	}
	if res.Success || res.PatternID != "" {
		t.Errorf("Success = %v, PatternID = %q, want a failed, unarchived run", res.Success, res.PatternID)
	}
	if len(res.Results) != 3 {
		t.Errorf("partial results should be returned, got %+v", res.Results)
	}
	if len(runs.finished) != 1 || runs.finished[0].Success {
		t.Errorf("finished runs = %+v", runs.finished)
	}
	a, _ := store.Load(context.Background(), res.TaskType)
	if a.Len() != 0 {
		t.Errorf("archive has %d patterns, want 0", a.Len())
	}
}

func TestRun_LowSuccessRateNotArchived(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Fix the flaky build": subtasksJSON("a", "b", "c"),
	}}
	runner := &fakeRunner{fail: map[string]bool{"a": true, "b": true}}
	store := archive.NewMemoryStore(0)

	p := newTestPlanner(t, sender, runner, WithStore(store), WithVoting(false))
	res, err := p.Run(context.Background(), "Fix the flaky build", RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Success || res.PatternID != "" {
		t.Errorf("Success = %v, PatternID = %q", res.Success, res.PatternID)
	}
	a, _ := store.Load(context.Background(), models.TaskTypeImplement)
	if a.Len() != 0 {
		t.Errorf("archive has %d patterns, want 0", a.Len())
	}
}

func replayArchive(taskType models.TaskType, steps []models.DecompStep, uses int) *archive.MemoryStore {
	store := archive.NewMemoryStore(0)
	pattern := models.DecompositionPattern{
		ID:        "pattern-1",
		TaskType:  taskType,
		Priority:  models.PriorityNormal,
		Steps:     steps,
		Phenotype: phenotype.Phenotype{Depth: 1, Breadth: len(steps), Cost: 0.1, ContextSize: 2000, SuccessRate: 1},
		Stats:     models.PatternStats{Uses: uses},
	}
	store.Save(context.Background(), archive.Record(archive.New(taskType), pattern, 0.9))
	return store
}

func TestRun_ReplayPattern(t *testing.T) {
	store := replayArchive(models.TaskTypeImplement, []models.DecompStep{
		{ID: "step-2", Description: "Research {{task}}", ToolHints: []string{"researcher"}},
		{ID: "step-3", Description: "Write {{task}}", ToolHints: []string{"editor"}},
		{ID: "step-4", Description: "Commit {{task}}", ToolHints: []string{"vcs"}, Dependencies: []string{"step-3"}},
	}, 3)
	sender := &scriptedSender{}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithStore(store), WithVoting(false))
	res, err := p.Run(context.Background(), "Implement rate limiting", RunContext{Priority: models.PriorityNormal})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sender.calls() != 0 {
		t.Errorf("replay should not call the LLM, got %d calls", sender.calls())
	}
	if res.Strategy != StrategyReplay || res.ReplayedPatternID != "pattern-1" || !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Results) != 2 {
		t.Fatalf("Results = %+v", res.Results)
	}
	if res.Results[0].Task != "Research Implement rate limiting" || res.Results[1].Task != "Commit Implement rate limiting" {
		t.Errorf("replayed tasks = %q, %q", res.Results[0].Task, res.Results[1].Task)
	}
	if res.Phenotype.Depth != 2 {
		t.Errorf("Depth = %d, want 2", res.Phenotype.Depth)
	}

	a, _ := store.Load(context.Background(), models.TaskTypeImplement)
	if a.Len() != 2 {
		t.Fatalf("archive has %d patterns, want 2", a.Len())
	}
	rerecorded, ok := a.Find(res.PatternID)
	if !ok {
		t.Fatalf("pattern %s not archived", res.PatternID)
	}
	if rerecorded.Pattern.Stats.Uses != 4 {
		t.Errorf("Uses = %d, want 4", rerecorded.Pattern.Stats.Uses)
	}
	if rerecorded.Pattern.Steps[0].Description != "Research {{task}}" {
		t.Errorf("step not generalized: %q", rerecorded.Pattern.Steps[0].Description)
	}
	if deps := rerecorded.Pattern.Steps[2].Dependencies; len(deps) != 1 || deps[0] != rerecorded.Pattern.Steps[1].ID {
		t.Errorf("dependency not preserved: %+v", rerecorded.Pattern.Steps)
	}
}

func TestRun_ReplayExplosionFallsBackToMaximal(t *testing.T) {
	var steps []models.DecompStep
	for i := 0; i < 12; i++ {
		steps = append(steps, models.DecompStep{ID: fmt.Sprintf("step-%d", i+2), Description: fmt.Sprintf("part %d", i)})
	}
	store := replayArchive(models.TaskTypeImplement, steps, 1)
	sender := &scriptedSender{responses: map[string]string{
		"Implement search": subtasksJSON("index documents", "query index"),
	}}
	runner := &fakeRunner{}
	emitter := NewEventEmitter(200)

	p := newTestPlanner(t, sender, runner, WithStore(store), WithEmitter(emitter), WithVoting(false))
	res, err := p.Run(context.Background(), "Implement search", RunContext{Priority: models.PriorityNormal})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Strategy != StrategyMaximal || res.ReplayedPatternID != "" {
		t.Errorf("Strategy = %s, replayed = %q", res.Strategy, res.ReplayedPatternID)
	}
	if len(res.Results) != 2 || res.Results[0].Task != "index documents" {
		t.Errorf("Results = %+v", res.Results)
	}
	for _, lr := range res.Results {
		if strings.HasPrefix(lr.Task, "part ") {
			t.Errorf("replayed node survived the fallback: %q", lr.Task)
		}
	}

	rollbacks := 0
	for _, ev := range drain(emitter) {
		if ev.Type == EventRollback {
			rollbacks++
		}
	}
	if rollbacks != 1 {
		t.Errorf("rollback events = %d, want 1", rollbacks)
	}
}

func TestRun_ExplosionPrunesToInline(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Build the payments service": subtasksJSON("A", "B", "C", "D"),
		"A":                          subtasksJSON("a1", "a2", "a3", "a4"),
		"B":                          subtasksJSON("b1", "b2", "b3", "b4"),
	}}
	runner := &fakeRunner{}
	emitter := NewEventEmitter(200)

	p := newTestPlanner(t, sender, runner, WithEmitter(emitter), WithVoting(false))
	res, err := p.Run(context.Background(), "Build the payments service", RunContext{Priority: models.PriorityLow})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var tasks []string
	for _, lr := range res.Results {
		tasks = append(tasks, lr.Task)
	}
	want := []string{"a1", "a2", "a3", "a4", "B", "C", "D"}
	if strings.Join(tasks, ",") != strings.Join(want, ",") {
		t.Errorf("executed leaves = %v, want %v", tasks, want)
	}
	if res.Phenotype.Breadth != 4 {
		t.Errorf("Breadth = %d, want 4 after rollback", res.Phenotype.Breadth)
	}
	if !res.StrategyOK {
		t.Error("rolled-back leaves are inline, the strategy should still finish")
	}

	found := false
	for _, ev := range drain(emitter) {
		if ev.Type == EventRollback && ev.Task == "B" {
			found = true
		}
	}
	if !found {
		t.Error("expected a rollback event for B")
	}
}

func TestRun_StopsCallingLLMOnceBudgetSpent(t *testing.T) {
	tests := []struct {
		name       string
		cost       float64
		rc         RunContext
		wantSends  int
		wantLeaves []string
	}{
		{
			name:       "cost",
			cost:       0.3,
			rc:         RunContext{Priority: models.PriorityNormal, Budget: 0.5},
			wantSends:  2,
			wantLeaves: []string{"A", "B", "C", "D"},
		},
		{
			name:       "context",
			rc:         RunContext{Priority: models.PriorityNormal, ContextLimit: 10},
			wantSends:  1,
			wantLeaves: []string{"Build the payments service"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &scriptedSender{cost: tt.cost, responses: map[string]string{
				"Build the payments service": subtasksJSON("A", "B", "C", "D"),
				"A":                          subtasksJSON("a1", "a2"),
				"B":                          subtasksJSON("b1", "b2"),
				"C":                          subtasksJSON("c1", "c2"),
				"D":                          subtasksJSON("d1", "d2"),
			}}
			runner := &fakeRunner{}

			p := newTestPlanner(t, sender, runner, WithVoting(false))
			res, err := p.Run(context.Background(), "Build the payments service", tt.rc)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if sender.calls() != tt.wantSends {
				t.Errorf("LLM calls = %d, want %d", sender.calls(), tt.wantSends)
			}
			var tasks []string
			for _, lr := range res.Results {
				tasks = append(tasks, lr.Task)
			}
			if strings.Join(tasks, ",") != strings.Join(tt.wantLeaves, ",") {
				t.Errorf("executed leaves = %v, want %v", tasks, tt.wantLeaves)
			}
			if !res.StrategyOK {
				t.Error("leaves left after the budget is spent run inline, the strategy should finish")
			}
		})
	}
}

func TestRun_DependenciesRunFirst(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Add the export endpoint": `[
			{"description": "Write the handler tests", "dependencies": ["Write the handler"]},
			{"description": "Write the handler"}
		]`,
	}}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithVoting(false))
	if _, err := p.Run(context.Background(), "Add the export endpoint", RunContext{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(runner.calls, ",") != "Write the handler,Write the handler tests" {
		t.Errorf("execution order = %v", runner.calls)
	}
}

func TestPlanner_CommitsAcceptedCheckpoints(t *testing.T) {
	ctx := context.Background()

	t.Run("maximal", func(t *testing.T) {
		sender := &scriptedSender{responses: map[string]string{
			"Refactor the parser": subtasksJSON("split lexer", "split grammar"),
			"split lexer":         subtasksJSON("tokens", "positions"),
		}}
		p := newTestPlanner(t, sender, &fakeRunner{}, WithVoting(false))
		r := p.start(ctx, "Refactor the parser", RunContext{Priority: models.PriorityNormal})

		ok, _, err := p.maximal(ctx, r)
		if err != nil || !ok {
			t.Fatalf("maximal() = %v, %v", ok, err)
		}
		if n := r.state.CheckpointCount(); n != 0 {
			t.Errorf("CheckpointCount() = %d after a finished decomposition, want 0", n)
		}
	})

	t.Run("replay", func(t *testing.T) {
		p := newTestPlanner(t, &scriptedSender{}, &fakeRunner{}, WithVoting(false))
		r := p.start(ctx, "Implement caching", RunContext{Priority: models.PriorityNormal})
		pattern := models.DecompositionPattern{ID: "pattern-1", Steps: []models.DecompStep{
			{ID: "step-2", Description: "Read {{task}}"},
			{ID: "step-3", Description: "Write {{task}}", Dependencies: []string{"step-2"}},
		}}

		ok, err := p.replay(r, pattern)
		if err != nil || !ok {
			t.Fatalf("replay() = %v, %v", ok, err)
		}
		if n := r.state.CheckpointCount(); n != 0 {
			t.Errorf("CheckpointCount() = %d after a finished replay, want 0", n)
		}
		if r.state.Size() != 3 {
			t.Errorf("tree size = %d, want 3", r.state.Size())
		}
	})
}

func TestRun_RedFlagRejected(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Clean up the old data": `[{"description": "run rm -rf / on the server"}]`,
	}}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithVoting(false))
	res, err := p.Run(context.Background(), "Clean up the old data", RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Task != "Clean up the old data" {
		t.Errorf("rejected decomposition should leave the root inline, got %+v", res.Results)
	}
	if res.Root.Status != tree.StatusCompleted {
		t.Errorf("root status = %s", res.Root.Status)
	}
}

func TestRun_SendFailureLeavesInline(t *testing.T) {
	sender := &scriptedSender{err: errors.New("overloaded")}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithVoting(false))
	res, err := p.Run(context.Background(), "Write the docs", RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Results) != 1 || !res.Results[0].OK || !res.Success {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_StopSignal(t *testing.T) {
	sender := &scriptedSender{}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithStopSignal(&stopAfter{stop: true}))
	res, err := p.Run(context.Background(), "Refactor the parser", RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Stopped || res.Success || res.StrategyOK {
		t.Errorf("result = stopped %v success %v ok %v", res.Stopped, res.Success, res.StrategyOK)
	}
	if sender.calls() != 0 || runner.callCount() != 0 {
		t.Errorf("stopped run made %d sends and %d runs", sender.calls(), runner.callCount())
	}
}

func TestRun_IterationCap(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Refactor the parser": subtasksJSON("split lexer", "split grammar"),
		"split lexer":         subtasksJSON("tokens", "positions"),
	}}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithMaxIterations(1), WithVoting(false))
	res, err := p.Run(context.Background(), "Refactor the parser", RunContext{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.StrategyOK || res.Success {
		t.Errorf("cap with pending leaves should fail the strategy: %+v", res)
	}
	if len(res.Results) != 2 {
		t.Errorf("pending leaves should still run, got %+v", res.Results)
	}
}

func TestRun_MaxDepthMarksInline(t *testing.T) {
	responses := map[string]string{"Refactor the parser": subtasksJSON("level 1")}
	for i := 1; i < 10; i++ {
		responses[fmt.Sprintf("level %d", i)] = subtasksJSON(fmt.Sprintf("level %d", i+1))
	}
	sender := &scriptedSender{responses: responses}
	runner := &fakeRunner{}

	p := newTestPlanner(t, sender, runner, WithVoting(false))
	res, err := p.Run(context.Background(), "Refactor the parser", RunContext{Priority: models.PriorityLow})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Phenotype.Depth != res.Limits.MaxDepth {
		t.Errorf("Depth = %d, want MaxDepth %d", res.Phenotype.Depth, res.Limits.MaxDepth)
	}
	if len(res.Results) != 1 || res.Results[0].Task != "level 4" {
		t.Errorf("Results = %+v", res.Results)
	}
	if !res.StrategyOK {
		t.Error("leaves at MaxDepth are inline, the strategy should finish")
	}
}

func TestRun_VotingForHighStakesLeaves(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Implement the migration": `[
			{"description": "Plan the change", "profile": "researcher"},
			{"description": "Apply the change", "profile": "editor", "high_stakes": true}
		]`,
	}}
	runner := &sampledRunner{}
	evals := &fakeEvals{}

	p := newTestPlanner(t, sender, runner, WithEvalLogger(evals))
	res, err := p.Run(context.Background(), "Implement the migration", RunContext{Priority: models.PriorityNormal})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	// Medium tier: 3 voters for the high-stakes leaf plus 1 direct call.
	if runner.callCount() != 4 {
		t.Errorf("runner calls = %d, want 4", runner.callCount())
	}
	if len(runner.temps) != 3 {
		t.Errorf("sampled calls = %d, want 3", len(runner.temps))
	}
	if res.Results[1].Result != "done: Apply the change" {
		t.Errorf("voted result = %q", res.Results[1].Result)
	}

	if len(evals.evals) != 2 {
		t.Fatalf("evals = %d, want 2", len(evals.evals))
	}
	if evals.evals[0].Voted {
		t.Error("plain leaf should not be voted")
	}
	voted := evals.evals[1]
	if !voted.Voted || voted.VoteRounds != 1 || !voted.Consensus {
		t.Errorf("voted eval = %+v", voted)
	}
}

func TestRun_DestructiveHintsTriggerVoting(t *testing.T) {
	t.Run("replay", func(t *testing.T) {
		store := replayArchive(models.TaskTypeImplement, []models.DecompStep{
			{ID: "step-2", Description: "Write {{task}}", ToolHints: []string{"editor", "write_file"}},
		}, 1)
		runner := &sampledRunner{}

		p := newTestPlanner(t, &scriptedSender{}, runner, WithStore(store))
		res, err := p.Run(context.Background(), "Implement rate limiting", RunContext{Priority: models.PriorityNormal})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.Strategy != StrategyReplay {
			t.Fatalf("Strategy = %s, want replay", res.Strategy)
		}
		if len(runner.temps) != 3 || runner.callCount() != 3 {
			t.Errorf("sampled calls = %d, runner calls = %d, want 3 voters", len(runner.temps), runner.callCount())
		}

		a, _ := store.Load(context.Background(), models.TaskTypeImplement)
		rerecorded, ok := a.Find(res.PatternID)
		if !ok {
			t.Fatalf("pattern %s not archived", res.PatternID)
		}
		if hints := rerecorded.Pattern.Steps[0].ToolHints; len(hints) != 2 || hints[1] != "write_file" {
			t.Errorf("archived hints = %v, want [editor write_file]", hints)
		}
	})

	t.Run("maximal", func(t *testing.T) {
		sender := &scriptedSender{responses: map[string]string{
			"Update the settings loader": `[
				{"description": "Read the loader", "profile": "researcher"},
				{"description": "Rewrite the loader", "profile": "editor", "tool_hints": ["patch_file"]}
			]`,
		}}
		runner := &sampledRunner{}

		p := newTestPlanner(t, sender, runner)
		res, err := p.Run(context.Background(), "Update the settings loader", RunContext{Priority: models.PriorityNormal})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !res.Success {
			t.Fatalf("result = %+v", res)
		}
		if len(runner.temps) != 3 || runner.callCount() != 4 {
			t.Errorf("sampled calls = %d, runner calls = %d, want 3 voters plus 1 direct call", len(runner.temps), runner.callCount())
		}
	})
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPlanner(t, &scriptedSender{}, &fakeRunner{})
	if _, err := p.Run(ctx, "Refactor the parser", RunContext{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRunGeometricDecomposition(t *testing.T) {
	sender := &scriptedSender{responses: map[string]string{
		"Document the API": subtasksJSON("list endpoints", "write examples"),
	}}
	runner := SubtaskFunc(func(_ context.Context, task string, profile models.Profile) (string, error) {
		return string(profile) + ":" + task, nil
	})

	results, pheno, ok, err := RunGeometricDecomposition(context.Background(), "Document the API", RunContext{}, sender, runner, 2.0, 50000, WithVoting(false))
	if err != nil {
		t.Fatalf("RunGeometricDecomposition() error = %v", err)
	}
	if !ok || len(results) != 2 || pheno.SuccessRate != 1 {
		t.Errorf("results = %+v, phenotype = %+v, ok = %v", results, pheno, ok)
	}
	if results[0].Result != "editor:list endpoints" {
		t.Errorf("result = %q", results[0].Result)
	}
}

func TestClassifyTask(t *testing.T) {
	tests := []struct {
		description string
		want        models.TaskType
	}{
		{"Refactor the auth module", models.TaskTypeRefactor},
		{"Implement OAuth login", models.TaskTypeImplement},
		{"Debug the flaky upload", models.TaskTypeDebug},
		{"Fix the crash on startup", models.TaskTypeDebug},
		{"Research caching options", models.TaskTypeResearch},
		{"Increase test coverage", models.TaskTypeTest},
		{"Update the README", models.TaskTypeDocument},
		{"Refactor and test the parser", models.TaskTypeRefactor},
		{"Make it faster", models.TaskTypeGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := ClassifyTask(tt.description); got != tt.want {
				t.Errorf("ClassifyTask(%q) = %s, want %s", tt.description, got, tt.want)
			}
		})
	}
}

func TestAncestry(t *testing.T) {
	st := tree.NewState("root", models.TaskTypeGeneral, models.PriorityNormal, phenotype.LimitsForPriority(models.PriorityNormal, 1, 1000))
	a := st.NewNode("a", models.ProfileAll)
	b := st.NewNode("b", models.ProfileAll)
	tree.AddChild(st.Root, a)
	tree.AddChild(a, b)

	if got := ancestry(st.Root, b.ID); strings.Join(got, "/") != "root/a" {
		t.Errorf("ancestry(b) = %v", got)
	}
	if got := ancestry(st.Root, st.Root.ID); len(got) != 0 {
		t.Errorf("ancestry(root) = %v", got)
	}
	if got := ancestry(st.Root, 99); got != nil {
		t.Errorf("ancestry(unknown) = %v", got)
	}
}

func TestDescriptionPlaceholders(t *testing.T) {
	if got := AdaptDescription("Test {{task}} end to end", "login"); got != "Test login end to end" {
		t.Errorf("AdaptDescription = %q", got)
	}
	if got := GeneralizeDescription("Test login end to end", "login"); got != "Test {{task}} end to end" {
		t.Errorf("GeneralizeDescription = %q", got)
	}
	if got := GeneralizeDescription("unchanged", ""); got != "unchanged" {
		t.Errorf("GeneralizeDescription with empty root = %q", got)
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventRunStarted})
	e.Emit(Event{Type: EventRunCompleted})

	if e.DroppedCount() != 1 {
		t.Errorf("DroppedCount = %d, want 1", e.DroppedCount())
	}
	ev := <-e.Events()
	if ev.Type != EventRunStarted || ev.Timestamp.IsZero() {
		t.Errorf("event = %+v", ev)
	}

	var nilEmitter *EventEmitter
	nilEmitter.Emit(Event{Type: EventRunStarted})
}
