package planner

import (
	"context"

	"github.com/ShayCichocki/geodecomp/internal/decompose"
	"github.com/ShayCichocki/geodecomp/internal/eval"
	"github.com/ShayCichocki/geodecomp/internal/llm"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Sender performs a single LLM completion. *llm.Client implements it.
type Sender interface {
	Send(ctx context.Context, prompt string) (llm.Response, error)
}

// SubtaskRunner executes one leaf subtask with the tools of profile.
// *agent.Runner implements it.
type SubtaskRunner interface {
	RunSubtask(ctx context.Context, task string, profile models.Profile) (string, error)
}

// SampledRunner is implemented by runners that accept per-voter sampling
// parameters. Runners without it vote with identical calls.
type SampledRunner interface {
	RunSampled(ctx context.Context, task string, profile models.Profile, params voting.SampleParams) (string, error)
}

// SubtaskFunc adapts a function to the SubtaskRunner interface.
type SubtaskFunc func(ctx context.Context, task string, profile models.Profile) (string, error)

// RunSubtask calls f.
func (f SubtaskFunc) RunSubtask(ctx context.Context, task string, profile models.Profile) (string, error) {
	return f(ctx, task, profile)
}

// RedFlagger vets raw decomposition output before it is trusted.
type RedFlagger interface {
	RedFlags(raw string) []decompose.Flag
	MarkProtected(subtasks []decompose.Subtask)
}

// configRedFlagger applies a decompose.RedFlagConfig.
type configRedFlagger struct {
	cfg decompose.RedFlagConfig
}

// NewRedFlagger returns a RedFlagger driven by cfg.
func NewRedFlagger(cfg decompose.RedFlagConfig) RedFlagger {
	return configRedFlagger{cfg: cfg}
}

func (r configRedFlagger) RedFlags(raw string) []decompose.Flag {
	return decompose.RedFlagResponse(raw, r.cfg)
}

func (r configRedFlagger) MarkProtected(subtasks []decompose.Subtask) {
	decompose.MarkProtected(subtasks, r.cfg)
}

// EvalLogger receives one entry per executed leaf. It must not block.
// *eval.AsyncLogger implements it.
type EvalLogger interface {
	LogEval(e eval.Eval)
}

// RunRecorder persists run summaries. *eval.Store implements it.
type RunRecorder interface {
	StartRun(ctx context.Context, r eval.Run) error
	FinishRun(ctx context.Context, r eval.Run) error
}

// StopSignal reports an external request to abort. *signals.Watcher
// implements it.
type StopSignal interface {
	ShouldStop() bool
}
