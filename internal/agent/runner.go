package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/geodecomp/internal/llm"
	"github.com/ShayCichocki/geodecomp/internal/logging"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// ErrEmptyOutput indicates the sub-agent produced no usable output.
var ErrEmptyOutput = errors.New("sub-agent returned empty output")

// DefaultSubtaskTimeout bounds a single sub-agent call.
const DefaultSubtaskTimeout = 5 * time.Minute

// Completer sends a prompt with per-call options. *llm.Client implements it.
type Completer interface {
	SendWithOptions(ctx context.Context, prompt string, opts llm.SendOptions) (llm.Response, error)
}

// Runner executes leaf subtasks as profile-scoped sub-agents. Every call is
// spawned through its Registry so running sub-agents can be inspected.
type Runner struct {
	completer Completer
	registry  *Registry
	timeout   time.Duration
	logger    *logging.DebugLogger
	retries   *RetryHandler
	pickModel bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRegistry shares an existing registry.
func WithRegistry(reg *Registry) RunnerOption {
	return func(r *Runner) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// WithTimeout overrides DefaultSubtaskTimeout. Zero disables the timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithRetry retries failed calls up to maxAttempts times in total, waiting
// backoff before the first retry and doubling after that.
func WithRetry(maxAttempts int, backoff time.Duration) RunnerOption {
	return func(r *Runner) {
		r.retries = NewRetryHandler(maxAttempts, backoff)
	}
}

// WithModelSelection routes each subtask to a model chosen by SelectModel.
func WithModelSelection(enabled bool) RunnerOption {
	return func(r *Runner) {
		r.pickModel = enabled
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner backed by completer.
func NewRunner(completer Completer, opts ...RunnerOption) *Runner {
	r := &Runner{
		completer: completer,
		registry:  NewRegistry(),
		timeout:   DefaultSubtaskTimeout,
		logger:    logging.Nop(),
		retries:   NewRetryHandler(1, DefaultRetryBackoff),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry tracking this runner's sub-agents.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// RunSubtask executes task with the tools of profile.
func (r *Runner) RunSubtask(ctx context.Context, task string, profile models.Profile) (string, error) {
	return r.run(ctx, task, profile, false, llm.SendOptions{})
}

// RunSampled executes task as one voter of a voting round, using the
// voter's sampling temperature. Voted subtasks are treated as high stakes
// when choosing a model.
func (r *Runner) RunSampled(ctx context.Context, task string, profile models.Profile, params voting.SampleParams) (string, error) {
	return r.run(ctx, task, profile, true, llm.SendOptions{Temperature: params.Temperature})
}

func (r *Runner) run(ctx context.Context, task string, profile models.Profile, highStakes bool, opts llm.SendOptions) (string, error) {
	if !profile.Valid() {
		profile = models.ProfileAll
	}
	opts.System = SystemPrompt(profile)
	if r.pickModel {
		opts.Model = SelectModel(task, profile, highStakes)
	}
	prompt := BuildSubtaskPrompt(task, profile)

	id := r.registry.Spawn(ctx, task, profile, func(ctx context.Context) (string, error) {
		callID := uuid.New().String()
		defer r.retries.Reset(callID)
		for {
			output, err := r.attempt(ctx, prompt, opts)
			if err == nil {
				return output, nil
			}
			rc, decision := r.retries.HandleFailure(callID, err)
			if decision == Abort {
				return "", err
			}
			select {
			case <-time.After(rc.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	})

	output, err := r.registry.Await(ctx, id)
	if err != nil {
		r.logger.Log("[agent] sub-agent %s (%s) failed: %v", id, profile, err)
		return "", err
	}
	r.logger.Log("[agent] sub-agent %s (%s) completed, %d chars", id, profile, len(output))
	return output, nil
}

// attempt makes one bounded call to the model.
func (r *Runner) attempt(ctx context.Context, prompt string, opts llm.SendOptions) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.completer.SendWithOptions(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("run subtask: %w", err)
	}
	output := strings.TrimSpace(resp.Raw)
	if !resp.OK || output == "" {
		return "", ErrEmptyOutput
	}
	return output, nil
}
