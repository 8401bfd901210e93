package planner

import (
	"time"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/decompose"
	"github.com/ShayCichocki/geodecomp/internal/logging"
	"github.com/ShayCichocki/geodecomp/internal/voting"
)

const (
	// DefaultMaxIterations caps the maximal decomposition loop.
	DefaultMaxIterations = 50
	// DefaultMaxRounds caps voting rounds per leaf.
	DefaultMaxRounds = 3
	// DefaultBudget is used when a run gives no budget.
	DefaultBudget = 1.0
	// DefaultContextLimit is used when a run gives no context cap.
	DefaultContextLimit = 100000
	// MinArchiveSuccessRate is the success rate a run needs to be archived.
	MinArchiveSuccessRate = 0.5
)

// Required contains the collaborators every Planner needs.
type Required struct {
	// Sender synthesises decompositions and interprets preferences.
	Sender Sender
	// Runner executes leaf subtasks.
	Runner SubtaskRunner
}

// Option configures a Planner. Use With* functions to create Options.
type Option func(*plannerOptions)

type plannerOptions struct {
	store         archive.Store
	evals         EvalLogger
	runs          RunRecorder
	redFlagger    RedFlagger
	logger        *logging.DebugLogger
	emitter       *EventEmitter
	votingEnabled bool
	votingConfig  *voting.Config
	votingMode    voting.Mode
	voteTemp      float64
	voteTimeout   time.Duration
	maxRounds     int
	stop          StopSignal
	maxIterations int
	maxSubtasks   int
	now           func() time.Time
}

func defaultOptions() plannerOptions {
	return plannerOptions{
		redFlagger:    NewRedFlagger(decompose.DefaultRedFlagConfig()),
		logger:        logging.Nop(),
		votingEnabled: true,
		votingMode:    voting.ModeNormalized,
		maxRounds:     DefaultMaxRounds,
		maxIterations: DefaultMaxIterations,
		maxSubtasks:   decompose.DefaultMaxSubtasks,
		now:           time.Now,
	}
}

// WithStore sets the pattern archive store. Without one, no pattern is
// replayed or archived.
func WithStore(s archive.Store) Option {
	return func(o *plannerOptions) { o.store = s }
}

// WithEvalLogger sets the per-leaf eval sink.
func WithEvalLogger(l EvalLogger) Option {
	return func(o *plannerOptions) { o.evals = l }
}

// WithRunRecorder sets the run summary sink.
func WithRunRecorder(r RunRecorder) Option {
	return func(o *plannerOptions) { o.runs = r }
}

// WithRedFlagger replaces the default red-flag filter.
func WithRedFlagger(r RedFlagger) Option {
	return func(o *plannerOptions) {
		if r != nil {
			o.redFlagger = r
		}
	}
}

// WithRedFlagConfig filters decompositions with cfg.
func WithRedFlagConfig(cfg decompose.RedFlagConfig) Option {
	return func(o *plannerOptions) { o.redFlagger = NewRedFlagger(cfg) }
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(o *plannerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e *EventEmitter) Option {
	return func(o *plannerOptions) { o.emitter = e }
}

// WithVoting enables or disables consensus voting for high-stakes leaves.
func WithVoting(enabled bool) Option {
	return func(o *plannerOptions) { o.votingEnabled = enabled }
}

// WithVotingConfig fixes the voting configuration instead of deriving it
// from the run priority.
func WithVotingConfig(cfg voting.Config) Option {
	return func(o *plannerOptions) { o.votingConfig = &cfg }
}

// WithVotingMode sets how voter responses are compared.
func WithVotingMode(m voting.Mode) Option {
	return func(o *plannerOptions) { o.votingMode = m }
}

// WithVoteSampling sets the base temperature and round timeout used when
// the voting configuration is derived from the run priority.
func WithVoteSampling(baseTemperature float64, timeout time.Duration) Option {
	return func(o *plannerOptions) {
		o.voteTemp = baseTemperature
		o.voteTimeout = timeout
	}
}

// WithMaxRounds caps voting rounds per leaf.
func WithMaxRounds(n int) Option {
	return func(o *plannerOptions) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithStopSignal lets an external signal end the decomposition loop.
func WithStopSignal(s StopSignal) Option {
	return func(o *plannerOptions) { o.stop = s }
}

// WithMaxIterations caps the maximal decomposition loop.
func WithMaxIterations(n int) Option {
	return func(o *plannerOptions) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithMaxSubtasks caps how many subtasks one decomposition may produce.
func WithMaxSubtasks(n int) Option {
	return func(o *plannerOptions) {
		if n > 0 {
			o.maxSubtasks = n
		}
	}
}

// WithClock replaces time.Now (mainly for testing).
func WithClock(now func() time.Time) Option {
	return func(o *plannerOptions) {
		if now != nil {
			o.now = now
		}
	}
}
