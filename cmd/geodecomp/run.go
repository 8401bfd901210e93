package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/geodecomp/internal/agent"
	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/config"
	"github.com/ShayCichocki/geodecomp/internal/decompose"
	"github.com/ShayCichocki/geodecomp/internal/eval"
	"github.com/ShayCichocki/geodecomp/internal/logging"
	"github.com/ShayCichocki/geodecomp/internal/planner"
	"github.com/ShayCichocki/geodecomp/internal/signals"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

var (
	runPriority      string
	runPreference    string
	runBudget        float64
	runContextLimit  int
	runMaxIterations int
	runNoVote        bool
	runDebug         bool
	runQuiet         bool
	runSingleModel   bool
)

var errRunFailed = errors.New("run did not succeed")

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Decompose a task and execute its leaves",
	Long: `Decompose a task into a tree of subtasks and execute every leaf.

The run replays the closest archived decomposition for the task type when
one exists, and otherwise decomposes maximally within the limits of the
chosen priority. Successful decompositions are archived for later runs.

Create .geodecomp/signals/stop (or run 'geodecomp stop') to end a long
decomposition early.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().StringVarP(&runPriority, "priority", "p", "", "Priority tier: low, normal, high, critical")
	runCmd.Flags().StringVar(&runPreference, "preference", "", "Free-text preference such as \"quick prototype\"")
	runCmd.Flags().Float64Var(&runBudget, "budget", 0, "Cost budget (default from config)")
	runCmd.Flags().IntVar(&runContextLimit, "context-limit", 0, "Context cap in tokens (default from config)")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Cap on decomposition iterations (default from config)")
	runCmd.Flags().BoolVar(&runNoVote, "no-vote", false, "Disable consensus voting")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Write a debug log to .geodecomp/logs")
	runCmd.Flags().BoolVar(&runSingleModel, "single-model", false, "Run every subtask on the configured model")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final summary")
}

func runTask(task string) error {
	cfg, paths, err := loadProject()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rc, err := runContextFromFlags(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			printStatus("⚠", "Interrupted, cancelling run", color.FgYellow)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := openLogger(paths)
	defer logger.Close()
	logging.SetDefault(logger)

	client, err := createClient(cfg)
	if err != nil {
		return err
	}

	store, err := archive.OpenSQLiteStore(paths.Archive, cfg.Archive.MaxPatterns)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	evals, err := eval.Open(paths.Evals)
	if err != nil {
		return fmt.Errorf("open eval store: %w", err)
	}
	defer evals.Close()

	evalLogger := eval.NewAsyncLogger(evals, eval.DefaultBufferSize)
	defer evalLogger.Close()

	redFlags, err := loadRedFlags(cfg)
	if err != nil {
		return err
	}

	watcher, err := signals.NewWatcher(paths.Signals)
	if err != nil {
		return fmt.Errorf("watch signals: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Clear(); err != nil {
		logger.Log("[run] clear stale stop file: %v", err)
	}

	mode, err := voting.ParseMode(cfg.Voting.Mode)
	if err != nil {
		return err
	}

	runner := agent.NewRunner(client,
		agent.WithLogger(logger),
		agent.WithRetry(3, agent.DefaultRetryBackoff),
		agent.WithModelSelection(!runSingleModel),
	)
	emitter := planner.NewEventEmitter(256)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range emitter.Events() {
			if !runQuiet {
				printEvent(ev)
			}
		}
	}()

	maxIterations := cfg.Planner.MaxIterations
	if runMaxIterations > 0 {
		maxIterations = runMaxIterations
	}

	p, err := planner.New(
		planner.Required{Sender: client, Runner: runner},
		planner.WithStore(store),
		planner.WithRunRecorder(evals),
		planner.WithEvalLogger(evalLogger),
		planner.WithRedFlagConfig(redFlags),
		planner.WithLogger(logger),
		planner.WithEmitter(emitter),
		planner.WithVoting(cfg.Voting.Enabled && !runNoVote),
		planner.WithVotingMode(mode),
		planner.WithVoteSampling(cfg.Voting.BaseTemperature, cfg.Voting.Timeout),
		planner.WithMaxRounds(cfg.Voting.MaxRounds),
		planner.WithStopSignal(watcher),
		planner.WithMaxIterations(maxIterations),
		planner.WithMaxSubtasks(cfg.Planner.MaxSubtasks),
	)
	if err != nil {
		emitter.Close()
		return err
	}

	if !runQuiet {
		printStatus("→", "Decomposing: "+task, color.FgCyan)
	}
	res, err := p.Run(ctx, task, rc)
	emitter.Close()
	<-printed
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(renderTree(res.Root))
	fmt.Println(renderSummary(res, client.Tracker()))

	if dropped := emitter.DroppedCount(); dropped > 0 {
		logger.Log("[run] %d planner events dropped", dropped)
	}
	if !res.Success {
		return errRunFailed
	}
	return nil
}

// runContextFromFlags merges command-line flags over config defaults.
func runContextFromFlags(cfg *config.Config) (planner.RunContext, error) {
	rc := planner.RunContext{
		Preference:   runPreference,
		Budget:       cfg.Defaults.Budget,
		ContextLimit: cfg.Defaults.ContextLimit,
	}
	switch {
	case runPriority != "":
		p, ok := models.ParsePriority(runPriority)
		if !ok {
			return rc, fmt.Errorf("unknown priority %q (use low, normal, high or critical)", runPriority)
		}
		rc.Priority = p
	case runPreference == "":
		rc.Priority = cfg.Priority()
	}
	if runBudget > 0 {
		rc.Budget = runBudget
	}
	if runContextLimit > 0 {
		rc.ContextLimit = runContextLimit
	}
	return rc, nil
}

// loadRedFlags extends the built-in red-flag rules with the configured file.
func loadRedFlags(cfg *config.Config) (decompose.RedFlagConfig, error) {
	rules := decompose.DefaultRedFlagConfig()
	if cfg.Planner.MaxSubtasks > 0 {
		rules.MaxSubtasks = cfg.Planner.MaxSubtasks
	}
	if cfg.Planner.RedFlags == "" {
		return rules, nil
	}
	rules, err := decompose.LoadRedFlagConfig(rules, cfg.Planner.RedFlags)
	if err != nil {
		return rules, fmt.Errorf("load red flags: %w", err)
	}
	return rules, nil
}

// openLogger returns the debug logger for a run. Logging stays off unless
// a log path is configured or --debug is given.
func openLogger(paths projectPaths) *logging.DebugLogger {
	if paths.Log != "" {
		logger, err := logging.NewDebugLogger(paths.Log)
		if err != nil {
			printStatus("⚠", fmt.Sprintf("Debug log disabled: %v", err), color.FgYellow)
			return logging.Nop()
		}
		return logger
	}
	if runDebug {
		return logging.NewForProject(paths.Root)
	}
	return logging.Nop()
}
