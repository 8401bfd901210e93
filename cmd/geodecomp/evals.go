package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/geodecomp/internal/eval"
)

var (
	evalsLimit      int
	evalsShowOutput bool
)

var evalsCmd = &cobra.Command{
	Use:   "evals",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEvals(func(ctx context.Context, store *eval.Store) error {
			runs, err := store.ListRuns(ctx, evalsLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printStatus("•", "No runs recorded yet", color.FgYellow)
				return nil
			}
			for _, r := range runs {
				printRun(r)
			}
			return nil
		})
	},
}

var evalsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the leaf evals of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEvals(func(ctx context.Context, store *eval.Store) error {
			evals, err := store.ListEvals(ctx, args[0])
			if err != nil {
				return err
			}
			if len(evals) == 0 {
				printStatus("•", "No leaf evals for run "+args[0], color.FgYellow)
				return nil
			}
			for _, e := range evals {
				printEval(e)
			}
			return nil
		})
	},
}

var evalsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise finished runs by task type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEvals(func(ctx context.Context, store *eval.Store) error {
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				printStatus("•", "No finished runs yet", color.FgYellow)
				return nil
			}
			fmt.Println(titleStyle.Render(fmt.Sprintf("%-12s %6s %9s %8s %10s", "TYPE", "RUNS", "SUCCEEDED", "AVG", "COST")))
			for _, s := range stats {
				fmt.Printf("%-12s %6d %9d %8.2f %10.4f\n", s.TaskType, s.Runs, s.Succeeded, s.AvgRate, s.TotalCost)
			}
			return nil
		})
	},
}

func init() {
	evalsCmd.Flags().IntVarP(&evalsLimit, "limit", "n", 20, "Number of runs to show")
	evalsShowCmd.Flags().BoolVar(&evalsShowOutput, "output", false, "Print each leaf's output")

	evalsCmd.AddCommand(evalsShowCmd)
	evalsCmd.AddCommand(evalsStatsCmd)
}

// withEvals opens the project's eval store for the duration of fn.
func withEvals(fn func(context.Context, *eval.Store) error) error {
	_, paths, err := loadProject()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := eval.Open(paths.Evals)
	if err != nil {
		return fmt.Errorf("open eval store: %w", err)
	}
	defer store.Close()
	return fn(context.Background(), store)
}

func printRun(r eval.Run) {
	symbol, attr := "✓", color.FgGreen
	switch {
	case r.FinishedAt.IsZero():
		symbol, attr = "…", color.FgYellow
	case !r.Success:
		symbol, attr = "✗", color.FgRed
	}
	printStatus(symbol, fmt.Sprintf("%s  %s", r.ID, truncate(r.RootTask, 60)), attr)
	detail := fmt.Sprintf("%s/%s %s  leaves=%d success=%.2f cost=$%.4f  %s",
		r.TaskType, r.Priority, r.Strategy, r.Leaves, r.SuccessRate, r.Cost, r.StartedAt.Format("2006-01-02 15:04"))
	if r.PatternID != "" {
		detail += "  pattern=" + r.PatternID
	}
	fmt.Println("  " + labelStyle.Render(detail))
}

func printEval(e eval.Eval) {
	symbol, attr := "✓", color.FgGreen
	if !e.OK {
		symbol, attr = "✗", color.FgRed
	}
	printStatus(symbol, fmt.Sprintf("#%d %s", e.NodeID, truncate(e.Task, 70)), attr)

	detail := fmt.Sprintf("profile=%s %dms", e.Profile, e.DurationMs)
	if e.Voted {
		detail += fmt.Sprintf(" voted rounds=%d consensus=%t", e.VoteRounds, e.Consensus)
	}
	if e.Err != "" {
		detail += " error=" + e.Err
	}
	fmt.Println("  " + labelStyle.Render(detail))
	if evalsShowOutput && e.Output != "" {
		fmt.Println(boxStyle.Render(e.Output))
	}
}
