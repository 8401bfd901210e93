package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "geodecomp",
	Short: "Geometric task decomposition with consensus execution",
	Long: `geodecomp breaks a coding task into a tree of subtasks, executes the
leaves, and remembers decompositions that worked.

Core capabilities:
- Replays archived decompositions that match the run's target footprint
- Falls back to maximal decomposition with checkpoint and rollback
- Votes on high-stakes leaves until independent samples agree
- Records every run and leaf in a local eval database`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(evalsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
