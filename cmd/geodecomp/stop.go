package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/geodecomp/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running decomposition in this project to stop",
	Long: `Write the stop signal for this project. A running 'geodecomp run'
finishes its current decomposition step, skips leaf execution and
reports a stopped run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, paths, err := loadProject()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := signals.RequestStop(paths.Signals); err != nil {
			return fmt.Errorf("write stop signal: %w", err)
		}
		printStatus("✓", "Stop requested in "+paths.Signals, color.FgGreen)
		return nil
	},
}
