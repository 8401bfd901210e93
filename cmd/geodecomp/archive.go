package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/planner"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

var (
	archiveTaskType string
	archiveBins     bool
	archivePriority string
	archiveTop      int
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and share archived decomposition patterns",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(ctx context.Context, store *archive.SQLiteStore) error {
			archives, err := loadArchives(ctx, store, archiveTaskType)
			if err != nil {
				return err
			}
			if len(archives) == 0 {
				printStatus("•", "No patterns archived yet", color.FgYellow)
				return nil
			}
			for _, a := range archives {
				if archiveBins {
					printBins(a)
				} else {
					printArchive(a)
				}
			}
			return nil
		})
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <pattern-id>",
	Short: "Show one pattern and its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(ctx context.Context, store *archive.SQLiteStore) error {
			entry, ok, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("pattern not found: %s", args[0])
			}
			fmt.Println(renderPattern(entry))
			return nil
		})
	},
}

var archiveMatchCmd = &cobra.Command{
	Use:   "match <task>",
	Short: "Show which patterns a task would replay",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.Join(args, " ")
		priority, ok := models.ParsePriority(archivePriority)
		if !ok {
			return fmt.Errorf("unknown priority %q", archivePriority)
		}
		return withArchive(func(ctx context.Context, store *archive.SQLiteStore) error {
			taskType := planner.ClassifyTask(task)
			a, err := store.Load(ctx, taskType)
			if err != nil {
				return err
			}
			target := archive.ReferencePhenotype(priority)
			printStatus("•", fmt.Sprintf("Task type %s, target %s", taskType, formatPhenotype(target)), color.FgBlue)

			matches := archive.Rank(a, target, archiveTop)
			if len(matches) == 0 {
				printStatus("•", "No patterns for this task type; the run would decompose maximally", color.FgYellow)
				return nil
			}
			for i, m := range matches {
				line := fmt.Sprintf("%d. %s  distance=%.3f score=%.3f  %s",
					i+1, m.Pattern.ID, m.Distance, m.Score, formatPhenotype(m.Pattern.Phenotype))
				if i == 0 {
					printStatus("→", line, color.FgGreen)
				} else {
					fmt.Println("  " + line)
				}
			}
			return nil
		})
	},
}

var archiveExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export patterns as YAML (to stdout without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(func(ctx context.Context, store *archive.SQLiteStore) error {
			archives, err := loadArchives(ctx, store, archiveTaskType)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := archive.ExportYAML(w, archives...); err != nil {
				return err
			}
			if len(args) == 1 {
				printStatus("✓", fmt.Sprintf("Exported %d archives to %s", len(archives), args[0]), color.FgGreen)
			}
			return nil
		})
	},
}

var archiveImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import patterns exported by 'archive export'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		archives, err := archive.ImportYAML(f)
		if err != nil {
			return err
		}
		return withArchive(func(ctx context.Context, store *archive.SQLiteStore) error {
			total := 0
			for _, a := range archives {
				if err := store.Save(ctx, a); err != nil {
					return fmt.Errorf("save %s patterns: %w", a.TaskType, err)
				}
				total += a.Len()
			}
			printStatus("✓", fmt.Sprintf("Imported %d patterns from %s", total, args[0]), color.FgGreen)
			return nil
		})
	},
}

func init() {
	archiveListCmd.Flags().StringVarP(&archiveTaskType, "type", "t", "", "Only show this task type")
	archiveListCmd.Flags().BoolVar(&archiveBins, "bins", false, "Group patterns by phenotype bin")
	archiveExportCmd.Flags().StringVarP(&archiveTaskType, "type", "t", "", "Only export this task type")
	archiveMatchCmd.Flags().StringVarP(&archivePriority, "priority", "p", string(models.PriorityNormal), "Priority whose reference footprint is the target")
	archiveMatchCmd.Flags().IntVarP(&archiveTop, "top", "n", 5, "Number of nearest patterns to show")

	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.AddCommand(archiveMatchCmd)
	archiveCmd.AddCommand(archiveExportCmd)
	archiveCmd.AddCommand(archiveImportCmd)
}

// withArchive opens the project's pattern store for the duration of fn.
func withArchive(fn func(context.Context, *archive.SQLiteStore) error) error {
	cfg, paths, err := loadProject()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := archive.OpenSQLiteStore(paths.Archive, cfg.Archive.MaxPatterns)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()
	return fn(context.Background(), store)
}

// patternLister is a Store that can enumerate its task types.
type patternLister interface {
	archive.Store
	TaskTypes(ctx context.Context) ([]models.TaskType, error)
}

// loadArchives loads one task type, or every stored task type when empty.
func loadArchives(ctx context.Context, store patternLister, taskType string) ([]*archive.Archive, error) {
	var types []models.TaskType
	if taskType != "" {
		types = []models.TaskType{models.TaskType(taskType)}
	} else {
		var err error
		types, err = store.TaskTypes(ctx)
		if err != nil {
			return nil, err
		}
	}

	var archives []*archive.Archive
	for _, tt := range types {
		a, err := store.Load(ctx, tt)
		if err != nil {
			return nil, fmt.Errorf("load %s patterns: %w", tt, err)
		}
		if a.Len() > 0 {
			archives = append(archives, a)
		}
	}
	return archives, nil
}

func printArchive(a *archive.Archive) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s (%d)", a.TaskType, a.Len())))
	for _, e := range a.Entries {
		p := e.Pattern
		fmt.Printf("  %s %s %s\n",
			valueStyle.Render(p.ID),
			labelStyle.Render(fmt.Sprintf("score=%.3f uses=%d steps=%d", e.Score, p.Stats.Uses, len(p.Steps))),
			labelStyle.Render(formatPhenotype(p.Phenotype)))
	}
}

func printBins(a *archive.Archive) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s (%d)", a.TaskType, a.Len())))
	bins := archive.GroupByBin(a)
	keys := make([]string, 0, len(bins))
	for k := range bins {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s %s\n", valueStyle.Render(k), labelStyle.Render(fmt.Sprintf("%d patterns", len(bins[k]))))
		for _, e := range bins[k] {
			fmt.Printf("    %s %s\n", e.Pattern.ID, labelStyle.Render(fmt.Sprintf("score=%.3f", e.Score)))
		}
	}
}

// renderPattern renders a pattern with its steps in a bordered box.
func renderPattern(e archive.Entry) string {
	p := e.Pattern
	lines := []string{
		titleStyle.Render(p.ID),
		labelStyle.Render(fmt.Sprintf("%-12s", "Task type")) + valueStyle.Render(string(p.TaskType)),
		labelStyle.Render(fmt.Sprintf("%-12s", "Priority")) + valueStyle.Render(string(p.Priority)),
		labelStyle.Render(fmt.Sprintf("%-12s", "Score")) + valueStyle.Render(fmt.Sprintf("%.3f", e.Score)),
		labelStyle.Render(fmt.Sprintf("%-12s", "Uses")) + valueStyle.Render(fmt.Sprintf("%d", p.Stats.Uses)),
		labelStyle.Render(fmt.Sprintf("%-12s", "Leaves")) + valueStyle.Render(fmt.Sprintf("%d/%d succeeded", p.Stats.SucceededLeaves, p.Stats.Leaves)),
		labelStyle.Render(fmt.Sprintf("%-12s", "Phenotype")) + valueStyle.Render(formatPhenotype(p.Phenotype)),
		"",
	}
	for _, s := range p.Steps {
		line := valueStyle.Render(s.ID) + " " + s.Description
		if len(s.Dependencies) > 0 {
			line += labelStyle.Render(" after " + strings.Join(s.Dependencies, ", "))
		}
		if s.HighStakes {
			line += lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render(" [high stakes]")
		}
		lines = append(lines, line)
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatPhenotype(p models.Phenotype) string {
	return fmt.Sprintf("depth=%d breadth=%d cost=%.2f context=%d success=%.2f",
		p.Depth, p.Breadth, p.Cost, p.ContextSize, p.SuccessRate)
}
