package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/geodecomp/internal/llm"
	"github.com/ShayCichocki/geodecomp/internal/planner"
	"github.com/ShayCichocki/geodecomp/internal/tree"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	statusStyles = map[tree.Status]lipgloss.Style{
		tree.StatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")), // Gray
		tree.StatusDecomposed: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),  // Blue
		tree.StatusInline:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // Orange
		tree.StatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),  // Green
		tree.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")), // Red
		tree.StatusPruned:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true),
	}
)

// printStatus prints a status line with a colored symbol.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	c.Printf("%s ", symbol)
	fmt.Println(message)
}

// printEvent prints one planner event as a status line.
func printEvent(ev planner.Event) {
	switch ev.Type {
	case planner.EventRunStarted:
		printStatus("•", "Limits: "+ev.Message, color.FgBlue)
	case planner.EventStrategySelected:
		printStatus("→", "Strategy: "+ev.Message, color.FgCyan)
	case planner.EventNodeDecomposed:
		printStatus("+", fmt.Sprintf("#%d %s: %s", ev.NodeID, truncate(ev.Task, 60), ev.Message), color.FgBlue)
	case planner.EventRollback:
		printStatus("↺", fmt.Sprintf("Rollback at #%d: %s", ev.NodeID, ev.Message), color.FgYellow)
	case planner.EventLeafCompleted:
		printStatus("✓", fmt.Sprintf("#%d %s", ev.NodeID, truncate(ev.Task, 70)), color.FgGreen)
	case planner.EventLeafFailed:
		msg := fmt.Sprintf("#%d %s", ev.NodeID, truncate(ev.Task, 70))
		if ev.Error != nil {
			msg += ": " + ev.Error.Error()
		}
		printStatus("✗", msg, color.FgRed)
	case planner.EventVoteCompleted:
		printStatus("⚖", fmt.Sprintf("#%d %s", ev.NodeID, ev.Message), color.FgMagenta)
	case planner.EventPatternArchived:
		printStatus("★", "Archived pattern "+ev.Message, color.FgGreen)
	case planner.EventRunCompleted:
		printStatus("■", ev.Message, color.FgCyan)
	}
}

// renderTree draws the decomposition tree, one node per line.
func renderTree(root *tree.Node) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(renderNode(root))
	sb.WriteString("\n")
	writeChildren(&sb, root, "")
	return strings.TrimRight(sb.String(), "\n")
}

func writeChildren(sb *strings.Builder, n *tree.Node, prefix string) {
	for i, child := range n.Children {
		branch, next := "├── ", "│   "
		if i == len(n.Children)-1 {
			branch, next = "└── ", "    "
		}
		sb.WriteString(labelStyle.Render(prefix + branch))
		sb.WriteString(renderNode(child))
		sb.WriteString("\n")
		writeChildren(sb, child, prefix+next)
	}
}

func renderNode(n *tree.Node) string {
	style, ok := statusStyles[n.Status]
	if !ok {
		style = valueStyle
	}
	label := fmt.Sprintf("#%d %s", n.ID, truncate(n.Task, 80))
	if n.HighStakes {
		label += " !"
	}
	return style.Render(label) + " " + labelStyle.Render("["+string(n.Status)+"]")
}

// renderSummary renders the outcome of a run as a bordered box.
func renderSummary(res *planner.Result, tracker *llm.TokenTracker) string {
	outcome := lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Bold(true).Render("SUCCESS")
	if !res.Success {
		outcome = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render("FAILED")
	}
	if res.Stopped {
		outcome += labelStyle.Render(" (stopped)")
	}

	succeeded := 0
	for _, r := range res.Results {
		if r.OK {
			succeeded++
		}
	}

	rows := [][2]string{
		{"Run", res.RunID},
		{"Task type", string(res.TaskType)},
		{"Priority", fmt.Sprintf("%s (%s)", res.Priority, res.Target.Source)},
		{"Strategy", strategyLabel(res)},
		{"Leaves", fmt.Sprintf("%d/%d succeeded", succeeded, len(res.Results))},
		{"Depth/Breadth", fmt.Sprintf("%d/%d (max %d/%d)", res.Phenotype.Depth, res.Phenotype.Breadth, res.Limits.MaxDepth, res.Limits.MaxBreadth)},
		{"Cost", fmt.Sprintf("$%.4f of $%.2f", res.Phenotype.Cost, res.Limits.MaxCost)},
		{"Context", fmt.Sprintf("%d of %d tokens", res.Phenotype.ContextSize, res.Limits.MaxContext)},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
	}
	if res.PatternID != "" {
		rows = append(rows, [2]string{"Archived", res.PatternID})
	}
	if tracker != nil {
		in, out := tracker.Total()
		rows = append(rows, [2]string{"API", fmt.Sprintf("%d calls, %d in / %d out tokens", tracker.Calls(), in, out)})
	}

	lines := []string{titleStyle.Render("Run ") + outcome}
	for _, row := range rows {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-14s", row[0]))+valueStyle.Render(row[1]))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func strategyLabel(res *planner.Result) string {
	label := string(res.Strategy)
	if res.ReplayedPatternID != "" {
		label += " of " + res.ReplayedPatternID
	}
	if !res.StrategyOK {
		label += " (incomplete)"
	}
	return label
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
