package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/geodecomp/internal/llm"
	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Source records how a target phenotype was resolved.
type Source string

const (
	SourcePriority Source = "priority"
	SourceKeyword  Source = "keyword"
	SourceLLM      Source = "llm"
	SourceDefault  Source = "default"
)

// Target is the phenotype a run aims for, used to pick an archived pattern.
type Target struct {
	Phenotype phenotype.Phenotype
	Priority  models.Priority
	Source    Source
}

var referencePhenotypes = map[models.Priority]phenotype.Phenotype{
	models.PriorityCritical: {Depth: 8, Breadth: 12, Cost: 1.5, ContextSize: 150000, SuccessRate: 0.95},
	models.PriorityHigh:     {Depth: 6, Breadth: 8, Cost: 1.0, ContextSize: 100000, SuccessRate: 0.9},
	models.PriorityNormal:   {Depth: 4, Breadth: 5, Cost: 0.5, ContextSize: 60000, SuccessRate: 0.8},
	models.PriorityLow:      {Depth: 2, Breadth: 3, Cost: 0.2, ContextSize: 20000, SuccessRate: 0.7},
}

// ReferencePhenotype returns the fixed target for a priority tier.
// Unknown priorities get the normal reference.
func ReferencePhenotype(p models.Priority) phenotype.Phenotype {
	if ref, ok := referencePhenotypes[p]; ok {
		return ref
	}
	return referencePhenotypes[models.PriorityNormal]
}

// preferenceKeyword maps a free-text keyword to a priority tier.
type preferenceKeyword struct {
	keyword  string
	priority models.Priority
}

// preferenceKeywords is matched in order; the first hit wins.
var preferenceKeywords = []preferenceKeyword{
	{"critical", models.PriorityCritical},
	{"production", models.PriorityCritical},
	{"security", models.PriorityCritical},
	{"mission", models.PriorityCritical},
	{"must not fail", models.PriorityCritical},
	{"urgent", models.PriorityHigh},
	{"important", models.PriorityHigh},
	{"thorough", models.PriorityHigh},
	{"careful", models.PriorityHigh},
	{"quality", models.PriorityHigh},
	{"robust", models.PriorityHigh},
	{"quick", models.PriorityLow},
	{"fast", models.PriorityLow},
	{"cheap", models.PriorityLow},
	{"prototype", models.PriorityLow},
	{"draft", models.PriorityLow},
	{"spike", models.PriorityLow},
	{"minimal", models.PriorityLow},
	{"balanced", models.PriorityNormal},
	{"standard", models.PriorityNormal},
	{"normal", models.PriorityNormal},
}

// MatchPreferenceKeyword returns the tier of the first keyword contained in
// the lowercased preference.
func MatchPreferenceKeyword(preference string) (models.Priority, bool) {
	lower := strings.ToLower(preference)
	for _, kw := range preferenceKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.priority, true
		}
	}
	return "", false
}

// ResolveTarget turns a priority tier or a free-text preference into a target
// phenotype. Tier names resolve directly and keywords are tried before the
// LLM. sender may be nil, in which case unmatched text resolves to normal.
func ResolveTarget(ctx context.Context, input string, sender llm.Sender) Target {
	trimmed := strings.TrimSpace(input)
	if p, ok := models.ParsePriority(strings.ToLower(trimmed)); ok {
		return Target{Phenotype: ReferencePhenotype(p), Priority: p, Source: SourcePriority}
	}
	if trimmed == "" {
		return defaultTarget()
	}

	if p, ok := MatchPreferenceKeyword(trimmed); ok {
		return Target{Phenotype: ReferencePhenotype(p), Priority: p, Source: SourceKeyword}
	}

	if sender == nil {
		return defaultTarget()
	}

	resp, err := sender.Send(ctx, buildPreferencePrompt(trimmed))
	if err != nil || !resp.OK {
		return defaultTarget()
	}
	scores, err := parsePreferenceScores(resp.Raw)
	if err != nil {
		return defaultTarget()
	}

	p := scores.denormalize()
	return Target{Phenotype: p, Priority: nearestPriority(p), Source: SourceLLM}
}

func defaultTarget() Target {
	return Target{
		Phenotype: ReferencePhenotype(models.PriorityNormal),
		Priority:  models.PriorityNormal,
		Source:    SourceDefault,
	}
}

func buildPreferencePrompt(preference string) string {
	var sb strings.Builder
	sb.WriteString("A user described how a coding task should be approached:\n\n")
	sb.WriteString(preference)
	sb.WriteString("\n\nRate the desired decomposition on five axes, each a number from 0 to 1:\n")
	sb.WriteString("- depth: how many levels of subtasks are acceptable\n")
	sb.WriteString("- breadth: how many parallel subtasks are acceptable\n")
	sb.WriteString("- cost: how much money may be spent\n")
	sb.WriteString("- context: how much context may be consumed\n")
	sb.WriteString("- success: how reliable the result must be\n\n")
	sb.WriteString("Respond with ONLY a JSON object, for example:\n")
	sb.WriteString(`{"depth": 0.5, "breadth": 0.4, "cost": 0.3, "context": 0.3, "success": 0.8}`)
	sb.WriteString("\n")
	return sb.String()
}

// preferenceScores are the normalised 0-1 scores returned by the LLM.
type preferenceScores struct {
	Depth   *float64 `json:"depth"`
	Breadth *float64 `json:"breadth"`
	Cost    *float64 `json:"cost"`
	Context *float64 `json:"context"`
	Success *float64 `json:"success"`
}

func parsePreferenceScores(raw string) (preferenceScores, error) {
	var scores preferenceScores

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return scores, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return scores, fmt.Errorf("parse preference scores: %w", err)
	}
	if scores.Depth == nil || scores.Breadth == nil || scores.Cost == nil ||
		scores.Context == nil || scores.Success == nil {
		return scores, fmt.Errorf("preference scores incomplete")
	}
	return scores, nil
}

func (s preferenceScores) denormalize() phenotype.Phenotype {
	return phenotype.Phenotype{
		Depth:       int(1 + 9*clamp01(*s.Depth)),
		Breadth:     int(1 + 19*clamp01(*s.Breadth)),
		Cost:        2.0 * clamp01(*s.Cost),
		ContextSize: int(200000 * clamp01(*s.Context)),
		SuccessRate: clamp01(*s.Success),
	}
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}

// nearestPriority returns the tier whose reference phenotype is closest to p.
func nearestPriority(p phenotype.Phenotype) models.Priority {
	points := make([]vector, 0, len(models.AllPriorities)+1)
	for _, pr := range models.AllPriorities {
		points = append(points, toVector(referencePhenotypes[pr]))
	}
	points = append(points, toVector(p))
	norm := normalize(points)
	t := norm[len(norm)-1]

	best := models.PriorityNormal
	bestDist := -1.0
	for i, pr := range models.AllPriorities {
		d := distance(norm[i], t)
		if bestDist < 0 || d < bestDist {
			best, bestDist = pr, d
		}
	}
	return best
}
