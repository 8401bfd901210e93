package models

import "time"

// TaskType is the coarse category a root task is classified into.
// Pattern archives are keyed by task type.
type TaskType string

const (
	TaskTypeRefactor  TaskType = "refactor"
	TaskTypeImplement TaskType = "implement"
	TaskTypeDebug     TaskType = "debug"
	TaskTypeResearch  TaskType = "research"
	TaskTypeTest      TaskType = "test"
	TaskTypeDocument  TaskType = "document"
	TaskTypeGeneral   TaskType = "general"
)

// DecompStep is a single step of an archived decomposition.
type DecompStep struct {
	// ID is unique within its pattern.
	ID string `json:"id" yaml:"id"`
	// Description is the subtask text. It may contain the {{task}}
	// placeholder, which is replaced by the root task on replay.
	Description string `json:"description" yaml:"description"`
	// ToolHints name tools or profiles the step is expected to need.
	ToolHints []string `json:"tool_hints,omitempty" yaml:"tool_hints,omitempty"`
	// Dependencies are IDs of steps this step builds on.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// HighStakes forces consensus voting when the step is executed.
	HighStakes bool `json:"high_stakes,omitempty" yaml:"high_stakes,omitempty"`
}

// PatternStats records how an archived pattern performed.
type PatternStats struct {
	Uses            int       `json:"uses" yaml:"uses"`
	DurationMs      int64     `json:"duration_ms" yaml:"duration_ms"`
	Leaves          int       `json:"leaves" yaml:"leaves"`
	SucceededLeaves int       `json:"succeeded_leaves" yaml:"succeeded_leaves"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}

// DecompositionPattern is an ordered sequence of steps that previously
// succeeded for a task type. Patterns are immutable once archived.
type DecompositionPattern struct {
	ID        string       `json:"id" yaml:"id"`
	TaskType  TaskType     `json:"task_type" yaml:"task_type"`
	Priority  Priority     `json:"priority" yaml:"priority"`
	Steps     []DecompStep `json:"steps" yaml:"steps"`
	Phenotype Phenotype    `json:"phenotype" yaml:"phenotype"`
	Stats     PatternStats `json:"stats" yaml:"stats"`
}
