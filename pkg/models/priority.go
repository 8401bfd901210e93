package models

// Priority represents the importance tier of a decomposition run.
// It scales the resource limits and selects the voting tier.
type Priority string

const (
	// PriorityCritical allows the deepest, widest and most expensive decompositions.
	PriorityCritical Priority = "critical"
	// PriorityHigh is for important work that can spend more than the baseline.
	PriorityHigh Priority = "high"
	// PriorityNormal is the baseline.
	PriorityNormal Priority = "normal"
	// PriorityLow keeps decompositions shallow and cheap.
	PriorityLow Priority = "low"
)

// AllPriorities lists the priorities from most to least important.
var AllPriorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// ParsePriority returns the priority named by s and whether it was recognised.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(s)
	return p, p.Valid()
}
