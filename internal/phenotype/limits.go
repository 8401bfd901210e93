package phenotype

import (
	"fmt"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Limits bounds a decomposition run. They are derived once per run and
// never change afterwards.
type Limits struct {
	MaxDepth       int
	MaxBreadth     int
	MaxCost        float64
	MaxContext     int
	MinSuccessRate float64
}

// String returns a compact human-readable form of the limits.
func (l Limits) String() string {
	return fmt.Sprintf("depth<=%d breadth<=%d cost<=%.2f context<=%d success>=%.2f",
		l.MaxDepth, l.MaxBreadth, l.MaxCost, l.MaxContext, l.MinSuccessRate)
}

// priorityScale is one row of the priority table.
type priorityScale struct {
	depth      int
	breadth    int
	costMul    float64
	contextMul float64
	minSuccess float64
}

// priorityTable scales budget and context cap per priority.
// Normal is the baseline.
var priorityTable = map[models.Priority]priorityScale{
	models.PriorityCritical: {depth: 10, breadth: 20, costMul: 2.0, contextMul: 1.5, minSuccess: 0.6},
	models.PriorityHigh:     {depth: 8, breadth: 15, costMul: 1.5, contextMul: 1.25, minSuccess: 0.65},
	models.PriorityNormal:   {depth: 6, breadth: 10, costMul: 1.0, contextMul: 1.0, minSuccess: 0.7},
	models.PriorityLow:      {depth: 4, breadth: 6, costMul: 0.5, contextMul: 0.5, minSuccess: 0.8},
}

// LimitsForPriority scales the fixed priority table against the caller's
// budget (currency units) and context cap (tokens).
// Unknown priorities use the normal row.
func LimitsForPriority(priority models.Priority, budget float64, contextLimit int) Limits {
	row, ok := priorityTable[priority]
	if !ok {
		row = priorityTable[models.PriorityNormal]
	}
	return Limits{
		MaxDepth:       row.depth,
		MaxBreadth:     row.breadth,
		MaxCost:        budget * row.costMul,
		MaxContext:     int(float64(contextLimit) * row.contextMul),
		MinSuccessRate: row.minSuccess,
	}
}
