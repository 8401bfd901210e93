package archive

import "github.com/ShayCichocki/geodecomp/internal/phenotype"

// Score weights.
const (
	successWeight    = 0.5
	efficiencyWeight = 0.3
	costWeight       = 0.2

	// efficiencyHorizonMs is the duration at which efficiency reaches zero.
	efficiencyHorizonMs = 60000.0
)

// ScoreDecomposition rates a finished run for archival:
//
//	0.5*success + 0.3*max(0, 1 - durationMs/60000) + 0.2*(1 - cost)
//
// Cost is not clamped, so runs costing more than one currency unit are
// penalised below zero on that term.
func ScoreDecomposition(p phenotype.Phenotype, success bool, durationMs int64) float64 {
	successScore := 0.0
	if success {
		successScore = 1.0
	}
	efficiency := max(0, 1-float64(durationMs)/efficiencyHorizonMs)
	costScore := 1 - p.Cost
	return successWeight*successScore + efficiencyWeight*efficiency + costWeight*costScore
}
