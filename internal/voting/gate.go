package voting

import (
	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// LowSuccessRate is the running success rate below which every step is voted on.
const LowSuccessRate = 0.6

// destructiveHints are tool hints whose effects are hard to undo.
var destructiveHints = map[string]bool{
	"write_file": true,
	"patch_file": true,
	"git_commit": true,
	"delete":     true,
}

// ShouldVote reports whether step deserves the voting path rather than a
// single direct call.
func ShouldVote(step models.DecompStep, p phenotype.Phenotype) bool {
	if step.HighStakes {
		return true
	}
	if p.SuccessRate < LowSuccessRate {
		return true
	}
	for _, hint := range step.ToolHints {
		if destructiveHints[hint] {
			return true
		}
	}
	return false
}
