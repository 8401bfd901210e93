package agent

import (
	"strings"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Model identifiers for different capability levels.
const (
	// ModelHaiku is the lightweight, fast model for simple subtasks.
	ModelHaiku = "claude-haiku-4-5-20251001"
	// ModelSonnet is the balanced model for standard work.
	ModelSonnet = "claude-sonnet-4-20250514"
	// ModelOpus is the most capable model for complex subtasks.
	ModelOpus = "claude-opus-4-1-20250805"
)

// Keywords that indicate a subtask should use haiku.
var haikuKeywords = []string{
	"simple",
	"boilerplate",
	"typo",
	"trivial",
	"formatting",
	"rename",
}

// Keywords that indicate a subtask should use opus.
var opusKeywords = []string{
	"architecture",
	"design",
	"redesign",
	"complex",
	"concurrency",
}

// ProfileDefaultModels maps profiles to their default model. Profiles not
// listed use the client's configured model.
var ProfileDefaultModels = map[models.Profile]string{
	models.ProfileResearcher: ModelHaiku,
	models.ProfileVCS:        ModelHaiku,
}

// SelectModel chooses a model for a leaf subtask:
//   - haiku keywords (simple, boilerplate, typo, ...) -> haiku
//   - opus keywords (architecture, design, complex, ...) -> opus
//   - otherwise the profile's default, or "" for the client default
//
// High-stakes leaves never drop below the client default.
func SelectModel(task string, profile models.Profile, highStakes bool) string {
	if ContainsOpusKeyword(task) {
		return ModelOpus
	}
	if highStakes {
		return ""
	}
	if ContainsHaikuKeyword(task) {
		return ModelHaiku
	}
	return ProfileDefaultModels[profile]
}

// ContainsHaikuKeyword returns true if the text contains any haiku keyword.
func ContainsHaikuKeyword(text string) bool {
	return containsAny(text, haikuKeywords)
}

// ContainsOpusKeyword returns true if the text contains any opus keyword.
func ContainsOpusKeyword(text string) bool {
	return containsAny(text, opusKeywords)
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
