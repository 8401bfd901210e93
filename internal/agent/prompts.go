// Package agent runs leaf subtasks as profile-scoped LLM sub-agents and
// tracks them while they run.
package agent

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// ScopeGuidancePrompt is appended to every sub-agent system prompt.
const ScopeGuidancePrompt = `## Scope Guidance

Stay focused on this subtask. It is one piece of a larger decomposed task and
other sub-agents handle the rest.

Do NOT:
- Expand scope with unrelated refactoring
- Fix unrelated bugs you encounter
- Add features not specified in the subtask

DO:
- Complete the assigned subtask
- Report what you did in plain text
- Say clearly if the subtask cannot be completed
`

var profilePrompts = map[models.Profile]string{
	models.ProfileEditor: `You are an editor sub-agent. You may read and modify files in the
working tree. Make the smallest change that completes the subtask and describe
every file you changed.`,
	models.ProfileResearcher: `You are a researcher sub-agent. You may search and read, but you must not
modify anything. Answer with the findings the subtask asks for, citing the
files or sources you used.`,
	models.ProfileVCS: `You are a version-control sub-agent. You may inspect history, stage changes
and create commits. Never rewrite published history or force-push.`,
	models.ProfileAll: `You are a general sub-agent with every tool available. Use only what the
subtask needs.`,
}

// SystemPrompt returns the system prompt for a profile. Unknown profiles
// get the ProfileAll prompt.
func SystemPrompt(profile models.Profile) string {
	base, ok := profilePrompts[profile]
	if !ok {
		base = profilePrompts[models.ProfileAll]
	}
	return base + "\n\n" + ScopeGuidancePrompt
}

// BuildSubtaskPrompt renders the user prompt for one leaf subtask.
func BuildSubtaskPrompt(task string, profile models.Profile) string {
	var sb strings.Builder
	sb.WriteString("## Subtask\n\n")
	sb.WriteString(strings.TrimSpace(task))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Tool profile: %s\n", profileName(profile))
	sb.WriteString("\nReply with the result of the subtask only.\n")
	return sb.String()
}

func profileName(p models.Profile) string {
	if !p.Valid() {
		return string(models.ProfileAll)
	}
	return string(p)
}
