package decompose

import (
	"fmt"
	"strings"
)

// subtaskPrompt is the prompt template for breaking one subtask down further.
// Arguments: root task, current subtask, ancestry, max subtasks.
const subtaskPrompt = `You are decomposing a coding task into the smallest useful subtasks.

Overall goal:
%s

Subtask to break down:
%s
%s
Return ONLY a JSON array of at most %d subtasks with this exact structure (no other text):
[
  {
    "description": "One concrete action a single agent can finish in one pass",
    "dependencies": ["description of a sibling subtask this one needs first"],
    "profile": "editor|researcher|vcs|all",
    "tool_hints": ["write_file"],
    "high_stakes": false
  }
]

Profiles:
- editor: reads and modifies files
- researcher: searches and reads, never modifies
- vcs: commits, branches and other version control work
- all: needs every tool

Guidelines:
- Prefer fewer, well-scoped subtasks; return [] if the subtask is already atomic
- tool_hints lists the specific tools the subtask needs: read_file, write_file, patch_file, git_commit, delete; use [] when unsure
- dependencies may only name other subtasks in this array; use [] when there are none
- Set high_stakes to true for anything destructive or hard to undo (deleting files, commits, migrations)
- Never include shell commands that delete data or rewrite history`

// BuildPrompt returns the decomposition prompt for subtask. ancestry lists
// the chain of parent subtasks from the root down, and may be empty.
func BuildPrompt(rootTask, subtask string, ancestry []string, maxSubtasks int) string {
	var context string
	if len(ancestry) > 0 {
		var sb strings.Builder
		sb.WriteString("\nIt was derived from:\n")
		for _, a := range ancestry {
			sb.WriteString("- ")
			sb.WriteString(a)
			sb.WriteString("\n")
		}
		context = sb.String()
	}
	return fmt.Sprintf(subtaskPrompt, rootTask, subtask, context, maxSubtasks)
}
