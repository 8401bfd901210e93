package planner

import (
	"strings"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// taskTypeKeywords is matched in order; the first type with a matching
// keyword wins.
var taskTypeKeywords = []struct {
	taskType models.TaskType
	keywords []string
}{
	{models.TaskTypeRefactor, []string{"refactor", "restructure", "reorganize", "clean up", "cleanup", "extract"}},
	{models.TaskTypeImplement, []string{"implement", "add ", "build", "create", "feature", "introduce"}},
	{models.TaskTypeDebug, []string{"debug", "fix", "bug", "crash", "broken", "failing"}},
	{models.TaskTypeResearch, []string{"research", "investigate", "explore", "analyze", "analyse", "find out"}},
	{models.TaskTypeTest, []string{"test", "coverage"}},
	{models.TaskTypeDocument, []string{"document", "docs", "readme", "changelog"}},
}

// ClassifyTask maps a task description to a task type by keyword.
// Unmatched descriptions are TaskTypeGeneral.
func ClassifyTask(description string) models.TaskType {
	lower := strings.ToLower(description)
	for _, row := range taskTypeKeywords {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.taskType
			}
		}
	}
	return models.TaskTypeGeneral
}
