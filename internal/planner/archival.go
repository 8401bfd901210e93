package planner

import (
	"context"
	"strings"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/pkg/models"
	"github.com/google/uuid"
)

// archiveRun flattens the executed tree into a pattern, scores it and
// saves it. It returns the new pattern id, or "" when nothing was archived.
// Store failures are logged and never fail the run.
func (p *Planner) archiveRun(ctx context.Context, r *run, elapsed time.Duration) string {
	if p.opts.store == nil {
		return ""
	}
	st := r.state
	steps := st.Flatten()
	if len(steps) == 0 {
		return ""
	}
	for i := range steps {
		steps[i].Description = GeneralizeDescription(steps[i].Description, st.RootTask)
	}

	results := st.Results()
	succeeded := 0
	for _, lr := range results {
		if lr.OK {
			succeeded++
		}
	}

	uses := 1
	if r.replayed != nil {
		uses = r.replayed.Pattern.Stats.Uses + 1
	}

	durationMs := elapsed.Milliseconds()
	pattern := models.DecompositionPattern{
		ID:        uuid.New().String(),
		TaskType:  st.TaskType,
		Priority:  st.Priority,
		Steps:     steps,
		Phenotype: st.Phenotype,
		Stats: models.PatternStats{
			Uses:            uses,
			DurationMs:      durationMs,
			Leaves:          len(results),
			SucceededLeaves: succeeded,
			CreatedAt:       p.opts.now(),
		},
	}
	score := archive.ScoreDecomposition(st.Phenotype, true, durationMs)

	updated := archive.Record(r.archive, pattern, score)
	if err := p.opts.store.Save(ctx, updated); err != nil {
		p.opts.logger.Log("[planner] save archive %s: %v", st.TaskType, err)
		return ""
	}
	r.archive = updated

	p.opts.logger.Log("[planner] archived pattern %s (%d steps, score %.3f)", pattern.ID, len(steps), score)
	p.emit(r, Event{Type: EventPatternArchived, Message: pattern.ID})
	return pattern.ID
}

// GeneralizeDescription replaces occurrences of rootTask with
// TaskPlaceholder so the step can be replayed for another task.
func GeneralizeDescription(description, rootTask string) string {
	if strings.TrimSpace(rootTask) == "" {
		return description
	}
	return strings.ReplaceAll(description, rootTask, TaskPlaceholder)
}
