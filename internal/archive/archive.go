// Package archive holds the library of decomposition patterns that worked
// before, one archive per task type, and selects the pattern whose phenotype
// is nearest to a run's target.
package archive

import "github.com/ShayCichocki/geodecomp/pkg/models"

// Entry is an archived pattern with the score it earned when recorded.
type Entry struct {
	Pattern models.DecompositionPattern `json:"pattern" yaml:"pattern"`
	Score   float64                     `json:"score" yaml:"score"`
}

// Archive is the point cloud of patterns for a single task type, in
// insertion order. Scores are only comparable within one archive.
type Archive struct {
	TaskType models.TaskType `json:"task_type" yaml:"task_type"`
	Entries  []Entry         `json:"entries" yaml:"entries"`
}

// New returns an empty archive for taskType.
func New(taskType models.TaskType) *Archive {
	return &Archive{TaskType: taskType}
}

// Len returns the number of archived patterns.
func (a *Archive) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Entries)
}

// Find returns the entry holding the pattern with the given id.
func (a *Archive) Find(id string) (Entry, bool) {
	if a == nil {
		return Entry{}, false
	}
	for _, e := range a.Entries {
		if e.Pattern.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Best returns the highest-scoring entry. Ties go to the earliest entry.
func (a *Archive) Best() (Entry, bool) {
	if a.Len() == 0 {
		return Entry{}, false
	}
	best := a.Entries[0]
	for _, e := range a.Entries[1:] {
		if e.Score > best.Score {
			best = e
		}
	}
	return best, true
}

// Record returns a new archive with pattern appended at score. The input
// archive is not modified.
func Record(a *Archive, pattern models.DecompositionPattern, score float64) *Archive {
	out := &Archive{TaskType: pattern.TaskType}
	if a != nil {
		out.TaskType = a.TaskType
		out.Entries = make([]Entry, len(a.Entries), len(a.Entries)+1)
		copy(out.Entries, a.Entries)
	}
	out.Entries = append(out.Entries, Entry{Pattern: pattern, Score: score})
	return out
}
