package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Store persists archives keyed by task type.
type Store interface {
	// Load returns the archive for taskType. A task type with no patterns
	// yields an empty archive, not an error.
	Load(ctx context.Context, taskType models.TaskType) (*Archive, error)
	// Save persists every entry of a not already stored.
	Save(ctx context.Context, a *Archive) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.RWMutex
	archives    map[models.TaskType]*Archive
	maxPatterns int
}

// NewMemoryStore creates an empty MemoryStore. maxPatterns > 0 bounds each
// archive, dropping the lowest-scoring entries on Save.
func NewMemoryStore(maxPatterns int) *MemoryStore {
	return &MemoryStore{
		archives:    make(map[models.TaskType]*Archive),
		maxPatterns: maxPatterns,
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, taskType models.TaskType) (*Archive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.archives[taskType]
	if !ok {
		return New(taskType), nil
	}
	return cloneArchive(stored), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, a *Archive) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.archives[a.TaskType]
	if !ok {
		stored = New(a.TaskType)
	}
	seen := make(map[string]bool, len(stored.Entries))
	for _, e := range stored.Entries {
		seen[e.Pattern.ID] = true
	}
	for _, e := range a.Entries {
		if seen[e.Pattern.ID] {
			continue
		}
		seen[e.Pattern.ID] = true
		stored.Entries = append(stored.Entries, cloneEntry(e))
	}

	m.archives[a.TaskType] = trim(stored, m.maxPatterns)
	return nil
}

// TaskTypes returns the task types with at least one stored pattern.
func (m *MemoryStore) TaskTypes(_ context.Context) ([]models.TaskType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]models.TaskType, 0, len(m.archives))
	for tt, a := range m.archives {
		if len(a.Entries) > 0 {
			types = append(types, tt)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types, nil
}

// trim keeps the max highest-scoring entries, preserving insertion order.
func trim(a *Archive, max int) *Archive {
	if max <= 0 || len(a.Entries) <= max {
		return a
	}

	idx := make([]int, len(a.Entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return a.Entries[idx[i]].Score > a.Entries[idx[j]].Score
	})
	keep := make(map[int]bool, max)
	for _, i := range idx[:max] {
		keep[i] = true
	}

	out := New(a.TaskType)
	for i, e := range a.Entries {
		if keep[i] {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

func cloneArchive(a *Archive) *Archive {
	out := &Archive{TaskType: a.TaskType, Entries: make([]Entry, len(a.Entries))}
	for i, e := range a.Entries {
		out.Entries[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e Entry) Entry {
	p := e.Pattern
	p.Steps = make([]models.DecompStep, len(e.Pattern.Steps))
	for i, s := range e.Pattern.Steps {
		s.ToolHints = append([]string(nil), s.ToolHints...)
		s.Dependencies = append([]string(nil), s.Dependencies...)
		p.Steps[i] = s
	}
	return Entry{Pattern: p, Score: e.Score}
}
