package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/phenotype"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

func newTestSQLiteStore(t *testing.T, maxPatterns int) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "nested", "patterns.db"), maxPatterns)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fullPattern(id string) models.DecompositionPattern {
	p := pattern(id, phenotype.Phenotype{Depth: 2, Breadth: 3, Cost: 0.25, ContextSize: 4200, SuccessRate: 1})
	p.Steps[1].HighStakes = true
	p.Stats = models.PatternStats{
		Uses:            2,
		DurationMs:      1500,
		Leaves:          2,
		SucceededLeaves: 2,
		CreatedAt:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return p
}

func TestStores_RoundTrip(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(0),
		"sqlite": newTestSQLiteStore(t, 0),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := store.Load(ctx, models.TaskTypeImplement)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if empty.Len() != 0 || empty.TaskType != models.TaskTypeImplement {
				t.Fatalf("Load(empty) = %+v", empty)
			}

			a := empty
			a = Record(a, fullPattern("p1"), 0.7)
			a = Record(a, fullPattern("p2"), 0.9)
			if err := store.Save(ctx, a); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			// Saving again must not duplicate entries.
			if err := store.Save(ctx, a); err != nil {
				t.Fatalf("Save() again error = %v", err)
			}

			got, err := store.Load(ctx, models.TaskTypeImplement)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Len() != 2 {
				t.Fatalf("Load() Len = %d, want 2", got.Len())
			}
			if got.Entries[0].Pattern.ID != "p1" || got.Entries[1].Pattern.ID != "p2" {
				t.Errorf("insertion order lost: %s, %s", got.Entries[0].Pattern.ID, got.Entries[1].Pattern.ID)
			}

			want := fullPattern("p1")
			e := got.Entries[0]
			if e.Score != 0.7 {
				t.Errorf("Score = %f, want 0.7", e.Score)
			}
			if e.Pattern.Phenotype != want.Phenotype {
				t.Errorf("Phenotype = %+v, want %+v", e.Pattern.Phenotype, want.Phenotype)
			}
			if e.Pattern.Stats.Uses != 2 || e.Pattern.Stats.DurationMs != 1500 ||
				!e.Pattern.Stats.CreatedAt.Equal(want.Stats.CreatedAt) {
				t.Errorf("Stats = %+v", e.Pattern.Stats)
			}
			if len(e.Pattern.Steps) != 2 || e.Pattern.Steps[1].Dependencies[0] != "step-2" || !e.Pattern.Steps[1].HighStakes {
				t.Errorf("Steps = %+v", e.Pattern.Steps)
			}

			other, err := store.Load(ctx, models.TaskTypeDebug)
			if err != nil || other.Len() != 0 {
				t.Errorf("Load(debug) = %+v, %v; want empty", other, err)
			}
		})
	}
}

func TestStores_TrimLowestScores(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemoryStore(2),
		"sqlite": newTestSQLiteStore(t, 2),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := New(models.TaskTypeImplement)
			a = Record(a, fullPattern("low"), 0.1)
			a = Record(a, fullPattern("high"), 0.9)
			a = Record(a, fullPattern("mid"), 0.5)
			if err := store.Save(ctx, a); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := store.Load(ctx, models.TaskTypeImplement)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Len() != 2 {
				t.Fatalf("Len() = %d, want 2", got.Len())
			}
			if got.Entries[0].Pattern.ID != "high" || got.Entries[1].Pattern.ID != "mid" {
				t.Errorf("kept %s, %s; want high, mid", got.Entries[0].Pattern.ID, got.Entries[1].Pattern.ID)
			}
		})
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	if err := store.Save(ctx, Record(New(models.TaskTypeImplement), fullPattern("p1"), 1)); err != nil {
		t.Fatal(err)
	}

	a, _ := store.Load(ctx, models.TaskTypeImplement)
	a.Entries[0].Pattern.Steps[0].Description = "changed"

	b, _ := store.Load(ctx, models.TaskTypeImplement)
	if b.Entries[0].Pattern.Steps[0].Description == "changed" {
		t.Error("Load() leaked internal state")
	}
}

func TestSQLiteStore_ReopenAndGet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patterns.db")

	s, err := OpenSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	if err := s.Save(ctx, Record(New(models.TaskTypeRefactor), fullPattern("r1"), 0.4)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	s.Close()

	// Reopening must not re-run migrations or lose data.
	s, err = OpenSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
	e, ok, err := s.Get(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("Get(r1) = %v, %v", ok, err)
	}
	if e.Pattern.TaskType != models.TaskTypeRefactor {
		t.Errorf("TaskType = %q, want the archive's task type", e.Pattern.TaskType)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("Get(missing) should be false")
	}

	types, err := s.TaskTypes(ctx)
	if err != nil || len(types) != 1 || types[0] != models.TaskTypeRefactor {
		t.Errorf("TaskTypes() = %v, %v", types, err)
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath("/repo")
	if got != filepath.Join("/repo", ".geodecomp", "patterns.db") {
		t.Errorf("DefaultPath() = %q", got)
	}
}

func TestExportImportYAML(t *testing.T) {
	a := Record(New(models.TaskTypeImplement), fullPattern("p1"), 0.75)
	d := Record(New(models.TaskTypeDebug), fullPattern("d1"), 0.5)

	var buf bytes.Buffer
	if err := ExportYAML(&buf, a, d); err != nil {
		t.Fatalf("ExportYAML() error = %v", err)
	}
	if !strings.Contains(buf.String(), "task_type: implement") {
		t.Errorf("export missing task type:\n%s", buf.String())
	}

	got, err := ImportYAML(&buf)
	if err != nil {
		t.Fatalf("ImportYAML() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("imported %d archives, want 2", len(got))
	}
	if got[0].TaskType != models.TaskTypeImplement || got[0].Entries[0].Score != 0.75 {
		t.Errorf("archive 0 = %+v", got[0])
	}
	if got[1].Entries[0].Pattern.Steps[0].Description != "design {{task}}" {
		t.Errorf("steps not preserved: %+v", got[1].Entries[0].Pattern.Steps)
	}
}

func TestImportYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad version", "version: 9\narchives: []\n"},
		{"missing task type", "version: 1\narchives:\n  - entries: []\n"},
		{"missing pattern id", "version: 1\narchives:\n  - task_type: debug\n    entries:\n      - score: 1\n"},
		{"not yaml", "version: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ImportYAML(strings.NewReader(tt.doc)); err == nil {
				t.Error("ImportYAML() should fail")
			}
		})
	}
}

func TestImportYAML_InheritsTaskType(t *testing.T) {
	doc := "version: 1\narchives:\n  - task_type: debug\n    entries:\n      - score: 1\n        pattern:\n          id: x\n"
	got, err := ImportYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ImportYAML() error = %v", err)
	}
	if got[0].Entries[0].Pattern.TaskType != models.TaskTypeDebug {
		t.Errorf("TaskType = %q, want debug", got[0].Entries[0].Pattern.TaskType)
	}
}

func TestOpenSQLiteStore_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenSQLiteStore(filepath.Join(blocker, "sub", "patterns.db"), 0); err == nil {
		t.Error("OpenSQLiteStore() under a regular file should fail")
	}
}
