package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/geodecomp/internal/archive"
	"github.com/ShayCichocki/geodecomp/internal/config"
	"github.com/ShayCichocki/geodecomp/internal/planner"
	"github.com/ShayCichocki/geodecomp/internal/tree"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

func TestConfigValueRoundTrip(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"anthropic.model", "claude-haiku-4-5-20251001"},
		{"anthropic.max_tokens", "8192"},
		{"anthropic.requests_per_minute", "120"},
		{"bedrock.enabled", "true"},
		{"defaults.priority", "high"},
		{"defaults.budget", "2.5"},
		{"defaults.context_limit", "50000"},
		{"planner.max_iterations", "10"},
		{"planner.max_subtasks", "3"},
		{"planner.red_flags", "flags.yaml"},
		{"voting.enabled", "false"},
		{"voting.mode", "exact"},
		{"voting.max_rounds", "5"},
		{"voting.base_temperature", "0.5"},
		{"voting.timeout", "30s"},
		{"archive.max_patterns", "50"},
		{"eval.path", "/tmp/evals.db"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := config.Default()
			if err := setConfigValue(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("setConfigValue(%q, %q) failed: %v", tt.key, tt.value, err)
			}
			got, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue(%q) failed: %v", tt.key, err)
			}
			if got != tt.value {
				t.Errorf("getConfigValue(%q) = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestSetConfigValue_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"defaults.priority", "urgent"},
		{"defaults.budget", "lots"},
		{"voting.mode", "loudest"},
		{"voting.timeout", "soon"},
		{"bedrock.enabled", "maybe"},
		{"anthropic.api_key", "not-a-key"},
		{"nope.key", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := setConfigValue(config.Default(), tt.key, tt.value); err == nil {
				t.Errorf("setConfigValue(%q, %q) should fail", tt.key, tt.value)
			}
		})
	}
}

func TestGetConfigValue_MasksAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	got, err := getConfigValue(cfg, "anthropic.api_key")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "abcdefghijkl") {
		t.Errorf("api key not masked: %q", got)
	}

	for _, key := range configKeys {
		if _, err := getConfigValue(cfg, key); err != nil {
			t.Errorf("listed key %q is not readable: %v", key, err)
		}
	}
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()

	p := resolvePaths(config.Default(), root)
	if p.Archive != filepath.Join(root, ".geodecomp", "patterns.db") {
		t.Errorf("Archive = %q", p.Archive)
	}
	if !strings.HasPrefix(p.Evals, root) {
		t.Errorf("Evals = %q, want a path under %q", p.Evals, root)
	}
	if !strings.HasPrefix(p.Signals, root) {
		t.Errorf("Signals = %q, want a path under %q", p.Signals, root)
	}
	if p.Log != "" {
		t.Errorf("Log = %q, want empty when not configured", p.Log)
	}

	cfg := config.Default()
	cfg.Archive.Path = "/data/patterns.db"
	cfg.Logging.Path = "/data/debug.log"
	p = resolvePaths(cfg, root)
	if p.Archive != "/data/patterns.db" || p.Log != "/data/debug.log" {
		t.Errorf("configured paths not kept: %+v", p)
	}
}

func TestRunContextFromFlags(t *testing.T) {
	reset := func() {
		runPriority, runPreference, runBudget, runContextLimit = "", "", 0, 0
	}
	t.Cleanup(reset)

	cfg := config.Default()
	cfg.Defaults.Priority = "low"

	tests := []struct {
		name       string
		priority   string
		preference string
		budget     float64
		want       planner.RunContext
		wantErr    bool
	}{
		{
			name: "config defaults",
			want: planner.RunContext{Priority: models.PriorityLow, Budget: 1.0, ContextLimit: 100000},
		},
		{
			name:     "priority flag wins",
			priority: "critical",
			budget:   3,
			want:     planner.RunContext{Priority: models.PriorityCritical, Budget: 3, ContextLimit: 100000},
		},
		{
			name:       "preference leaves priority open",
			preference: "quick prototype",
			want:       planner.RunContext{Preference: "quick prototype", Budget: 1.0, ContextLimit: 100000},
		},
		{
			name:     "unknown priority",
			priority: "urgent",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			runPriority, runPreference, runBudget = tt.priority, tt.preference, tt.budget

			got, err := runContextFromFlags(cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("runContextFromFlags failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("runContextFromFlags = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadArchives(t *testing.T) {
	ctx := context.Background()
	store := archive.NewMemoryStore(0)

	for i, tt := range []models.TaskType{models.TaskTypeImplement, models.TaskTypeDebug} {
		pattern := models.DecompositionPattern{
			ID:       string(tt) + "-1",
			TaskType: tt,
			Steps:    []models.DecompStep{{ID: "s1", Description: "{{task}}"}},
		}
		if err := store.Save(ctx, archive.Record(archive.New(tt), pattern, float64(i))); err != nil {
			t.Fatal(err)
		}
	}

	all, err := loadArchives(ctx, store, "")
	if err != nil {
		t.Fatalf("loadArchives failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 archives, got %d", len(all))
	}

	one, err := loadArchives(ctx, store, "debug")
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 1 || one[0].TaskType != models.TaskTypeDebug {
		t.Errorf("filtered archives = %+v", one)
	}

	none, err := loadArchives(ctx, store, "research")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("empty task type should be skipped, got %d archives", len(none))
	}
}

func TestRenderTree(t *testing.T) {
	root := &tree.Node{ID: 0, Task: "Add login", Status: tree.StatusDecomposed}
	root.Children = []*tree.Node{
		{ID: 1, Task: "Write handler", Status: tree.StatusCompleted},
		{ID: 2, Task: "Migrate users table", Status: tree.StatusFailed, HighStakes: true},
	}

	out := renderTree(root)
	for _, want := range []string{"#0 Add login", "├── ", "#1 Write handler", "└── ", "#2 Migrate users table !", "[failed]"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderTree output missing %q:\n%s", want, out)
		}
	}
	if renderTree(nil) != "" {
		t.Error("renderTree(nil) should be empty")
	}
}

func TestRenderSummary(t *testing.T) {
	res := &planner.Result{
		RunID:      "run-1",
		Success:    false,
		Stopped:    true,
		Strategy:   planner.StrategyReplay,
		StrategyOK: false,
		TaskType:   models.TaskTypeImplement,
		Priority:   models.PriorityHigh,
		Results: []planner.LeafResult{
			{NodeID: 1, OK: true},
			{NodeID: 2, OK: false},
		},
		ReplayedPatternID: "p-1",
		Duration:          1500 * time.Millisecond,
	}

	out := renderSummary(res, nil)
	for _, want := range []string{"FAILED", "(stopped)", "run-1", "1/2 succeeded", "replay of p-1 (incomplete)", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderSummary output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 8, "this is…"},
		{"two\nlines", 20, "two lines"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
