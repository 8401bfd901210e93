// Package decompose turns raw LLM output into structured subtasks and
// screens that output for anything unsafe before the planner trusts it.
package decompose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// DefaultMaxSubtasks is the most subtasks accepted from one decomposition.
const DefaultMaxSubtasks = 4

// Subtask is one child produced by decomposing a node.
type Subtask struct {
	Description  string
	Dependencies []string
	Profile      models.Profile
	// ToolHints name specific tools such as write_file or git_commit.
	ToolHints  []string
	HighStakes bool
}

// rawSubtask is the JSON structure returned by the model for a single subtask.
type rawSubtask struct {
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	Profile      string   `json:"profile"`
	ToolHints    []string `json:"tool_hints"`
	HighStakes   bool     `json:"high_stakes"`
}

// extractArray returns the outermost JSON array in response.
func extractArray(response string) (string, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end <= start {
		preview := response
		if len(preview) > 200 {
			preview = preview[:200] + "... (truncated)"
		}
		return "", fmt.Errorf("no valid JSON array found in response (got %d chars): %q", len(response), preview)
	}
	return response[start : end+1], nil
}

func decodeSubtasks(response string) ([]rawSubtask, error) {
	jsonStr, err := extractArray(response)
	if err != nil {
		return nil, err
	}
	var raw []rawSubtask
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return raw, nil
}

// ParseSubtasks parses the model's JSON response into at most maxSubtasks
// subtasks. Entries with an empty description are skipped. Unknown
// profiles become ProfileAll, and dependencies that do not name another
// returned subtask are dropped. An empty result is not an error.
func ParseSubtasks(response string, maxSubtasks int) ([]Subtask, error) {
	raw, err := decodeSubtasks(response)
	if err != nil {
		return nil, err
	}
	if maxSubtasks <= 0 {
		maxSubtasks = DefaultMaxSubtasks
	}

	var subtasks []Subtask
	for _, r := range raw {
		desc := strings.TrimSpace(r.Description)
		if desc == "" {
			continue
		}
		profile := models.Profile(strings.ToLower(strings.TrimSpace(r.Profile)))
		if !profile.Valid() {
			profile = models.ProfileAll
		}
		subtasks = append(subtasks, Subtask{
			Description:  desc,
			Dependencies: r.Dependencies,
			Profile:      profile,
			ToolHints:    normalizeHints(r.ToolHints),
			HighStakes:   r.HighStakes,
		})
		if len(subtasks) == maxSubtasks {
			break
		}
	}

	known := make(map[string]bool, len(subtasks))
	for _, s := range subtasks {
		known[s.Description] = true
	}
	for i := range subtasks {
		var deps []string
		for _, d := range subtasks[i].Dependencies {
			d = strings.TrimSpace(d)
			if known[d] && d != subtasks[i].Description {
				deps = append(deps, d)
			}
		}
		subtasks[i].Dependencies = deps
	}

	if err := ValidateNoCycles(subtasks); err != nil {
		return nil, err
	}
	return subtasks, nil
}

func normalizeHints(hints []string) []string {
	var out []string
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// OrderByDependencies returns subtasks in an order where every subtask
// comes after the subtasks it depends on. Independent subtasks keep their
// original relative order. Subtasks left in a cycle are appended in their
// original order.
func OrderByDependencies(subtasks []Subtask) []Subtask {
	ordered := make([]Subtask, 0, len(subtasks))
	placed := make(map[string]bool, len(subtasks))
	done := make([]bool, len(subtasks))

	for len(ordered) < len(subtasks) {
		progressed := false
		for i, s := range subtasks {
			if done[i] {
				continue
			}
			ready := true
			for _, d := range s.Dependencies {
				if !placed[d] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			ordered = append(ordered, s)
			placed[s.Description] = true
			done[i] = true
			progressed = true
			break
		}
		if !progressed {
			for i, s := range subtasks {
				if !done[i] {
					ordered = append(ordered, s)
				}
			}
			break
		}
	}
	return ordered
}

// ValidateNoCycles checks that there are no circular dependencies among
// subtasks. Dependencies refer to subtasks by description.
func ValidateNoCycles(subtasks []Subtask) error {
	byDesc := make(map[string]Subtask, len(subtasks))
	for _, s := range subtasks {
		byDesc[s.Description] = s
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int)

	var visit func(desc string, path []string) error
	visit = func(desc string, path []string) error {
		switch state[desc] {
		case visited:
			return nil
		case visiting:
			start := 0
			for i, p := range path {
				if p == desc {
					start = i
					break
				}
			}
			cycle := append(path[start:], desc)
			return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
		}

		state[desc] = visiting
		if s, ok := byDesc[desc]; ok {
			for _, dep := range s.Dependencies {
				if err := visit(dep, append(path, desc)); err != nil {
					return err
				}
			}
		}
		state[desc] = visited
		return nil
	}

	for _, s := range subtasks {
		if state[s.Description] == unvisited {
			if err := visit(s.Description, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
