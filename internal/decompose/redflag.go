package decompose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Severity indicates how serious a red flag is.
type Severity int

const (
	// SeverityInfo indicates informational feedback.
	SeverityInfo Severity = iota
	// SeverityWarning indicates a potential problem.
	SeverityWarning
	// SeverityCritical rejects the response outright.
	SeverityCritical
)

// String returns a human-readable severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// FlagKind names the check that raised a flag.
type FlagKind string

const (
	FlagMalformed       FlagKind = "malformed_json"
	FlagEmpty           FlagKind = "empty"
	FlagTooMany         FlagKind = "too_many_subtasks"
	FlagEmptyDesc       FlagKind = "empty_description"
	FlagOversized       FlagKind = "oversized_description"
	FlagDangerous       FlagKind = "dangerous_command"
	FlagInjection       FlagKind = "prompt_injection"
	FlagProtectedPath   FlagKind = "protected_path"
	FlagUnknownProfile  FlagKind = "unknown_profile"
	FlagDependencyCycle FlagKind = "dependency_cycle"
)

// Flag is a single problem found in a model response.
type Flag struct {
	Kind     FlagKind
	Severity Severity
	// Subtask is the index of the offending subtask, or -1 for the whole response.
	Subtask int
	Message string
}

func (f Flag) String() string {
	if f.Subtask < 0 {
		return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Kind, f.Message)
	}
	return fmt.Sprintf("[%s] %s (subtask %d): %s", f.Severity, f.Kind, f.Subtask, f.Message)
}

// RedFlagConfig controls RedFlagResponse.
type RedFlagConfig struct {
	MaxSubtasks          int      `yaml:"max_subtasks"`
	MaxDescriptionLength int      `yaml:"max_description_length"`
	DangerousPhrases     []string `yaml:"dangerous_phrases"`
	InjectionPhrases     []string `yaml:"injection_phrases"`
	// ProtectedPatterns are globs (with ** support) for paths that make a
	// subtask high stakes when mentioned.
	ProtectedPatterns []string `yaml:"protected_patterns"`
	// ProtectedFileTypes are extensions that make a subtask high stakes.
	ProtectedFileTypes []string `yaml:"protected_file_types"`
}

// DefaultRedFlagConfig returns the built-in checks.
func DefaultRedFlagConfig() RedFlagConfig {
	return RedFlagConfig{
		MaxSubtasks:          DefaultMaxSubtasks,
		MaxDescriptionLength: 2000,
		DangerousPhrases: []string{
			"rm -rf /",
			"rm -rf ~",
			"rm -rf *",
			"git push --force",
			"git push -f",
			"git reset --hard",
			"drop table",
			"drop database",
			"truncate table",
			"mkfs",
			"dd if=",
			"chmod -r 777",
			"curl | sh",
			"curl | bash",
			"wget | sh",
			":(){ :|:& };:",
		},
		InjectionPhrases: []string{
			"ignore previous instructions",
			"ignore all previous instructions",
			"disregard the above",
			"you are now",
			"system prompt",
		},
		ProtectedPatterns: []string{
			"**/auth/**",
			"**/security/**",
			"**/migrations/**",
			"**/secrets/**",
			"**/credentials/**",
			"**/.ssh/**",
			"**/terraform/**",
			"**/k8s/**",
		},
		ProtectedFileTypes: []string{
			".sql",
			".tf",
			".pem",
			".key",
			".env",
			".p12",
			".crt",
		},
	}
}

// redFlagFile is the on-disk layout of extra red-flag rules.
type redFlagFile struct {
	RedFlags RedFlagConfig `yaml:"red_flags"`
}

// LoadRedFlagConfig extends cfg with rules from a YAML file containing a
// red_flags section. List entries are appended; positive limits override.
func LoadRedFlagConfig(cfg RedFlagConfig, path string) (RedFlagConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	var f redFlagFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return cfg, fmt.Errorf("parse red flag config: %w", err)
	}

	extra := f.RedFlags
	if extra.MaxSubtasks > 0 {
		cfg.MaxSubtasks = extra.MaxSubtasks
	}
	if extra.MaxDescriptionLength > 0 {
		cfg.MaxDescriptionLength = extra.MaxDescriptionLength
	}
	cfg.DangerousPhrases = append(append([]string{}, cfg.DangerousPhrases...), extra.DangerousPhrases...)
	cfg.InjectionPhrases = append(append([]string{}, cfg.InjectionPhrases...), extra.InjectionPhrases...)
	cfg.ProtectedPatterns = append(append([]string{}, cfg.ProtectedPatterns...), extra.ProtectedPatterns...)
	cfg.ProtectedFileTypes = append(append([]string{}, cfg.ProtectedFileTypes...), extra.ProtectedFileTypes...)
	return cfg, nil
}

// RedFlagResponse inspects a raw decomposition response and returns every
// problem found. The response is not modified.
func RedFlagResponse(raw string, cfg RedFlagConfig) []Flag {
	subtasks, err := decodeSubtasks(raw)
	if err != nil {
		return []Flag{{Kind: FlagMalformed, Severity: SeverityCritical, Subtask: -1, Message: err.Error()}}
	}
	if len(subtasks) == 0 {
		return []Flag{{Kind: FlagEmpty, Severity: SeverityWarning, Subtask: -1, Message: "no subtasks returned"}}
	}

	var flags []Flag
	if cfg.MaxSubtasks > 0 && len(subtasks) > cfg.MaxSubtasks {
		flags = append(flags, Flag{
			Kind:     FlagTooMany,
			Severity: SeverityWarning,
			Subtask:  -1,
			Message:  fmt.Sprintf("%d subtasks returned, only the first %d are used", len(subtasks), cfg.MaxSubtasks),
		})
	}

	for i, s := range subtasks {
		flags = append(flags, checkSubtask(i, s, cfg)...)
	}

	parsed := make([]Subtask, 0, len(subtasks))
	for _, s := range subtasks {
		parsed = append(parsed, Subtask{Description: strings.TrimSpace(s.Description), Dependencies: s.Dependencies})
	}
	if err := ValidateNoCycles(parsed); err != nil {
		flags = append(flags, Flag{Kind: FlagDependencyCycle, Severity: SeverityCritical, Subtask: -1, Message: err.Error()})
	}

	return flags
}

func checkSubtask(i int, s rawSubtask, cfg RedFlagConfig) []Flag {
	var flags []Flag
	desc := strings.TrimSpace(s.Description)
	lower := strings.ToLower(desc)

	if desc == "" {
		flags = append(flags, Flag{Kind: FlagEmptyDesc, Severity: SeverityWarning, Subtask: i, Message: "subtask has no description"})
	}
	if cfg.MaxDescriptionLength > 0 && len(desc) > cfg.MaxDescriptionLength {
		flags = append(flags, Flag{
			Kind:     FlagOversized,
			Severity: SeverityWarning,
			Subtask:  i,
			Message:  fmt.Sprintf("description is %d chars (max %d)", len(desc), cfg.MaxDescriptionLength),
		})
	}
	for _, phrase := range cfg.DangerousPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			flags = append(flags, Flag{Kind: FlagDangerous, Severity: SeverityCritical, Subtask: i, Message: "contains " + phrase})
		}
	}
	for _, phrase := range cfg.InjectionPhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			flags = append(flags, Flag{Kind: FlagInjection, Severity: SeverityCritical, Subtask: i, Message: "contains " + phrase})
		}
	}
	if p := s.Profile; p != "" && !models.Profile(strings.ToLower(p)).Valid() {
		flags = append(flags, Flag{Kind: FlagUnknownProfile, Severity: SeverityInfo, Subtask: i, Message: "unknown profile " + p})
	}
	if reason, ok := cfg.ProtectedReason(desc); ok {
		flags = append(flags, Flag{Kind: FlagProtectedPath, Severity: SeverityWarning, Subtask: i, Message: reason})
	}
	return flags
}

// CriticalFlags returns the flags that reject a response.
func CriticalFlags(flags []Flag) []Flag {
	var critical []Flag
	for _, f := range flags {
		if f.Severity == SeverityCritical {
			critical = append(critical, f)
		}
	}
	return critical
}

// ProtectedReason reports whether text mentions a protected path and why.
func (cfg RedFlagConfig) ProtectedReason(text string) (string, bool) {
	for _, token := range pathTokens(text) {
		for _, pattern := range cfg.ProtectedPatterns {
			if matchGlob(token, pattern) {
				return "mentions " + token + " (matches " + pattern + ")", true
			}
		}
		ext := strings.ToLower(filepath.Ext(token))
		if ext == "" {
			continue
		}
		for _, protected := range cfg.ProtectedFileTypes {
			if ext == strings.ToLower(protected) {
				return "mentions " + token + " (protected file type " + protected + ")", true
			}
		}
	}
	return "", false
}

// MarkProtected sets HighStakes on every subtask that mentions a protected path.
func MarkProtected(subtasks []Subtask, cfg RedFlagConfig) {
	for i := range subtasks {
		if _, ok := cfg.ProtectedReason(subtasks[i].Description); ok {
			subtasks[i].HighStakes = true
		}
	}
}

// pathTokens returns the words of text that look like file paths.
func pathTokens(text string) []string {
	var tokens []string
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, "`'\"()[]{},;:")
		if strings.Contains(word, "/") || (strings.Contains(word, ".") && !strings.HasSuffix(word, ".")) {
			tokens = append(tokens, filepath.ToSlash(word))
		}
	}
	return tokens
}
