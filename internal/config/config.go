// Package config handles configuration loading and management for geodecomp.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Config holds all configuration for geodecomp.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Bedrock   BedrockConfig   `mapstructure:"bedrock"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Voting    VotingConfig    `mapstructure:"voting"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Eval      EvalConfig      `mapstructure:"eval"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
	// RequestsPerMinute caps API calls. Zero disables the limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// BedrockConfig routes model calls through AWS Bedrock.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// DefaultsConfig holds per-run defaults.
type DefaultsConfig struct {
	Priority     string  `mapstructure:"priority"`
	Budget       float64 `mapstructure:"budget"`
	ContextLimit int     `mapstructure:"context_limit"`
}

// PlannerConfig tunes the decomposition loop.
type PlannerConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	MaxSubtasks   int `mapstructure:"max_subtasks"`
	// RedFlags is an optional YAML file of extra red-flag rules.
	RedFlags string `mapstructure:"red_flags"`
	// SignalsDir is watched for a stop file during long runs.
	SignalsDir string `mapstructure:"signals_dir"`
}

// VotingConfig holds consensus voting settings.
type VotingConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Mode            string        `mapstructure:"mode"`
	MaxRounds       int           `mapstructure:"max_rounds"`
	BaseTemperature float64       `mapstructure:"base_temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig locates the pattern database.
type ArchiveConfig struct {
	Path        string `mapstructure:"path"`
	MaxPatterns int    `mapstructure:"max_patterns"`
}

// EvalConfig locates the eval database.
type EvalConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig locates the debug log. Empty disables it.
type LoggingConfig struct {
	Path string `mapstructure:"path"`
}

// Priority returns the configured default priority, or normal when unset
// or unknown.
func (c *Config) Priority() models.Priority {
	if p, ok := models.ParsePriority(c.Defaults.Priority); ok {
		return p
	}
	return models.PriorityNormal
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.geodecomp.yaml in current directory or parent)
// 3. User config (~/.config/geodecomp/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveToPath(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveToPath writes cfg to path.
func SaveToPath(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.requests_per_minute", cfg.Anthropic.RequestsPerMinute)
	v.Set("bedrock.enabled", cfg.Bedrock.Enabled)
	v.Set("bedrock.region", cfg.Bedrock.Region)
	v.Set("bedrock.profile", cfg.Bedrock.Profile)
	v.Set("defaults.priority", cfg.Defaults.Priority)
	v.Set("defaults.budget", cfg.Defaults.Budget)
	v.Set("defaults.context_limit", cfg.Defaults.ContextLimit)
	v.Set("planner.max_iterations", cfg.Planner.MaxIterations)
	v.Set("planner.max_subtasks", cfg.Planner.MaxSubtasks)
	v.Set("planner.red_flags", cfg.Planner.RedFlags)
	v.Set("planner.signals_dir", cfg.Planner.SignalsDir)
	v.Set("voting.enabled", cfg.Voting.Enabled)
	v.Set("voting.mode", cfg.Voting.Mode)
	v.Set("voting.max_rounds", cfg.Voting.MaxRounds)
	v.Set("voting.base_temperature", cfg.Voting.BaseTemperature)
	v.Set("voting.timeout", cfg.Voting.Timeout.String())
	v.Set("archive.path", cfg.Archive.Path)
	v.Set("archive.max_patterns", cfg.Archive.MaxPatterns)
	v.Set("eval.path", cfg.Eval.Path)
	v.Set("logging.path", cfg.Logging.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", d.Anthropic.APIKey)
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)
	v.SetDefault("anthropic.requests_per_minute", d.Anthropic.RequestsPerMinute)

	v.SetDefault("bedrock.enabled", d.Bedrock.Enabled)
	v.SetDefault("bedrock.region", d.Bedrock.Region)
	v.SetDefault("bedrock.profile", d.Bedrock.Profile)

	v.SetDefault("defaults.priority", d.Defaults.Priority)
	v.SetDefault("defaults.budget", d.Defaults.Budget)
	v.SetDefault("defaults.context_limit", d.Defaults.ContextLimit)

	v.SetDefault("planner.max_iterations", d.Planner.MaxIterations)
	v.SetDefault("planner.max_subtasks", d.Planner.MaxSubtasks)
	v.SetDefault("planner.red_flags", d.Planner.RedFlags)
	v.SetDefault("planner.signals_dir", d.Planner.SignalsDir)

	v.SetDefault("voting.enabled", d.Voting.Enabled)
	v.SetDefault("voting.mode", d.Voting.Mode)
	v.SetDefault("voting.max_rounds", d.Voting.MaxRounds)
	v.SetDefault("voting.base_temperature", d.Voting.BaseTemperature)
	v.SetDefault("voting.timeout", d.Voting.Timeout.String())

	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.max_patterns", d.Archive.MaxPatterns)
	v.SetDefault("eval.path", d.Eval.Path)
	v.SetDefault("logging.path", d.Logging.Path)
}

// getUserConfigDir returns the XDG config directory for geodecomp.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "geodecomp")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "geodecomp")
	}
	return filepath.Join(home, ".config", "geodecomp")
}

// findProjectConfig searches for .geodecomp.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".geodecomp.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values. Empty paths resolve to
// project-local files under .geodecomp/.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         4096,
			RequestsPerMinute: 50,
		},
		Bedrock: BedrockConfig{
			Region: "us-west-2",
		},
		Defaults: DefaultsConfig{
			Priority:     string(models.PriorityNormal),
			Budget:       1.0,
			ContextLimit: 100000,
		},
		Planner: PlannerConfig{
			MaxIterations: 50,
			MaxSubtasks:   4,
		},
		Voting: VotingConfig{
			Enabled:         true,
			Mode:            "normalized",
			MaxRounds:       3,
			BaseTemperature: 0.7,
			Timeout:         2 * time.Minute,
		},
		Archive: ArchiveConfig{
			MaxPatterns: 200,
		},
	}
}
