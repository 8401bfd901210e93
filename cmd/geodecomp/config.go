package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/geodecomp/internal/config"
	"github.com/ShayCichocki/geodecomp/internal/voting"
	"github.com/ShayCichocki/geodecomp/pkg/models"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify geodecomp configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/geodecomp/config.yaml
Project-specific overrides can be placed in .geodecomp.yaml`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// configKeys lists every key in display order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.max_tokens",
	"anthropic.requests_per_minute",
	"bedrock.enabled",
	"bedrock.region",
	"bedrock.profile",
	"defaults.priority",
	"defaults.budget",
	"defaults.context_limit",
	"planner.max_iterations",
	"planner.max_subtasks",
	"planner.red_flags",
	"planner.signals_dir",
	"voting.enabled",
	"voting.mode",
	"voting.max_rounds",
	"voting.base_temperature",
	"voting.timeout",
	"archive.path",
	"archive.max_patterns",
	"eval.path",
	"logging.path",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Printf("%s: %s\n", key, value)
	}
	if _, source, err := config.ResolveAPIKey(cfg); err == nil {
		fmt.Printf("# api key source: %s\n", source)
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	if strings.ToLower(key) == "anthropic.api_key" {
		value = config.MaskAPIKey(value)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.max_tokens":
		return strconv.FormatInt(cfg.Anthropic.MaxTokens, 10), nil
	case "anthropic.requests_per_minute":
		return strconv.Itoa(cfg.Anthropic.RequestsPerMinute), nil
	case "bedrock.enabled":
		return strconv.FormatBool(cfg.Bedrock.Enabled), nil
	case "bedrock.region":
		return cfg.Bedrock.Region, nil
	case "bedrock.profile":
		return cfg.Bedrock.Profile, nil
	case "defaults.priority":
		return cfg.Defaults.Priority, nil
	case "defaults.budget":
		return strconv.FormatFloat(cfg.Defaults.Budget, 'f', -1, 64), nil
	case "defaults.context_limit":
		return strconv.Itoa(cfg.Defaults.ContextLimit), nil
	case "planner.max_iterations":
		return strconv.Itoa(cfg.Planner.MaxIterations), nil
	case "planner.max_subtasks":
		return strconv.Itoa(cfg.Planner.MaxSubtasks), nil
	case "planner.red_flags":
		return cfg.Planner.RedFlags, nil
	case "planner.signals_dir":
		return cfg.Planner.SignalsDir, nil
	case "voting.enabled":
		return strconv.FormatBool(cfg.Voting.Enabled), nil
	case "voting.mode":
		return cfg.Voting.Mode, nil
	case "voting.max_rounds":
		return strconv.Itoa(cfg.Voting.MaxRounds), nil
	case "voting.base_temperature":
		return strconv.FormatFloat(cfg.Voting.BaseTemperature, 'f', -1, 64), nil
	case "voting.timeout":
		return cfg.Voting.Timeout.String(), nil
	case "archive.path":
		return cfg.Archive.Path, nil
	case "archive.max_patterns":
		return strconv.Itoa(cfg.Archive.MaxPatterns), nil
	case "eval.path":
		return cfg.Eval.Path, nil
	case "logging.path":
		return cfg.Logging.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for anthropic.max_tokens: %w", err)
		}
		cfg.Anthropic.MaxTokens = n
	case "anthropic.requests_per_minute":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for anthropic.requests_per_minute: %w", err)
		}
		cfg.Anthropic.RequestsPerMinute = n
	case "bedrock.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for bedrock.enabled: %w", err)
		}
		cfg.Bedrock.Enabled = b
	case "bedrock.region":
		cfg.Bedrock.Region = value
	case "bedrock.profile":
		cfg.Bedrock.Profile = value
	case "defaults.priority":
		p, ok := models.ParsePriority(value)
		if !ok {
			return fmt.Errorf("invalid priority %q (use low, normal, high or critical)", value)
		}
		cfg.Defaults.Priority = string(p)
	case "defaults.budget":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for defaults.budget: %w", err)
		}
		cfg.Defaults.Budget = f
	case "defaults.context_limit":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for defaults.context_limit: %w", err)
		}
		cfg.Defaults.ContextLimit = n
	case "planner.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for planner.max_iterations: %w", err)
		}
		cfg.Planner.MaxIterations = n
	case "planner.max_subtasks":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for planner.max_subtasks: %w", err)
		}
		cfg.Planner.MaxSubtasks = n
	case "planner.red_flags":
		cfg.Planner.RedFlags = value
	case "planner.signals_dir":
		cfg.Planner.SignalsDir = value
	case "voting.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for voting.enabled: %w", err)
		}
		cfg.Voting.Enabled = b
	case "voting.mode":
		m, err := voting.ParseMode(value)
		if err != nil {
			return err
		}
		cfg.Voting.Mode = string(m)
	case "voting.max_rounds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for voting.max_rounds: %w", err)
		}
		cfg.Voting.MaxRounds = n
	case "voting.base_temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for voting.base_temperature: %w", err)
		}
		cfg.Voting.BaseTemperature = f
	case "voting.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for voting.timeout: %w", err)
		}
		cfg.Voting.Timeout = d
	case "archive.path":
		cfg.Archive.Path = value
	case "archive.max_patterns":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for archive.max_patterns: %w", err)
		}
		cfg.Archive.MaxPatterns = n
	case "eval.path":
		cfg.Eval.Path = value
	case "logging.path":
		cfg.Logging.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
