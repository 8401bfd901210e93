package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/geodecomp/internal/config"
	"github.com/ShayCichocki/geodecomp/internal/llm"
)

// createClient builds the model client described by cfg.
func createClient(cfg *config.Config) (*llm.Client, error) {
	key, source, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	if source != config.KeySourceBedrock {
		if err := config.ValidateAPIKey(key); err != nil {
			return nil, err
		}
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:             anthropic.Model(cfg.Anthropic.Model),
		APIKey:            key,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		UseAWSBedrock:     cfg.Bedrock.Enabled,
		AWSRegion:         cfg.Bedrock.Region,
		AWSProfile:        cfg.Bedrock.Profile,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}
