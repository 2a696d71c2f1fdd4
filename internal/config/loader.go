package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "LEM_"
	envFileVar = "LEM_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if LEM_CONFIG is set
//  3. env (prefix LEM_), e.g. LEM_LLM_MODEL -> llm_model
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.LLMProvider) {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("%w: unknown llm_provider %q", ErrInvalidConfig, c.LLMProvider)
	}
	if strings.TrimSpace(c.LLMModel) == "" {
		return fmt.Errorf("%w: llm_model must not be empty", ErrInvalidConfig)
	}
	switch c.OpenAIMaxTokensParam {
	case "max_tokens", "max_completion_tokens":
	default:
		return fmt.Errorf("%w: openai_max_tokens_param must be max_tokens or max_completion_tokens", ErrInvalidConfig)
	}

	switch c.StorageType {
	case "local":
		if c.DataDir == "" {
			return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3_bucket is required for s3 storage", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_type %q", ErrInvalidConfig, c.StorageType)
	}

	switch c.SinkType {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn is required for postgres sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink_type %q", ErrInvalidConfig, c.SinkType)
	}

	for i, b := range c.MetricsLatencyBuckets {
		if b <= 0 || (i > 0 && b <= c.MetricsLatencyBuckets[i-1]) {
			return fmt.Errorf("%w: metrics_latency_buckets must be positive and increasing", ErrInvalidConfig)
		}
	}
	return nil
}
