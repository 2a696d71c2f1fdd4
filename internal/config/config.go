// Package config defines service configuration and its loading.
//
// Conventions:
//   - New(ctx) returns a Config populated with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and LEM_* env vars.
//   - Keys are flat snake_case names matching the koanf struct tags.
package config

import (
	"context"
	"runtime"
	"time"
)

// ModelPrice holds per-million-token prices for one model family.
type ModelPrice struct {
	InputPer1M       float64 `koanf:"input_per_1m"`
	CachedInputPer1M float64 `koanf:"cached_input_per_1m"`
	OutputPer1M      float64 `koanf:"output_per_1m"`
	IsReasoning      bool    `koanf:"is_reasoning"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`
	// RequestTimeout bounds one full assessment run.
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// FrontendDir holds a built web client served at "/". Empty serves the
	// embedded landing page.
	FrontendDir string `koanf:"frontend_dir"`

	// LLMProvider selects the model backend: openai, anthropic or gemini.
	LLMProvider string `koanf:"llm_provider"`
	// LLMModel is the model name sent to the provider.
	LLMModel string `koanf:"llm_model"`
	// LLMTimeout bounds a single model call.
	LLMTimeout time.Duration `koanf:"llm_timeout"`

	// OpenAIBaseURL points at OpenAI or any compatible server (vLLM).
	OpenAIBaseURL string `koanf:"openai_base_url"`
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	// OpenAIMaxTokensParam is "max_tokens" or "max_completion_tokens".
	OpenAIMaxTokensParam string `koanf:"openai_max_tokens_param"`
	// OpenAIOmitTemperature drops the temperature field for deployments that reject it.
	OpenAIOmitTemperature bool `koanf:"openai_omit_temperature"`

	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	GeminiAPIKey    string `koanf:"gemini_api_key"`

	// StorageType selects where rubric and prompt records live: local or s3.
	StorageType string `koanf:"storage_type"`
	// DataDir is the root for local storage.
	DataDir string `koanf:"data_dir"`

	S3Bucket          string `koanf:"s3_bucket"`
	S3Region          string `koanf:"s3_region"`
	S3Prefix          string `koanf:"s3_prefix"`
	S3AccessKeyID     string `koanf:"s3_access_key_id"`
	S3SecretAccessKey string `koanf:"s3_secret_access_key"`

	// SinkType selects result persistence: memory, sqlite or postgres.
	SinkType       string `koanf:"sink_type"`
	SQLitePath     string `koanf:"sqlite_path"`
	PostgresDSN    string `koanf:"postgres_dsn"`
	MemorySinkSize int    `koanf:"memory_sink_size"`

	// ReloadSchedule is a cron spec for re-reading rubric and prompt records.
	// Empty disables the job.
	ReloadSchedule string `koanf:"reload_schedule"`

	// Deployment, when set, is attached to every metric as a constant label.
	Deployment       string `koanf:"deployment"`
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsLatencyBuckets overrides the latency histogram buckets in
	// milliseconds. Values must be positive and increasing.
	MetricsLatencyBuckets []float64 `koanf:"metrics_latency_buckets"`

	CalibrationWorkers   int    `koanf:"calibration_workers"`
	CalibrationQueueSize int    `koanf:"calibration_queue_size"`
	SlackWebhookURL      string `koanf:"slack_webhook_url"`

	// Pricing maps a model key to its prices. Lookup also matches "<key>-" prefixes.
	Pricing               map[string]ModelPrice `koanf:"pricing"`
	EstimatedInputTokens  int                   `koanf:"estimated_input_tokens"`
	EstimatedOutputTokens int                   `koanf:"estimated_output_tokens"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":8000",
		RequestTimeout:       5 * time.Minute,
		LLMProvider:          "openai",
		LLMModel:             "gpt-4o-mini",
		LLMTimeout:           90 * time.Second,
		OpenAIBaseURL:        "https://api.openai.com/v1",
		OpenAIMaxTokensParam: "max_tokens",
		StorageType:          "local",
		DataDir:              "data",
		S3Region:             "eu-central-1",
		S3Prefix:             "lem",
		SinkType:             "memory",
		SQLitePath:           "data/lem.db",
		MemorySinkSize:       1000,
		MetricsNamespace:     "lem",
		MetricsSubsystem:     "assessment",
		CalibrationWorkers:   runtime.NumCPU(),
		CalibrationQueueSize: 1000,
		Pricing: map[string]ModelPrice{
			"gpt-4o-mini":  {InputPer1M: 0.15, CachedInputPer1M: 0.075, OutputPer1M: 0.60},
			"gpt-4o":       {InputPer1M: 2.50, CachedInputPer1M: 1.25, OutputPer1M: 10.00},
			"gpt-4.1-mini": {InputPer1M: 0.40, CachedInputPer1M: 0.10, OutputPer1M: 1.60},
			"gpt-4.1":      {InputPer1M: 2.00, CachedInputPer1M: 0.50, OutputPer1M: 8.00},
			"o4-mini":      {InputPer1M: 1.10, CachedInputPer1M: 0.275, OutputPer1M: 4.40, IsReasoning: true},
		},
		EstimatedInputTokens:  10000,
		EstimatedOutputTokens: 8100,
	}
}
