package service

import (
	"context"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	storage "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/storage"
	"github.com/katarzynaochnikdu/LEM-V1/internal/config"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type:        storage.Type(cfg.StorageType),
		LocalPath:   cfg.DataDir,
		S3Bucket:    cfg.S3Bucket,
		S3Region:    cfg.S3Region,
		S3Prefix:    cfg.S3Prefix,
		S3AccessKey: cfg.S3AccessKeyID,
		S3SecretKey: cfg.S3SecretAccessKey,
	}
}

// llmSettings returns the configured selection and the per-provider
// defaults used when the selection is switched at runtime.
func llmSettings(cfg *config.Config) (llm.Settings, map[string]llm.Settings) {
	base := map[string]llm.Settings{
		llm.ProviderOpenAI: {
			Provider:        llm.ProviderOpenAI,
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			Timeout:         cfg.LLMTimeout,
			MaxTokensParam:  cfg.OpenAIMaxTokensParam,
			OmitTemperature: cfg.OpenAIOmitTemperature,
		},
		llm.ProviderAnthropic: {
			Provider: llm.ProviderAnthropic,
			APIKey:   cfg.AnthropicAPIKey,
			Timeout:  cfg.LLMTimeout,
		},
		llm.ProviderGemini: {
			Provider: llm.ProviderGemini,
			APIKey:   cfg.GeminiAPIKey,
			Timeout:  cfg.LLMTimeout,
		},
	}
	provider, err := llm.NormalizeProvider(cfg.LLMProvider)
	if err != nil {
		provider = cfg.LLMProvider
	}
	initial, ok := base[provider]
	if !ok {
		initial = llm.Settings{Provider: provider, Timeout: cfg.LLMTimeout}
	}
	initial.Model = cfg.LLMModel
	return initial, base
}

func priceTable(in map[string]config.ModelPrice) map[string]pricing.Price {
	out := make(map[string]pricing.Price, len(in))
	for model, p := range in {
		out[model] = pricing.Price{
			InputPer1M:       p.InputPer1M,
			CachedInputPer1M: p.CachedInputPer1M,
			OutputPer1M:      p.OutputPer1M,
			IsReasoning:      p.IsReasoning,
		}
	}
	return out
}

func openResults(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	log := logger.NamedOrNop("repository")
	switch cfg.SinkType {
	case "sqlite":
		log.Info(ctx, "using sqlite result store", logger.String("path", cfg.SQLitePath))
		return repository.NewSQLiteStore(ctx, cfg.SQLitePath, repository.WithLogger(log))
	case "postgres":
		log.Info(ctx, "using postgres result store")
		return repository.NewPostgresStore(ctx, cfg.PostgresDSN, repository.WithLogger(log))
	default:
		log.Info(ctx, "using in-memory result store", logger.Int("capacity", cfg.MemorySinkSize))
		return repository.NewMemoryStore(repository.WithCapacity(cfg.MemorySinkSize), repository.WithLogger(log)), nil
	}
}
