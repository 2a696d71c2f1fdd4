// Package llm adapts chat-completion providers to a single Client interface.
//
// Conventions:
//   - Complete sends one system and one user message and returns plain text.
//   - InputTokens in Usage always includes cached input tokens.
//   - Provider failures wrap ErrTransport so callers can tell them apart
//     from bad model output.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Output-length parameter names accepted by OpenAI-compatible servers.
const (
	MaxTokensParam           = "max_tokens"
	MaxCompletionTokensParam = "max_completion_tokens"
)

const defaultTimeout = 90 * time.Second

// Request is a single chat completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Response carries the model text and token usage.
type Response struct {
	Text     string
	Usage    model.Usage
	Model    string
	Provider string
}

// Client completes chat requests against one provider and model.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Provider() string
	Model() string
}

// Settings configures one provider client.
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint. For openai it points at any
	// compatible server such as vLLM.
	BaseURL string
	Timeout time.Duration
	// MaxTokensParam names the output-length field for openai.
	MaxTokensParam string
	// OmitTemperature drops temperature for openai deployments that reject it.
	OmitTemperature bool
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini}
}

// NormalizeProvider lower-cases and validates a provider name.
func NormalizeProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	for _, known := range Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, p)
}

// New builds an instrumented client for s.
func New(ctx context.Context, s Settings) (Client, error) {
	provider, err := NormalizeProvider(s.Provider)
	if err != nil {
		return nil, err
	}
	s.Provider = provider
	if strings.TrimSpace(s.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidSettings)
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}

	var c Client
	switch provider {
	case ProviderOpenAI:
		c, err = NewOpenAI(s)
	case ProviderAnthropic:
		c, err = NewAnthropic(s)
	case ProviderGemini:
		c, err = NewGemini(ctx, s)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(c), nil
}

// Instrument wraps c so every call records latency and token metrics.
func Instrument(c Client) Client {
	if _, ok := c.(*instrumented); ok {
		return c
	}
	return &instrumented{Client: c, log: logger.NamedOrNop("llm")}
}

type instrumented struct {
	Client
	log logger.Logger
}

func (i *instrumented) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := i.Client.Complete(ctx, req)
	elapsed := time.Since(start)
	metrics.RecordLLMLatency(i.Provider(), float64(elapsed.Milliseconds()))
	if err != nil {
		i.log.Warn(ctx, "completion failed",
			logger.String("provider", i.Provider()),
			logger.String("model", i.Model()),
			logger.Duration("latency", elapsed),
			logger.Error(err))
		return resp, err
	}
	metrics.RecordLLMTokens(i.Provider(), "input", resp.Usage.InputTokens)
	metrics.RecordLLMTokens(i.Provider(), "cached_input", resp.Usage.CachedInputTokens)
	metrics.RecordLLMTokens(i.Provider(), "output", resp.Usage.OutputTokens)
	i.log.Debug(ctx, "completion",
		logger.String("provider", i.Provider()),
		logger.String("model", resp.Model),
		logger.Int("chars", len(resp.Text)),
		logger.Int("tokens_in", resp.Usage.InputTokens),
		logger.Int("tokens_out", resp.Usage.OutputTokens),
		logger.Duration("latency", elapsed))
	return resp, nil
}
