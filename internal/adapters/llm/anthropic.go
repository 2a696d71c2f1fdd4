package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
)

const defaultAnthropicMaxTokens = 4096

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a Messages API client.
func NewAnthropic(s Settings) (*Anthropic, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, fmt.Errorf("%w: anthropic api key is required", ErrInvalidSettings)
	}
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Timeout))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), model: s.Model}, nil
}

func (c *Anthropic) Provider() string { return ProviderAnthropic }
func (c *Anthropic) Model() string    { return c.model }

// Complete implements Client.
func (c *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("%w: anthropic: %w", ErrTransport, err)
	}

	cached := int(message.Usage.CacheReadInputTokens)
	usage := model.Usage{
		InputTokens:       int(message.Usage.InputTokens+message.Usage.CacheCreationInputTokens) + cached,
		CachedInputTokens: cached,
		OutputTokens:      int(message.Usage.OutputTokens),
	}
	out := Response{Usage: usage, Model: string(message.Model), Provider: ProviderAnthropic}
	if out.Model == "" {
		out.Model = c.model
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			out.Text = block.Text
			return out, nil
		}
	}
	return out, fmt.Errorf("%w: no text content in anthropic response", ErrEmptyResponse)
}
