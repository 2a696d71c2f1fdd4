package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	"google.golang.org/api/option"
)

// Gemini calls the Google Generative Language API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client. The caller owns Close.
func NewGemini(ctx context.Context, s Settings) (*Gemini, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrInvalidSettings)
	}
	opts := []option.ClientOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(s.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", ErrTransport, err)
	}
	return &Gemini{client: client, model: s.Model}, nil
}

func (c *Gemini) Provider() string { return ProviderGemini }
func (c *Gemini) Model() string    { return c.model }

// Close releases the underlying connection.
func (c *Gemini) Close() error { return c.client.Close() }

// Complete implements Client.
func (c *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	gm := c.client.GenerativeModel(c.model)
	gm.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		return Response{}, fmt.Errorf("%w: gemini: %w", ErrTransport, err)
	}

	out := Response{Model: c.model, Provider: ProviderGemini}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = model.Usage{
			InputTokens:       int(u.PromptTokenCount),
			CachedInputTokens: int(u.CachedContentTokenCount),
			OutputTokens:      int(u.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, fmt.Errorf("%w: no candidates in gemini response", ErrEmptyResponse)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	out.Text = b.String()
	return out, nil
}
