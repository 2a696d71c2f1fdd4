package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// Model name prefixes that reject temperature and max_tokens.
var reasoningPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// IsReasoningModel reports whether name belongs to a reasoning model family.
func IsReasoningModel(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	for _, p := range reasoningPrefixes {
		if name == p || strings.HasPrefix(name, p+"-") {
			return true
		}
	}
	return false
}

// OpenAI talks to an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	http            *http.Client
	baseURL         string
	apiKey          string
	model           string
	maxTokensParam  string
	omitTemperature bool
}

// NewOpenAI creates an OpenAI-compatible client. An empty API key is allowed
// for local servers.
func NewOpenAI(s Settings) (*OpenAI, error) {
	param := s.MaxTokensParam
	switch param {
	case "":
		param = MaxTokensParam
	case MaxTokensParam, MaxCompletionTokensParam:
	default:
		return nil, fmt.Errorf("%w: max tokens param %q", ErrInvalidSettings, param)
	}
	reasoning := IsReasoningModel(s.Model)
	if reasoning {
		param = MaxCompletionTokensParam
	}
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAI{
		http:            &http.Client{Timeout: timeout},
		baseURL:         base,
		apiKey:          s.APIKey,
		model:           s.Model,
		maxTokensParam:  param,
		omitTemperature: s.OmitTemperature || reasoning,
	}, nil
}

func (c *OpenAI) Provider() string { return ProviderOpenAI }
func (c *OpenAI) Model() string    { return c.model }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements Client.
func (c *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if req.MaxTokens > 0 {
		body[c.maxTokensParam] = req.MaxTokens
	}
	if !c.omitTemperature {
		body["temperature"] = req.Temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("%w: creating request: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("%w: openai: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	var parsed openAIResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return Response{}, fmt.Errorf("%w: openai status %d: %s", ErrTransport, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return Response{}, fmt.Errorf("%w: parsing response: %v", ErrTransport, decodeErr)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("%w: openai: %s", ErrTransport, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: no choices in openai response", ErrEmptyResponse)
	}

	out := Response{
		Text:     parsed.Choices[0].Message.Content,
		Model:    c.model,
		Provider: ProviderOpenAI,
	}
	if parsed.Model != "" {
		out.Model = parsed.Model
	}
	if u := parsed.Usage; u != nil {
		out.Usage = model.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
		if u.PromptTokensDetails != nil {
			out.Usage.CachedInputTokens = u.PromptTokensDetails.CachedTokens
		}
	}
	return out, nil
}
