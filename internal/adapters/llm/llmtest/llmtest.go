// Package llmtest provides a canned llm.Client that answers every pipeline
// stage with well-formed output, for tests of the layers above the pipeline.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Tokens reported for every call.
const (
	InputTokens  = 1000
	OutputTokens = 100
)

// Client answers by module, recognised from the system prompt. Section and
// dimension keys of every default competency are included in each answer,
// so one Client serves all competencies.
type Client struct {
	mu    sync.Mutex
	score string
	parse string
	fail  map[types.Module]error
	calls map[types.Module]int
}

// New returns a Client that scores every dimension 0.75.
func New() *Client {
	return &Client{
		score: "0.75",
		fail:  map[types.Module]error{},
		calls: map[types.Module]int{},
	}
}

// Score sets the raw reply of the score module.
func (c *Client) Score(reply string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.score = reply
	return c
}

// Parse sets the raw reply of the parse module. An empty reply restores
// the default, which fills every section.
func (c *Client) Parse(reply string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parse = reply
	return c
}

// Fail makes every call for m return err. A nil err clears it.
func (c *Client) Fail(m types.Module, err error) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, m)
	} else {
		c.fail[m] = err
	}
	return c
}

// Calls returns how often m was asked.
func (c *Client) Calls(m types.Module) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[m]
}

// Builder returns an llm.Builder whose clients report the requested
// provider and model and answer through c.
func (c *Client) Builder() llm.Builder {
	return func(_ context.Context, s llm.Settings) (llm.Client, error) {
		if s.Model == "" {
			return nil, fmt.Errorf("llmtest: empty model")
		}
		return &bound{c: c, provider: s.Provider, model: s.Model}, nil
	}
}

type bound struct {
	c        *Client
	provider string
	model    string
}

func (b *bound) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	text, err := b.c.answer(req)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{
		Text:     text,
		Usage:    model.Usage{InputTokens: InputTokens, OutputTokens: OutputTokens},
		Model:    b.model,
		Provider: b.provider,
	}, nil
}

func (b *bound) Provider() string { return b.provider }
func (b *bound) Model() string    { return b.model }

// ModuleOf maps a system prompt back to its module.
func ModuleOf(system string) types.Module {
	for _, m := range types.Modules() {
		if prompts.SystemPrompt(m) == system {
			return m
		}
	}
	return ""
}

func (c *Client) answer(req llm.Request) (string, error) {
	mod := ModuleOf(req.System)
	c.mu.Lock()
	c.calls[mod]++
	err := c.fail[mod]
	score, parse := c.score, c.parse
	c.mu.Unlock()
	if err != nil {
		return "", err
	}

	switch mod {
	case types.ModuleParse:
		if parse != "" {
			return parse, nil
		}
		out := map[string]string{}
		for _, comp := range defaults() {
			for _, k := range comp.SectionKeys() {
				out[k] = "Opis sekcji " + k + ": ustaliłem cel, termin i sposób raportowania postępów."
			}
		}
		return encode(out), nil
	case types.ModuleMap:
		out := map[string]any{}
		for _, comp := range defaults() {
			for _, k := range comp.DimensionKeys() {
				out[k] = map[string]any{
					"czy_obecny":           true,
					"znalezione_fragmenty": []string{"ustaliłem cel i termin"},
					"notatki":              "",
				}
			}
		}
		return encode(out), nil
	case types.ModuleScore:
		return score, nil
	case types.ModuleFeedback:
		return encode(map[string]any{
			"summary":         strings.TrimSpace(strings.Repeat("Menedżer jasno określa cel i oczekiwany rezultat zadania. ", 8)),
			"recommendation":  "Warto regularnie sprawdzać zrozumienie zadania i ustalać punkty kontrolne z pracownikiem.",
			"mocne_strony":    []string{"Jasny cel"},
			"obszary_rozwoju": []string{"Monitorowanie postępów"},
		}), nil
	}
	return "", fmt.Errorf("%w: unrecognised system prompt", llm.ErrTransport)
}

func defaults() []*rubric.Competency {
	var out []*rubric.Competency
	for _, id := range types.Competencies() {
		if c, err := rubric.Default(id); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
