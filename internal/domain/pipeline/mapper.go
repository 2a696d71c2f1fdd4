package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	extract "github.com/katarzynaochnikdu/LEM-V1/internal/domain/extract"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// MaxQuotes caps quotations kept per dimension.
const MaxQuotes = 2

// Mapper extracts per-dimension evidence from a structured response.
type Mapper struct {
	client     llm.Client
	prompt     prompts.PromptVersion
	competency *rubric.Competency
}

// NewMapper builds a Mapper.
func NewMapper(client llm.Client, prompt prompts.PromptVersion, c *rubric.Competency) *Mapper {
	return &Mapper{client: client, prompt: prompt, competency: c}
}

// SectionsText joins non-empty sections under upper-cased headers.
func SectionsText(p model.ParsedResponse) string {
	keys := p.Keys
	if len(keys) == 0 {
		keys = make([]string, 0, len(p.Sections))
		for k := range p.Sections {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := p.Sections[k]
		if v == "" {
			continue
		}
		header := strings.ToUpper(strings.ReplaceAll(k, "_", " "))
		parts = append(parts, header+":\n"+v)
	}
	return strings.Join(parts, "\n\n")
}

// Render fills the map template for p.
func (m *Mapper) Render(p model.ParsedResponse) (string, error) {
	var b strings.Builder
	for i, d := range m.competency.Dimensions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s - %s", d.Key, d.Name, strings.TrimSpace(d.Description))
	}
	return m.prompt.Render(map[string]string{
		"parsed_response": SectionsText(p),
		"wymiary":         b.String(),
	})
}

// Map asks the model for evidence and reads it back for every rubric
// dimension. Dimensions the model omits are marked absent.
func (m *Mapper) Map(ctx context.Context, p model.ParsedResponse) (model.MappedResponse, Exchange, error) {
	ex := newExchange(m.client, m.prompt.System)
	user, err := m.Render(p)
	if err != nil {
		return model.MappedResponse{}, ex, err
	}
	ex.User = user

	resp, err := ex.complete(ctx, m.client, types.StageMapping, llm.Request{
		System:      m.prompt.System,
		User:        user,
		Temperature: mapTemperature,
		MaxTokens:   mapMaxTokens,
	})
	if err != nil {
		return model.MappedResponse{}, ex, err
	}
	obj, err := ex.object(resp.Text)
	if err != nil {
		return model.MappedResponse{}, ex, err
	}
	return m.read(obj), ex, nil
}

func (m *Mapper) read(obj map[string]any) model.MappedResponse {
	keys := m.competency.DimensionKeys()
	out := model.MappedResponse{
		Competency: m.competency.ID,
		Evidence:   make(map[string]model.Evidence, len(keys)),
		Dimensions: keys,
	}
	for _, k := range keys {
		child := extract.Child(obj, k)
		quotes := extract.Strings(child, "znalezione_fragmenty")
		if len(quotes) > MaxQuotes {
			quotes = quotes[:MaxQuotes]
		}
		out.Evidence[k] = model.Evidence{
			Present: extract.Bool(child, "czy_obecny"),
			Quotes:  quotes,
			Notes:   strings.TrimSpace(extract.String(child, "notatki")),
		}
	}
	return out
}

// EvidenceSummary is the per-dimension overview of a mapping.
type EvidenceSummary struct {
	Present    bool   `json:"obecny"`
	QuoteCount int    `json:"liczba_cytatow"`
	Notes      string `json:"notatki"`
}

// Summarize returns the evidence overview keyed by dimension.
func Summarize(m model.MappedResponse) map[string]EvidenceSummary {
	out := make(map[string]EvidenceSummary, len(m.Evidence))
	for k, ev := range m.Evidence {
		out[k] = EvidenceSummary{Present: ev.Present, QuoteCount: len(ev.Quotes), Notes: ev.Notes}
	}
	return out
}

// CountPresent counts dimensions flagged present.
func CountPresent(m model.MappedResponse) int {
	n := 0
	for _, ev := range m.Evidence {
		if ev.Present {
			n++
		}
	}
	return n
}
