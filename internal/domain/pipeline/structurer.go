package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	extract "github.com/katarzynaochnikdu/LEM-V1/internal/domain/extract"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// MinSectionLength is the trimmed length a section needs to count as present.
const MinSectionLength = 20

// MinNarrativeLength is the trimmed length a narrative needs before it is
// worth sending through the pipeline.
const MinNarrativeLength = 50

// Structurer splits a narrative into the competency's sections.
type Structurer struct {
	client     llm.Client
	prompt     prompts.PromptVersion
	competency *rubric.Competency
}

// NewStructurer builds a Structurer.
func NewStructurer(client llm.Client, prompt prompts.PromptVersion, c *rubric.Competency) *Structurer {
	return &Structurer{client: client, prompt: prompt, competency: c}
}

// Render fills the parse template for text.
func (s *Structurer) Render(text string) (string, error) {
	var b strings.Builder
	for i, sec := range s.competency.Sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", sec.Key, sec.Label)
	}
	return s.prompt.Render(map[string]string{
		"response_text": text,
		"sekcje":        b.String(),
	})
}

// Parse asks the model for the sections of text. Keys the model leaves out
// become empty sections.
func (s *Structurer) Parse(ctx context.Context, text string) (model.ParsedResponse, Exchange, error) {
	ex := newExchange(s.client, s.prompt.System)
	user, err := s.Render(text)
	if err != nil {
		return model.ParsedResponse{}, ex, err
	}
	ex.User = user

	resp, err := ex.complete(ctx, s.client, types.StageStructuring, llm.Request{
		System:      s.prompt.System,
		User:        user,
		Temperature: parseTemperature,
		MaxTokens:   parseMaxTokens,
	})
	if err != nil {
		return model.ParsedResponse{}, ex, err
	}
	obj, err := ex.object(resp.Text)
	if err != nil {
		return model.ParsedResponse{}, ex, err
	}

	keys := s.competency.SectionKeys()
	parsed := model.ParsedResponse{
		Competency: s.competency.ID,
		RawText:    text,
		Sections:   make(map[string]string, len(keys)),
		Keys:       keys,
	}
	for _, k := range keys {
		parsed.Sections[k] = extract.String(obj, k)
	}
	return parsed, ex, nil
}

// Validate lists the sections shorter than MinSectionLength after trimming,
// in section order.
func (s *Structurer) Validate(p model.ParsedResponse) (bool, []string) {
	var missing []string
	for _, k := range s.competency.SectionKeys() {
		if utf8.RuneCountInString(strings.TrimSpace(p.Sections[k])) < MinSectionLength {
			missing = append(missing, k)
		}
	}
	return len(missing) == 0, missing
}
