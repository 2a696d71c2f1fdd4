// Package model contains the typed records passed between pipeline stages
// and handed to persistence.
package model

import (
	"strings"
	"time"

	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// ParsedResponse is the Stage 1 output: the narrative split into the
// competency's named sections.
type ParsedResponse struct {
	Competency types.Competency `json:"competency"`
	RawText    string           `json:"raw_text"`
	// Sections maps section key to text. Keys absent from the model output are
	// present with an empty value.
	Sections map[string]string `json:"sections"`
	// Keys keeps the rubric's section order.
	Keys []string `json:"section_keys"`
}

// Section returns the text for key, or "".
func (p ParsedResponse) Section(key string) string {
	return p.Sections[key]
}

// Evidence is the Stage 2 output for one dimension.
type Evidence struct {
	Present bool     `json:"present"`
	Quotes  []string `json:"quotes"`
	Notes   string   `json:"notes,omitempty"`
}

// HasQuotes reports whether the dimension can be scored by the model.
func (e Evidence) HasQuotes() bool {
	return e.Present && len(e.Quotes) > 0
}

// MappedResponse is the Stage 2 output: evidence for every rubric dimension.
type MappedResponse struct {
	Competency types.Competency    `json:"competency"`
	Evidence   map[string]Evidence `json:"evidence"`
	// Dimensions keeps the rubric's dimension order.
	Dimensions []string `json:"dimensions"`
}

// DimensionScore is the Stage 3 result for one dimension.
type DimensionScore struct {
	Dimension     string  `json:"dimension"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Weight        float64 `json:"weight"`
	Points        float64 `json:"points"`
	Justification string  `json:"justification"`
	// Fallback is set when the score came from the quote-count heuristic.
	Fallback bool `json:"fallback,omitempty"`
}

// ScoringResult is the Stage 3 output.
type ScoringResult struct {
	Competency types.Competency          `json:"competency"`
	FinalScore float64                   `json:"final_score"`
	Level      types.Level               `json:"level"`
	Scores     map[string]DimensionScore `json:"dimension_scores"`
	Dimensions []string                  `json:"dimensions"`
	Evidence   map[string]Evidence       `json:"evidence"`
}

// Feedback is the Stage 4 output.
type Feedback struct {
	Summary          string   `json:"summary"`
	Recommendation   string   `json:"recommendation"`
	Strengths        []string `json:"strengths"`
	DevelopmentAreas []string `json:"development_areas"`
}

// FeedbackQuality is the advisory shape check of a Feedback.
type FeedbackQuality struct {
	SummaryLength        int  `json:"summary_length"`
	RecommendationLength int  `json:"recommendation_length"`
	NumStrengths         int  `json:"num_strengths"`
	NumDevelopmentAreas  int  `json:"num_development_areas"`
	IsValid              bool `json:"is_valid"`
}

// Usage counts tokens spent by one or more model calls.
type Usage struct {
	InputTokens       int `json:"input_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
	OutputTokens      int `json:"output_tokens"`
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.CachedInputTokens += o.CachedInputTokens
	u.OutputTokens += o.OutputTokens
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StageTrace records one stage of an assessment run.
type StageTrace struct {
	Stage         types.Stage   `json:"stage"`
	PromptVersion string        `json:"prompt_version,omitempty"`
	Provider      string        `json:"provider,omitempty"`
	Model         string        `json:"model,omitempty"`
	Latency       time.Duration `json:"latency_ns"`
	Calls         int           `json:"calls"`
	Usage         Usage         `json:"usage"`
	Input         any           `json:"input,omitempty"`
	Output        any           `json:"output,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Assessment is the single structured record emitted per run.
type Assessment struct {
	ID            string           `json:"assessment_id"`
	ParticipantID string           `json:"participant_id"`
	CaseID        string           `json:"case_id"`
	Competency    types.Competency `json:"competency"`
	CreatedAt     time.Time        `json:"timestamp"`
	ResponseText  string           `json:"response_text"`
	Provider      string           `json:"provider,omitempty"`
	Model         string           `json:"model,omitempty"`

	Parsed   *ParsedResponse `json:"parsed,omitempty"`
	Mapped   *MappedResponse `json:"mapped,omitempty"`
	Scoring  *ScoringResult  `json:"scoring,omitempty"`
	Feedback *Feedback       `json:"feedback,omitempty"`

	Usage   Usage        `json:"usage"`
	CostUSD *float64     `json:"cost_usd,omitempty"`
	Trace   []StageTrace `json:"trace,omitempty"`
}

// Quotes returns the per-dimension quote map of a scored assessment.
func (a *Assessment) Quotes() map[string][]string {
	out := make(map[string][]string)
	if a.Scoring == nil {
		return out
	}
	for _, dim := range a.Scoring.Dimensions {
		ev := a.Scoring.Evidence[dim]
		quotes := make([]string, len(ev.Quotes))
		copy(quotes, ev.Quotes)
		out[dim] = quotes
	}
	return out
}

// DimensionScores returns dimension id to quality score.
func (a *Assessment) DimensionScores() map[string]float64 {
	out := make(map[string]float64)
	if a.Scoring == nil {
		return out
	}
	for id, s := range a.Scoring.Scores {
		out[id] = s.Score
	}
	return out
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
