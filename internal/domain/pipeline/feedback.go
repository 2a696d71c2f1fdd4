package pipeline

import (
	"context"
	"fmt"
	"strings"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	extract "github.com/katarzynaochnikdu/LEM-V1/internal/domain/extract"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Word-count bounds of a well-formed feedback.
const (
	summaryMinWords        = 50
	summaryMaxWords        = 150
	recommendationMinWords = 10
	recommendationMaxWords = 50
)

// FeedbackGenerator writes developmental feedback for a scoring result.
type FeedbackGenerator struct {
	client     llm.Client
	prompt     prompts.PromptVersion
	competency *rubric.Competency
}

// NewFeedbackGenerator builds a FeedbackGenerator.
func NewFeedbackGenerator(client llm.Client, prompt prompts.PromptVersion, c *rubric.Competency) *FeedbackGenerator {
	return &FeedbackGenerator{client: client, prompt: prompt, competency: c}
}

func (f *FeedbackGenerator) name(key string) string {
	if d, ok := f.competency.Dimension(key); ok {
		return d.Name
	}
	return key
}

func (f *FeedbackGenerator) order(res model.ScoringResult) []string {
	if len(res.Dimensions) > 0 {
		return res.Dimensions
	}
	return f.competency.DimensionKeys()
}

// FormatDimensionScores renders one line per scored dimension.
func (f *FeedbackGenerator) FormatDimensionScores(res model.ScoringResult) string {
	lines := make([]string, 0, len(res.Scores))
	for _, k := range f.order(res) {
		ds, ok := res.Scores[k]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %.2f/1.0 (waga: %.0f%%, punkty: %.3f)",
			f.name(k), ds.Score, ds.Weight*100, ds.Points))
	}
	return strings.Join(lines, "\n")
}

// FormatEvidence renders quotes per dimension, or a no-evidence marker.
func (f *FeedbackGenerator) FormatEvidence(res model.ScoringResult) string {
	var lines []string
	for _, k := range f.order(res) {
		ev, ok := res.Evidence[k]
		if !ok {
			continue
		}
		name := f.name(k)
		if !ev.HasQuotes() {
			lines = append(lines, "\n"+name+": "+noEvidence)
			continue
		}
		lines = append(lines, "\n"+name+":")
		for i, q := range ev.Quotes {
			lines = append(lines, fmt.Sprintf("  %d. \"%s\"", i+1, q))
		}
		if ev.Notes != "" {
			lines = append(lines, "  Notatka: "+ev.Notes)
		}
	}
	return strings.Join(lines, "\n")
}

// Render fills the feedback template for res.
func (f *FeedbackGenerator) Render(res model.ScoringResult) (string, error) {
	return f.prompt.Render(map[string]string{
		"score":            decimal(res.FinalScore),
		"level":            res.Level.Label,
		"dimension_scores": f.FormatDimensionScores(res),
		"evidence":         f.FormatEvidence(res),
	})
}

// Generate asks the model for feedback. Missing keys become empty values.
func (f *FeedbackGenerator) Generate(ctx context.Context, res model.ScoringResult) (model.Feedback, Exchange, error) {
	ex := newExchange(f.client, f.prompt.System)
	user, err := f.Render(res)
	if err != nil {
		return model.Feedback{}, ex, err
	}
	ex.User = user

	resp, err := ex.complete(ctx, f.client, types.StageFeedback, llm.Request{
		System:      f.prompt.System,
		User:        user,
		Temperature: feedbackTemperature,
		MaxTokens:   feedbackMaxTokens,
	})
	if err != nil {
		return model.Feedback{}, ex, err
	}
	obj, err := ex.object(resp.Text)
	if err != nil {
		return model.Feedback{}, ex, err
	}
	return model.Feedback{
		Summary:          strings.TrimSpace(extract.String(obj, "summary")),
		Recommendation:   strings.TrimSpace(extract.String(obj, "recommendation")),
		Strengths:        extract.Strings(obj, "mocne_strony"),
		DevelopmentAreas: extract.Strings(obj, "obszary_rozwoju"),
	}, ex, nil
}

// QualityCheck is the advisory shape check used by calibration.
func QualityCheck(fb model.Feedback) model.FeedbackQuality {
	q := model.FeedbackQuality{
		SummaryLength:        model.WordCount(fb.Summary),
		RecommendationLength: model.WordCount(fb.Recommendation),
		NumStrengths:         len(fb.Strengths),
		NumDevelopmentAreas:  len(fb.DevelopmentAreas),
	}
	q.IsValid = q.SummaryLength >= summaryMinWords && q.SummaryLength <= summaryMaxWords &&
		q.RecommendationLength >= recommendationMinWords && q.RecommendationLength <= recommendationMaxWords &&
		q.NumStrengths >= 1 && q.NumDevelopmentAreas >= 1
	return q
}
