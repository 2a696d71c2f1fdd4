package pipeline

import (
	"context"
	"fmt"
	"strings"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	scoring "github.com/katarzynaochnikdu/LEM-V1/internal/domain/scoring"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

const (
	noEvidence  = "BRAK DOWODÓW"
	skippedNote = "(wymiar nieobecny, pominięty, ocena = 0.0)"
)

// Scorer rates each dimension 0-1 and aggregates to the 0-4 scale.
type Scorer struct {
	client     llm.Client
	prompt     prompts.PromptVersion
	competency *rubric.Competency
	log        logger.Logger
}

// NewScorer builds a Scorer.
func NewScorer(client llm.Client, prompt prompts.PromptVersion, c *rubric.Competency, log logger.Logger) *Scorer {
	if log == nil {
		log = logger.NamedOrNop("pipeline")
	}
	return &Scorer{client: client, prompt: prompt, competency: c, log: log}
}

// FormatLevels lists a dimension's rubric anchors in ascending order.
func FormatLevels(d rubric.Dimension) string {
	levels := d.SortedLevels()
	lines := make([]string, 0, len(levels))
	for _, l := range levels {
		lines = append(lines, fmt.Sprintf("Poziom %s: %s", decimal(l.Level), strings.TrimSpace(l.Description)))
	}
	return strings.Join(lines, "\n")
}

// FormatEvidence renders quotes and notes for the scoring prompt.
func FormatEvidence(ev model.Evidence) string {
	if len(ev.Quotes) == 0 {
		return noEvidence
	}
	lines := make([]string, 0, len(ev.Quotes)+1)
	for i, q := range ev.Quotes {
		lines = append(lines, fmt.Sprintf("Cytat %d: \"%s\"", i+1, q))
	}
	if ev.Notes != "" {
		lines = append(lines, "\nNotatka: "+ev.Notes)
	}
	return strings.Join(lines, "\n")
}

// Render fills the score template for one dimension.
func (s *Scorer) Render(d rubric.Dimension, ev model.Evidence) (string, error) {
	return s.prompt.Render(map[string]string{
		"wymiar_nazwa": d.Name,
		"wymiar_opis":  strings.TrimSpace(d.Description),
		"poziomy":      FormatLevels(d),
		"dowody":       FormatEvidence(ev),
	})
}

// Score rates every rubric dimension of mapped. Dimensions without quotes
// score 0 without a model call. A failed call or an answer without a number
// falls back to the quote-count heuristic. Only template errors fail.
func (s *Scorer) Score(ctx context.Context, mapped model.MappedResponse) (model.ScoringResult, Exchange, error) {
	ex := newExchange(s.client, s.prompt.System)
	ex.PerDimension = make(map[string]string, len(s.competency.Dimensions))

	dims := make([]scoring.Dimension, 0, len(s.competency.Dimensions))
	for _, d := range s.competency.Dimensions {
		ev := mapped.Evidence[d.Key]
		sd := scoring.Dimension{Key: d.Key, Name: d.Name, Weight: d.Weight, Evidence: ev}
		if !ev.HasQuotes() {
			ex.PerDimension[d.Key] = skippedNote
			dims = append(dims, sd)
			continue
		}

		user, err := s.Render(d, ev)
		if err != nil {
			return model.ScoringResult{}, ex, err
		}
		ex.PerDimension[d.Key] = user
		sd.Score, sd.Fallback = s.scoreOne(ctx, &ex, d.Key, user, ev)
		dims = append(dims, sd)
	}

	return scoring.Aggregate(s.competency.ID, dims), ex, nil
}

func (s *Scorer) scoreOne(ctx context.Context, ex *Exchange, key, user string, ev model.Evidence) (float64, bool) {
	resp, err := ex.complete(ctx, s.client, types.StageScoring, llm.Request{
		System:      s.prompt.System,
		User:        user,
		Temperature: scoreTemperature,
		MaxTokens:   scoreMaxTokens,
	})
	if err == nil {
		if v, ok := scoring.ParseScore(resp.Text); ok {
			return v, false
		}
	}

	fb := scoring.Fallback(ev)
	metrics.RecordScoreFallback(string(s.competency.ID))
	fields := []logger.Field{
		logger.String("competency", string(s.competency.ID)),
		logger.String("dimension", key),
		logger.Float64("fallback", fb),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	} else {
		fields = append(fields, logger.String("answer", resp.Text))
	}
	s.log.Warn(ctx, "dimension scored by fallback", fields...)
	return fb, true
}
