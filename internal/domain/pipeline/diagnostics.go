package pipeline

import (
	"context"
	"time"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

// Diagnostic is the outcome of running a single stage on caller input.
type Diagnostic struct {
	Module         types.Module     `json:"module"`
	Competency     types.Competency `json:"competency"`
	Output         any              `json:"output"`
	Prompt         Exchange         `json:"prompt"`
	PromptVersion  string           `json:"active_version"`
	PromptTemplate string           `json:"active_template"`
	Latency        time.Duration    `json:"latency_ns"`
}

// ParseDiagnostic is the structuring output with its validation.
type ParseDiagnostic struct {
	Parsed  model.ParsedResponse `json:"parsed"`
	Valid   bool                 `json:"valid"`
	Missing []string             `json:"missing_sections"`
}

// MapDiagnostic is the mapping output with its summary.
type MapDiagnostic struct {
	Mapped       model.MappedResponse       `json:"mapped"`
	Summary      map[string]EvidenceSummary `json:"summary"`
	PresentCount int                        `json:"present_count"`
}

// FeedbackDiagnostic is the feedback output with its quality check.
type FeedbackDiagnostic struct {
	Feedback model.Feedback        `json:"feedback"`
	Quality  model.FeedbackQuality `json:"quality"`
}

func diagnose[T any](ctx context.Context, o *Orchestrator, c types.Competency, stage types.Stage,
	fn func(context.Context, *Bundle) (T, Exchange, error),
) (*Diagnostic, error) {
	b, err := o.factory.New(ctx, c)
	if err != nil {
		return nil, err
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	mod := stage.Module()
	start := time.Now()
	out, ex, err := fn(ctx, b)
	elapsed := time.Since(start)
	metrics.RecordStageLatency(string(stage), float64(elapsed.Milliseconds()))
	if err != nil {
		se := &StageError{Stage: stage, Err: err}
		metrics.RecordStageFailure(string(stage), se.Kind())
		return nil, se
	}
	return &Diagnostic{
		Module:         mod,
		Competency:     b.Competency.ID,
		Output:         out,
		Prompt:         ex,
		PromptVersion:  b.Prompts[mod].Version,
		PromptTemplate: b.Prompts[mod].Content,
		Latency:        elapsed,
	}, nil
}

// RunParse structures text and reports which sections are insufficient.
func (o *Orchestrator) RunParse(ctx context.Context, c types.Competency, text string) (*Diagnostic, error) {
	return diagnose(ctx, o, c, types.StageStructuring, func(ctx context.Context, b *Bundle) (ParseDiagnostic, Exchange, error) {
		parsed, ex, err := b.Structurer.Parse(ctx, text)
		if err != nil {
			return ParseDiagnostic{}, ex, err
		}
		ok, missing := b.Structurer.Validate(parsed)
		return ParseDiagnostic{Parsed: parsed, Valid: ok, Missing: missing}, ex, nil
	})
}

// RunMap extracts evidence from caller-supplied sections. Keys default to
// the competency's section order.
func (o *Orchestrator) RunMap(ctx context.Context, c types.Competency, parsed model.ParsedResponse) (*Diagnostic, error) {
	return diagnose(ctx, o, c, types.StageMapping, func(ctx context.Context, b *Bundle) (MapDiagnostic, Exchange, error) {
		if len(parsed.Keys) == 0 {
			parsed.Keys = b.Competency.SectionKeys()
		}
		parsed.Competency = b.Competency.ID
		mapped, ex, err := b.Mapper.Map(ctx, parsed)
		if err != nil {
			return MapDiagnostic{}, ex, err
		}
		return MapDiagnostic{Mapped: mapped, Summary: Summarize(mapped), PresentCount: CountPresent(mapped)}, ex, nil
	})
}

// RunScore scores caller-supplied evidence.
func (o *Orchestrator) RunScore(ctx context.Context, c types.Competency, mapped model.MappedResponse) (*Diagnostic, error) {
	return diagnose(ctx, o, c, types.StageScoring, func(ctx context.Context, b *Bundle) (model.ScoringResult, Exchange, error) {
		mapped.Competency = b.Competency.ID
		return b.Scorer.Score(ctx, mapped)
	})
}

// RunFeedback writes feedback for a caller-supplied scoring result. A
// missing level is derived from the final score.
func (o *Orchestrator) RunFeedback(ctx context.Context, c types.Competency, res model.ScoringResult) (*Diagnostic, error) {
	return diagnose(ctx, o, c, types.StageFeedback, func(ctx context.Context, b *Bundle) (FeedbackDiagnostic, Exchange, error) {
		res.Competency = b.Competency.ID
		if res.Level.Label == "" {
			res.Level = types.LevelFor(res.FinalScore)
		}
		fb, ex, err := b.Feedback.Generate(ctx, res)
		if err != nil {
			return FeedbackDiagnostic{}, ex, err
		}
		return FeedbackDiagnostic{Feedback: fb, Quality: QualityCheck(fb)}, ex, nil
	})
}
