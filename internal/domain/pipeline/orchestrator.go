package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

// DefaultCaseID is used when a request names no case.
const DefaultCaseID = "lem_v1"

// CostEstimator prices token usage for a model.
type CostEstimator interface {
	Cost(model string, input, output, cachedInput int) (float64, error)
}

// Request is one assessment.
type Request struct {
	ParticipantID string
	CaseID        string
	Competency    types.Competency
	ResponseText  string
}

// Result is the outcome of Run. State is Done, Rejected or Failed.
type Result struct {
	State      types.Stage
	Assessment *model.Assessment
	Trace      []model.StageTrace
}

// Orchestrator runs the four stages in order for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	factory *Factory
	pricing CostEstimator
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPricing attaches a cost estimator. Without one, cost is omitted.
func WithPricing(p CostEstimator) Option {
	return func(o *Orchestrator) { o.pricing = p }
}

// WithTimeout bounds a whole Run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides assessment id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(f *Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory: f,
		log:     logger.NamedOrNop("pipeline"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Factory returns the bundle factory.
func (o *Orchestrator) Factory() *Factory { return o.factory }

// run carries one assessment through the state machine.
type run struct {
	o      *Orchestrator
	bundle *Bundle
	res    *Result
}

// Run assesses req. Configuration faults (unknown competency, missing
// prompt, no model) return an error with a nil Result. Otherwise the Result
// is always returned; a RejectedError or StageError accompanies the
// Rejected and Failed states.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Competency == "" {
		req.Competency = types.DefaultCompetency
	}
	if strings.TrimSpace(req.CaseID) == "" {
		req.CaseID = DefaultCaseID
	}
	bundle, err := o.factory.New(ctx, req.Competency)
	if err != nil {
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	metrics.IncInflight()
	defer metrics.DecInflight()

	r := &run{
		o:      o,
		bundle: bundle,
		res: &Result{
			State: types.StageStructuring,
			Assessment: &model.Assessment{
				ID:            o.newID(),
				ParticipantID: req.ParticipantID,
				CaseID:        req.CaseID,
				Competency:    bundle.Competency.ID,
				CreatedAt:     o.now().UTC(),
				ResponseText:  req.ResponseText,
				Provider:      bundle.Client.Provider(),
				Model:         bundle.Client.Model(),
			},
		},
	}
	start := time.Now()
	err = r.execute(ctx, req.ResponseText)
	r.finish(ctx, err, time.Since(start))
	return r.res, err
}

func (r *run) execute(ctx context.Context, text string) error {
	b := r.bundle
	a := r.res.Assessment

	parsed, err := step(r, types.StageStructuring, func() (model.ParsedResponse, Exchange, error) {
		return b.Structurer.Parse(ctx, text)
	})
	if err != nil {
		return err
	}
	a.Parsed = &parsed
	if ok, missing := b.Structurer.Validate(parsed); !ok {
		return &RejectedError{Competency: b.Competency.ID, Missing: missing}
	}

	mapped, err := step(r, types.StageMapping, func() (model.MappedResponse, Exchange, error) {
		return b.Mapper.Map(ctx, parsed)
	})
	if err != nil {
		return err
	}
	a.Mapped = &mapped

	scored, err := step(r, types.StageScoring, func() (model.ScoringResult, Exchange, error) {
		return b.Scorer.Score(ctx, mapped)
	})
	if err != nil {
		return err
	}
	a.Scoring = &scored

	fb, err := step(r, types.StageFeedback, func() (model.Feedback, Exchange, error) {
		return b.Feedback.Generate(ctx, scored)
	})
	if err != nil {
		return err
	}
	a.Feedback = &fb
	return nil
}

// step runs one stage, appends its trace entry and turns a failure into a
// StageError.
func step[T any](r *run, stage types.Stage, fn func() (T, Exchange, error)) (T, error) {
	r.res.State = stage
	start := time.Now()
	out, ex, err := fn()
	elapsed := time.Since(start)
	metrics.RecordStageLatency(string(stage), float64(elapsed.Milliseconds()))

	r.res.Assessment.Usage.Add(ex.Usage)
	tr := model.StageTrace{
		Stage:         stage,
		PromptVersion: r.bundle.PromptVersion(stage.Module()),
		Provider:      ex.Provider,
		Model:         ex.Model,
		Latency:       elapsed,
		Calls:         ex.Calls,
		Usage:         ex.Usage,
		Input:         ex,
	}
	if err != nil {
		tr.Error = err.Error()
		r.res.Trace = append(r.res.Trace, tr)
		se := &StageError{Stage: stage, Err: err}
		metrics.RecordStageFailure(string(stage), se.Kind())
		var zero T
		return zero, se
	}
	tr.Output = out
	r.res.Trace = append(r.res.Trace, tr)
	return out, nil
}

func (r *run) finish(ctx context.Context, err error, elapsed time.Duration) {
	a := r.res.Assessment
	a.Trace = r.res.Trace

	var rejected *RejectedError
	switch {
	case err == nil:
		r.res.State = types.StageDone
	case errors.As(err, &rejected):
		r.res.State = types.StageRejected
	default:
		r.res.State = types.StageFailed
	}

	if r.o.pricing != nil {
		cost, cerr := r.o.pricing.Cost(a.Model, a.Usage.InputTokens, a.Usage.OutputTokens, a.Usage.CachedInputTokens)
		if cerr == nil {
			a.CostUSD = &cost
			metrics.RecordAssessmentCost(cost)
		} else {
			r.o.log.Debug(ctx, "assessment cost omitted", logger.String("model", a.Model), logger.Error(cerr))
		}
	}

	metrics.RecordAssessment(string(a.Competency), string(r.res.State))
	fields := []logger.Field{
		logger.String("assessment_id", a.ID),
		logger.String("participant_id", a.ParticipantID),
		logger.String("competency", string(a.Competency)),
		logger.String("state", string(r.res.State)),
		logger.Int("tokens_in", a.Usage.InputTokens),
		logger.Int("tokens_out", a.Usage.OutputTokens),
		logger.Duration("elapsed", elapsed),
	}
	switch r.res.State {
	case types.StageDone:
		metrics.RecordFinalScore(string(a.Competency), a.Scoring.FinalScore)
		fields = append(fields,
			logger.Float64("score", a.Scoring.FinalScore),
			logger.String("level", a.Scoring.Level.Code))
		r.o.log.Info(ctx, "assessment completed", fields...)
	case types.StageRejected:
		fields = append(fields, logger.Any("missing_sections", rejected.Missing))
		r.o.log.Info(ctx, "assessment rejected", fields...)
	default:
		r.o.log.Error(ctx, "assessment failed", append(fields, logger.Error(err))...)
	}
}
