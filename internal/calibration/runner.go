// Package calibration scores a directory of narratives in bulk and compares
// the results with human assessor scores.
package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	queue "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/mq/queue"
	worker "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/mq/worker"
	dedupe "github.com/katarzynaochnikdu/LEM-V1/internal/domain/dedupe"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Runner executes calibration runs. Fingerprints of assessed narratives are
// kept across runs of the same Runner; failed ones are forgotten so a later
// run retries them.
type Runner struct {
	assessor worker.Assessor
	sink     worker.Sink
	notifier Notifier
	seen     dedupe.Deduper
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink persists every assessment the run produces.
func WithSink(s worker.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithNotifier sends the summary once the run finishes.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithDeduper replaces the fingerprint tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(r *Runner) { r.seen = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner around assessor.
func NewRunner(assessor worker.Assessor, opts ...Option) *Runner {
	r := &Runner{
		assessor: assessor,
		seen:     dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0)),
		log:      logger.NamedOrNop("calibration"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a complete calibration run and returns its summary. The
// results file is written even when some narratives fail.
func (r *Runner) Run(ctx context.Context, cfg *Config) (*Summary, []Result, error) {
	if err := r.validate(cfg); err != nil {
		return nil, nil, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	summary := &Summary{
		RunID:      uuid.NewString(),
		Competency: cfg.Competency,
		Levels:     map[string]int{},
		StartTime:  r.now(),
	}
	log := r.log.With(logger.String("run_id", summary.RunID))

	log.Info(ctx, "starting calibration run",
		logger.String("input_dir", cfg.InputDir),
		logger.String("competency", string(cfg.Competency)),
		logger.Int("workers", cfg.Workers),
		logger.Int("queue_size", cfg.QueueSize))

	// Step 1: Load narratives
	narratives, err := LoadNarratives(cfg.InputDir)
	if err != nil {
		return nil, nil, err
	}

	// Step 2: Skip repeated content
	jobs, results := r.plan(ctx, cfg, narratives)

	// Step 3: Assess through the worker pool
	assessed, err := r.assess(ctx, cfg, jobs)
	if err != nil {
		return nil, nil, err
	}
	results = append(results, assessed...)
	sort.Slice(results, func(i, j int) bool { return results[i].ResponseID < results[j].ResponseID })

	// Step 4: Save results
	summary.OutputFile = outputPath(cfg.OutputFile, summary.StartTime)
	if err := writeResults(summary.OutputFile, results); err != nil {
		return nil, nil, err
	}

	summarize(summary, results)

	// Step 5: Compare with assessors
	if cfg.AssessorCSV != "" {
		scores, err := LoadAssessorCSV(cfg.AssessorCSV)
		if err != nil {
			return nil, nil, err
		}
		cmp, err := Compare(results, scores)
		if err != nil && !errors.Is(err, ErrNoOverlap) {
			return nil, nil, err
		}
		if err != nil {
			log.Warn(ctx, "no assessor scores matched", logger.Int("assessor_rows", len(scores)))
		}
		summary.Comparison = cmp
	}

	summary.EndTime = r.now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)

	// Step 6: Notify
	notifier := r.notifier
	if notifier == nil && cfg.SlackWebhookURL != "" {
		notifier = NewSlackNotifier(cfg.SlackWebhookURL)
	}
	if notifier != nil {
		if err := notifier.Notify(ctx, summary); err != nil {
			log.Warn(ctx, "summary notification failed", logger.Error(err))
		}
	}

	log.Info(ctx, "calibration run completed",
		logger.Int("total", summary.Total),
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("rejected", summary.Rejected),
		logger.Int("failed", summary.Failed),
		logger.Int("duplicates", summary.Duplicates),
		logger.Int64("fingerprints", r.seen.Size()),
		logger.String("output", summary.OutputFile),
		logger.Duration("duration", summary.Duration))
	return summary, results, nil
}

func (r *Runner) validate(cfg *Config) error {
	if cfg == nil || strings.TrimSpace(cfg.InputDir) == "" {
		return fmt.Errorf("%w: input directory is required", ErrInvalidConfig)
	}
	if cfg.Competency == "" {
		cfg.Competency = types.DefaultCompetency
	}
	c, err := types.ResolveCompetency(string(cfg.Competency))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Competency = c
	if cfg.Workers < 0 || cfg.QueueSize < 0 {
		return fmt.Errorf("%w: workers and queue size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// plan turns narratives into jobs. Narratives whose fingerprint was already
// seen become duplicate results instead.
func (r *Runner) plan(ctx context.Context, cfg *Config, narratives []Narrative) ([]queue.Job, []Result) {
	firstSeen := make(map[string]string, len(narratives))
	jobs := make([]queue.Job, 0, len(narratives))
	var dups []Result
	for _, n := range narratives {
		if r.seen.SeenAndRecord(ctx, n.Fingerprint) {
			dups = append(dups, Result{
				ResponseID:  n.ID,
				Status:      StatusDuplicate,
				DuplicateOf: firstSeen[n.Fingerprint],
			})
			r.log.Debug(ctx, "skipping duplicate narrative",
				logger.String("response_id", n.ID),
				logger.String("duplicate_of", firstSeen[n.Fingerprint]))
			continue
		}
		firstSeen[n.Fingerprint] = n.ID
		jobs = append(jobs, queue.Job{
			ID:            n.ID,
			ParticipantID: n.ID,
			CaseID:        CaseID,
			Competency:    cfg.Competency,
			Text:          n.Text,
			Fingerprint:   n.Fingerprint,
			EnqueuedAt:    r.now(),
		})
	}
	return jobs, dups
}

// assess feeds jobs through a queue and worker pool and collects one Result
// per job.
func (r *Runner) assess(ctx context.Context, cfg *Config, jobs []queue.Job) ([]Result, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	var qopts []queue.Option
	if cfg.QueueSize > 0 {
		qopts = append(qopts, queue.WithCapacity(cfg.QueueSize))
	}
	q := queue.NewInMemoryQueue(qopts...)

	col := &collector{seen: r.seen}
	wopts := []worker.Option{worker.WithReporter(col), worker.WithLogger(r.log.Named("worker"))}
	if r.sink != nil {
		wopts = append(wopts, worker.WithSink(r.sink))
	}
	pool := worker.NewPool(cfg.Workers, q, r.assessor, wopts...)
	pool.Start(ctx)

	for _, j := range jobs {
		if err := q.Put(ctx, j); err != nil {
			_ = pool.Shutdown(context.Background()) //nolint:contextcheck // ctx is already done
			return nil, fmt.Errorf("enqueue %s: %w", j.ID, err)
		}
	}
	if err := q.Close(); err != nil {
		return nil, err
	}
	if err := pool.Wait(ctx); err != nil {
		_ = pool.Shutdown(context.Background()) //nolint:contextcheck // ctx is already done
		return nil, fmt.Errorf("waiting for workers: %w", err)
	}
	return col.results(), nil
}

// collector gathers worker outcomes.
type collector struct {
	mu   sync.Mutex
	out  []Result
	seen dedupe.Deduper
}

func (c *collector) Report(ctx context.Context, o worker.Outcome) { //nolint:gocritic // hugeParam: Outcome mirrors the worker API
	res := toResult(o)
	if res.Status == StatusError {
		c.seen.Unrecord(ctx, o.Job.Fingerprint)
	}
	c.mu.Lock()
	c.out = append(c.out, res)
	c.mu.Unlock()
}

func (c *collector) results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.out...)
}

func toResult(o worker.Outcome) Result { //nolint:gocritic // hugeParam: Outcome mirrors the worker API
	res := Result{ResponseID: o.Job.ID}
	if o.Result == nil {
		res.Status = StatusError
		if o.Err != nil {
			res.Error = o.Err.Error()
		}
		return res
	}

	a := o.Result.Assessment
	res.AssessmentID = a.ID
	res.CostUSD = a.CostUSD
	switch o.Result.State {
	case types.StageDone:
		res.Status = StatusSuccess
		score := a.Scoring.FinalScore
		res.Score = &score
		res.Level = a.Scoring.Level.Code
		res.DimensionScores = a.DimensionScores()
		if a.Feedback != nil {
			q := pipeline.QualityCheck(*a.Feedback)
			res.FeedbackQuality = &q
		}
	case types.StageRejected:
		res.Status = StatusRejected
	default:
		res.Status = StatusError
	}
	if o.Err != nil {
		res.Error = o.Err.Error()
	}
	return res
}

func summarize(s *Summary, results []Result) {
	var sum float64
	for _, r := range results {
		s.Total++
		if r.CostUSD != nil {
			s.CostUSD += *r.CostUSD
		}
		switch r.Status {
		case StatusSuccess:
			s.Succeeded++
			sum += *r.Score
			s.Levels[r.Level]++
		case StatusRejected:
			s.Rejected++
		case StatusDuplicate:
			s.Duplicates++
		default:
			s.Failed++
		}
	}
	if s.Succeeded > 0 {
		mean := sum / float64(s.Succeeded)
		s.MeanScore = &mean
	}
}

func outputPath(name string, start time.Time) string {
	if name != "" {
		return name
	}
	return "calibration_results_" + start.Format("20060102_150405") + ".json"
}

func writeResults(path string, results []Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
