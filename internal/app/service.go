// Package service wires rubric, prompt and model configuration into the
// assessment pipeline and exposes it to the HTTP, MCP and batch frontends.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	storage "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/storage"
	"github.com/katarzynaochnikdu/LEM-V1/internal/config"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

// ErrNotStarted is returned by operations that need a started Service.
var ErrNotStarted = errors.New("service: not started")

// Service owns the runtime configuration stores and the orchestrator.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store        storage.Storage
	rubrics      *rubric.Registry
	prompts      *prompts.Manager
	models       *llm.Runtime
	pricing      *pricing.Table
	orchestrator *pipeline.Orchestrator
	results      repository.Store
	scheduler    *cron.Cron

	// Injected replacements
	llmBuilder llm.Builder

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStorage replaces the blob store built from configuration.
func WithStorage(st storage.Storage) Option {
	return func(s *Service) { s.store = st }
}

// WithResultStore replaces the result sink built from configuration.
func WithResultStore(r repository.Store) Option {
	return func(s *Service) { s.results = r }
}

// WithLLMBuilder replaces the provider client constructor.
func WithLLMBuilder(b llm.Builder) Option {
	return func(s *Service) { s.llmBuilder = b }
}

// New constructs a Service. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{
		cfg:    cfg,
		logger: logger.NamedOrNop("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds every component and, when configured, schedules reloads.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting assessment service...")

	if s.store == nil {
		st, err := storage.New(ctx, storageConfig(cfg))
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		s.store = st
	}

	rubrics, err := rubric.New(ctx, s.store, rubric.WithLogger(s.logger.Named("rubric")))
	if err != nil {
		return fmt.Errorf("rubric registry: %w", err)
	}
	s.rubrics = rubrics

	pm, err := prompts.NewManager(ctx, s.store, prompts.WithLogger(s.logger.Named("prompts")))
	if err != nil {
		return fmt.Errorf("prompt store: %w", err)
	}
	if err := pm.Seed(ctx); err != nil {
		return fmt.Errorf("seeding prompts: %w", err)
	}
	s.prompts = pm

	ropts := []llm.RuntimeOption{llm.WithRuntimeLogger(s.logger.Named("llm"))}
	if s.llmBuilder != nil {
		ropts = append(ropts, llm.WithBuilder(s.llmBuilder))
	}
	initial, base := llmSettings(cfg)
	models, err := llm.NewRuntime(ctx, initial, base, ropts...)
	if err != nil {
		return fmt.Errorf("llm runtime: %w", err)
	}
	s.models = models

	s.pricing = pricing.New(priceTable(cfg.Pricing),
		pricing.WithEstimatedTokens(cfg.EstimatedInputTokens, cfg.EstimatedOutputTokens))

	factory := pipeline.NewFactory(s.rubrics, s.prompts, s.models, s.logger.Named("pipeline"))
	s.orchestrator = pipeline.NewOrchestrator(factory,
		pipeline.WithPricing(s.pricing),
		pipeline.WithTimeout(cfg.RequestTimeout),
		pipeline.WithLogger(s.logger.Named("pipeline")),
	)

	if s.results == nil {
		results, err := openResults(ctx, cfg)
		if err != nil {
			_ = s.models.Close()
			return fmt.Errorf("result store: %w", err)
		}
		s.results = results
	}

	if spec := strings.TrimSpace(cfg.ReloadSchedule); spec != "" {
		if err := s.scheduleReload(spec); err != nil {
			_ = s.models.Close()
			return err
		}
	}

	s.started = true
	s.logger.Info(ctx, "assessment service started",
		logger.String("llm_provider", initial.Provider),
		logger.String("llm_model", initial.Model),
		logger.String("storage", cfg.StorageType),
		logger.String("sink", cfg.SinkType),
		logger.String("reload_schedule", cfg.ReloadSchedule),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping assessment service...")

	if s.scheduler != nil {
		<-s.scheduler.Stop().Done()
		s.scheduler = nil
	}
	if err := s.results.Close(); err != nil {
		s.logger.Warn(ctx, "closing result store failed", logger.Error(err))
	}
	if err := s.models.Close(); err != nil {
		s.logger.Warn(ctx, "closing llm client failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "assessment service stopped")
}

// Assess runs one assessment and persists its record whenever the run got
// past configuration.
func (s *Service) Assess(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	orch, results, err := s.runtime()
	if err != nil {
		return nil, err
	}
	res, runErr := orch.Run(ctx, req)
	if res == nil {
		return nil, runErr
	}
	if _, err := results.Save(ctx, repository.NewRecord(res.Assessment, res.State, runErr)); err != nil {
		s.logger.Error(ctx, "saving assessment failed",
			logger.String("assessment_id", res.Assessment.ID),
			logger.Error(err))
	}
	return res, runErr
}

// Run lets the Service act as a worker.Assessor.
func (s *Service) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	orch, _, err := s.runtime()
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, req)
}

// Reload re-reads rubric and prompt records from storage.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	return errors.Join(s.rubrics.Reload(ctx), s.prompts.Reload(ctx))
}

func (s *Service) runtime() (*pipeline.Orchestrator, repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.orchestrator, s.results, nil
}

// scheduleReload starts a cron job that calls Reload. Specs use the standard
// five fields.
func (s *Service) scheduleReload(spec string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(spec, func() {
		ctx := context.Background()
		if err := errors.Join(s.rubrics.Reload(ctx), s.prompts.Reload(ctx)); err != nil {
			s.logger.Warn(ctx, "scheduled reload failed", logger.Error(err))
			return
		}
		metrics.RecordConfigChange("reload")
		s.logger.Debug(ctx, "scheduled reload completed")
	})
	if err != nil {
		return fmt.Errorf("%w: reload_schedule %q: %w", config.ErrInvalidConfig, spec, err)
	}
	c.Start()
	s.scheduler = c
	return nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// Rubrics returns the rubric registry.
func (s *Service) Rubrics() *rubric.Registry { return s.rubrics }

// Prompts returns the prompt version store.
func (s *Service) Prompts() *prompts.Manager { return s.prompts }

// Models returns the LLM runtime selection.
func (s *Service) Models() *llm.Runtime { return s.models }

// Pricing returns the price table.
func (s *Service) Pricing() *pricing.Table { return s.pricing }

// Orchestrator returns the pipeline orchestrator, also used for diagnostics.
func (s *Service) Orchestrator() *pipeline.Orchestrator { return s.orchestrator }

// Results returns the result sink.
func (s *Service) Results() repository.Store { return s.results }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
		"storage": s.cfg.StorageType,
		"sink":    s.cfg.SinkType,
	}
	if !s.started {
		return stats
	}
	stats["llm"] = s.models.Info()
	stats["competencies"] = len(s.rubrics.Snapshot().All())
	if st, err := s.results.Stats(ctx); err == nil {
		stats["assessments"] = st.Count
	}
	return stats
}
