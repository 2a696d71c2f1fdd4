package pipeline

import (
	"context"
	"fmt"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// RubricSource publishes rubric snapshots.
type RubricSource interface {
	Snapshot() *rubric.Snapshot
}

// PromptSource publishes prompt snapshots.
type PromptSource interface {
	Snapshot() *prompts.Snapshot
}

// ModelSource publishes the active model selection.
type ModelSource interface {
	Get() *llm.Active
}

// Bundle is the set of stages for one competency, bound to the rubric,
// prompts and model that were current when it was built.
type Bundle struct {
	Competency *rubric.Competency
	Client     llm.Client
	Prompts    map[types.Module]prompts.PromptVersion

	Structurer *Structurer
	Mapper     *Mapper
	Scorer     *Scorer
	Feedback   *FeedbackGenerator
}

// PromptVersion returns the version name used for module.
func (b *Bundle) PromptVersion(m types.Module) string {
	return b.Prompts[m].Version
}

// Factory builds Bundles.
type Factory struct {
	rubrics RubricSource
	prompts PromptSource
	models  ModelSource
	log     logger.Logger
}

// NewFactory creates a Factory over the three runtime sources.
func NewFactory(r RubricSource, p PromptSource, m ModelSource, log logger.Logger) *Factory {
	if log == nil {
		log = logger.NamedOrNop("pipeline")
	}
	return &Factory{rubrics: r, prompts: p, models: m, log: log}
}

// New takes one snapshot of each source and builds the stages for c.
// Later edits do not affect the returned Bundle.
func (f *Factory) New(_ context.Context, c types.Competency) (*Bundle, error) {
	comp, err := f.rubrics.Snapshot().Competency(c)
	if err != nil {
		return nil, err
	}
	active := f.models.Get()
	if active == nil || active.Client == nil {
		return nil, fmt.Errorf("%w: no model selected", llm.ErrInvalidSettings)
	}

	snap := f.prompts.Snapshot()
	set := make(map[types.Module]prompts.PromptVersion, len(types.Modules()))
	for _, m := range types.Modules() {
		pv, err := snap.Resolve(m, c)
		if err != nil {
			return nil, err
		}
		set[m] = pv
	}

	client := active.Client
	return &Bundle{
		Competency: comp,
		Client:     client,
		Prompts:    set,
		Structurer: NewStructurer(client, set[types.ModuleParse], comp),
		Mapper:     NewMapper(client, set[types.ModuleMap], comp),
		Scorer:     NewScorer(client, set[types.ModuleScore], comp, f.log),
		Feedback:   NewFeedbackGenerator(client, set[types.ModuleFeedback], comp),
	}, nil
}
