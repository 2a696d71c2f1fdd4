package pipeline_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	storage "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/storage"
	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

type reply struct {
	text  string
	err   error
	block bool
}

// scripted answers by module, recognised from the system prompt. The last
// reply queued for a module repeats.
type scripted struct {
	mu      sync.Mutex
	replies map[types.Module][]reply
	calls   map[types.Module]int
	users   map[types.Module][]string
}

func newScripted() *scripted {
	return &scripted{
		replies: map[types.Module][]reply{},
		calls:   map[types.Module]int{},
		users:   map[types.Module][]string{},
	}
}

func (s *scripted) on(m types.Module, rs ...reply) *scripted {
	s.replies[m] = append(s.replies[m], rs...)
	return s
}

func (s *scripted) count(m types.Module) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[m]
}

func moduleOf(system string) types.Module {
	for _, m := range types.Modules() {
		if prompts.SystemPrompt(m) == system {
			return m
		}
	}
	return ""
}

func (s *scripted) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	mod := moduleOf(req.System)
	s.mu.Lock()
	s.calls[mod]++
	s.users[mod] = append(s.users[mod], req.User)
	q := s.replies[mod]
	var r reply
	switch {
	case len(q) == 0:
		r = reply{err: fmt.Errorf("%w: nothing scripted for %s", llm.ErrTransport, mod)}
	case len(q) == 1:
		r = q[0]
	default:
		r = q[0]
		s.replies[mod] = q[1:]
	}
	s.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return llm.Response{}, fmt.Errorf("%w: %w", llm.ErrTransport, ctx.Err())
	}
	if r.err != nil {
		return llm.Response{}, r.err
	}
	return llm.Response{
		Text:     r.text,
		Usage:    model.Usage{InputTokens: 100, CachedInputTokens: 20, OutputTokens: 10},
		Model:    "fake-model",
		Provider: "fake",
	}, nil
}

func (s *scripted) Provider() string { return "fake" }
func (s *scripted) Model() string    { return "fake-model" }

type staticModel struct{ a *llm.Active }

func (m staticModel) Get() *llm.Active { return m.a }

type env struct {
	client  *scripted
	rubrics *rubric.Registry
	prompts *prompts.Manager
	orch    *pipeline.Orchestrator
}

func newEnv(t *testing.T, client *scripted, opts ...pipeline.Option) *env {
	t.Helper()
	ctx := context.Background()
	reg, err := rubric.New(ctx, nil)
	if err != nil {
		t.Fatalf("rubric: %v", err)
	}
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	pm, err := prompts.NewManager(ctx, store)
	if err != nil {
		t.Fatalf("prompts: %v", err)
	}
	if err := pm.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	models := staticModel{a: &llm.Active{Settings: llm.Settings{Provider: "fake", Model: "fake-model"}, Client: client}}
	f := pipeline.NewFactory(reg, pm, models, nil)
	return &env{client: client, rubrics: reg, prompts: pm, orch: pipeline.NewOrchestrator(f, opts...)}
}

func priceTable() *pricing.Table {
	return pricing.New(map[string]pricing.Price{
		"fake-model": {InputPer1M: 1.0, CachedInputPer1M: 0.5, OutputPer1M: 2.0},
	})
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func sectionsReply(c *rubric.Competency) string {
	out := map[string]string{}
	for _, k := range c.SectionKeys() {
		out[k] = "Sekcja " + k + ": najpierw ustaliłem cel rozmowy, potem uzgodniliśmy termin i sposób raportowania."
	}
	return "Oto wynik:\n```json\n" + mustJSON(out) + "\n```"
}

func evidenceReply(c *rubric.Competency, present bool, quotes int) string {
	out := map[string]any{}
	for _, k := range c.DimensionKeys() {
		qs := []string{}
		for i := 0; i < quotes; i++ {
			qs = append(qs, fmt.Sprintf("cytat %d dla %s", i+1, k))
		}
		out[k] = map[string]any{"czy_obecny": present, "znalezione_fragmenty": qs, "notatki": ""}
	}
	return mustJSON(out)
}

func feedbackReply() string {
	return mustJSON(map[string]any{
		"summary":         strings.TrimSpace(strings.Repeat("Menedżer jasno określa cel i oczekiwany rezultat zadania. ", 8)),
		"recommendation":  "Warto regularnie sprawdzać zrozumienie zadania przez pracownika i ustalać punkty kontrolne.",
		"mocne_strony":    []string{"Jasna intencja", "Konkretny termin"},
		"obszary_rozwoju": []string{"Monitorowanie postępów"},
	})
}

const narrative = "Przygotowałem się do rozmowy z Anną, ustaliłem cel i kryteria sukcesu. " +
	"Wyjaśniłem, dlaczego to zadanie jest ważne, i uzgodniliśmy termin oraz punkty kontrolne."

func promptsSave(content string) prompts.SaveRequest {
	return prompts.SaveRequest{
		Module:     types.ModuleMap,
		Version:    "v2",
		Content:    content,
		Competency: types.Delegowanie,
		Activate:   true,
	}
}

func prompts0() prompts.PromptVersion {
	return prompts.PromptVersion{Version: "v1", Content: "{x}"}
}
