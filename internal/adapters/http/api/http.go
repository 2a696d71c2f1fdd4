// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	// Assess runs the full pipeline and persists the outcome.
	Assess(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)

	Rubrics() *rubric.Registry
	Prompts() *prompts.Manager
	Models() *llm.Runtime
	Pricing() *pricing.Table
	Orchestrator() *pipeline.Orchestrator
	Results() repository.Store
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	assessHandler     *AssessHandler
	competencyHandler *CompetencyHandler
	promptHandler     *PromptHandler
	settingsHandler   *SettingsHandler
	diagnosticHandler *DiagnosticHandler
	resultsHandler    *ResultsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, version string) *Server {
	log := logger.NamedOrNop("api")
	return &Server{
		healthHandler:     NewHealthHandler(version, deps.Models),
		assessHandler:     NewAssessHandler(deps, log),
		competencyHandler: NewCompetencyHandler(deps.Rubrics),
		promptHandler:     NewPromptHandler(deps.Prompts),
		settingsHandler:   NewSettingsHandler(deps.Models, deps.Pricing),
		diagnosticHandler: NewDiagnosticHandler(deps.Orchestrator),
		resultsHandler:    NewResultsHandler(deps.Results),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /health", "health", s.healthHandler.HandleHealth)
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleMetrics)

	route("POST /assess", "assess", s.assessHandler.HandleAssess)

	route("GET /api/competencies", "competencies", s.competencyHandler.HandleList)
	route("GET /api/competencies/{id}", "competency", s.competencyHandler.HandleGet)
	route("PUT /api/competencies/{id}", "competency_edit", s.competencyHandler.HandleEdit)
	route("GET /api/competencies/{id}/dimensions", "dimensions", s.competencyHandler.HandleDimensions)
	route("GET /weights", "weights", s.competencyHandler.HandleWeights)
	route("PUT /api/weights/{competency}", "weights_edit", s.competencyHandler.HandleSetWeights)

	route("GET /api/prompts", "prompts", s.promptHandler.HandleModules)
	route("GET /api/prompts/{module}", "prompt_versions", s.promptHandler.HandleVersions)
	route("GET /api/prompts/{module}/{version}", "prompt_version", s.promptHandler.HandleVersion)
	route("POST /api/prompts/{module}", "prompt_save", s.promptHandler.HandleSave)
	route("PUT /api/prompts/{module}/activate", "prompt_activate", s.promptHandler.HandleActivate)
	route("GET /api/prompts-active", "prompts_active", s.promptHandler.HandleActive)

	route("GET /api/llm/config", "llm_config", s.settingsHandler.HandleGetLLM)
	route("PUT /api/llm/config", "llm_config_edit", s.settingsHandler.HandleSetLLM)
	route("GET /pricing", "pricing", s.settingsHandler.HandlePricing)
	route("GET /estimate-cost", "estimate_cost", s.settingsHandler.HandleEstimate)

	route("POST /api/diagnostic/parse", "diagnostic_parse", s.diagnosticHandler.HandleParse)
	route("POST /api/diagnostic/map", "diagnostic_map", s.diagnosticHandler.HandleMap)
	route("POST /api/diagnostic/score", "diagnostic_score", s.diagnosticHandler.HandleScore)
	route("POST /api/diagnostic/feedback", "diagnostic_feedback", s.diagnosticHandler.HandleFeedback)

	route("GET /api/db/assessments", "db_assessments", s.resultsHandler.HandleList)
	route("GET /api/db/assessments/{id}", "db_assessment", s.resultsHandler.HandleGet)
	route("GET /api/db/stats", "db_stats", s.resultsHandler.HandleStats)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	tagError(w, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
