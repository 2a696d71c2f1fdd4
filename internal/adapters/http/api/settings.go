package api

import (
	"net/http"
	"strconv"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
)

// SettingsHandler serves the runtime model selection and pricing.
type SettingsHandler struct {
	models  func() *llm.Runtime
	pricing func() *pricing.Table
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(models func() *llm.Runtime, table func() *pricing.Table) *SettingsHandler {
	return &SettingsHandler{models: models, pricing: table}
}

type llmConfigRequest struct {
	Provider string `json:"provider" validate:"required,oneof=openai anthropic gemini"`
	Model    string `json:"model" validate:"required,max=128"`
	APIKey   string `json:"api_key"`
}

type estimatedTokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type pricingResponse struct {
	Models          map[string]pricing.Price `json:"models"`
	EstimatedTokens estimatedTokens          `json:"estimated_tokens_per_evaluation"`
	ActiveModel     string                   `json:"active_model,omitempty"`
}

func (h *SettingsHandler) runtime() (*llm.Runtime, error) {
	rt := h.models()
	if rt == nil {
		return nil, ErrUnavailable
	}
	return rt, nil
}

func (h *SettingsHandler) table() (*pricing.Table, error) {
	t := h.pricing()
	if t == nil {
		return nil, ErrUnavailable
	}
	return t, nil
}

// HandleGetLLM handles GET /api/llm/config.
func (h *SettingsHandler) HandleGetLLM(w http.ResponseWriter, _ *http.Request) {
	rt, err := h.runtime()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt.Info())
}

// HandleSetLLM handles PUT /api/llm/config.
func (h *SettingsHandler) HandleSetLLM(w http.ResponseWriter, r *http.Request) {
	rt, err := h.runtime()
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req llmConfigRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	info, err := rt.Set(r.Context(), req.Provider, req.Model, req.APIKey)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandlePricing handles GET /pricing.
func (h *SettingsHandler) HandlePricing(w http.ResponseWriter, _ *http.Request) {
	t, err := h.table()
	if err != nil {
		writeFailure(w, err)
		return
	}
	in, out := t.EstimatedTokens()
	resp := pricingResponse{
		Models:          t.List(),
		EstimatedTokens: estimatedTokens{Input: in, Output: out},
	}
	if rt := h.models(); rt != nil {
		resp.ActiveModel = rt.Info().Model
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleEstimate handles GET /estimate-cost. The model defaults to the
// active one; token counts default to the table's estimates.
func (h *SettingsHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	t, err := h.table()
	if err != nil {
		writeFailure(w, err)
		return
	}
	q := r.URL.Query()
	model := q.Get("model")
	if model == "" {
		if rt := h.models(); rt != nil {
			model = rt.Info().Model
		}
	}
	count, err := intParam(q.Get("count"), 1)
	if err != nil {
		writeFailure(w, NewKind(ErrBadRequest, "count must be an integer"))
		return
	}
	input, err := intParam(q.Get("input_tokens"), 0)
	if err != nil {
		writeFailure(w, NewKind(ErrBadRequest, "input_tokens must be an integer"))
		return
	}
	output, err := intParam(q.Get("output_tokens"), 0)
	if err != nil {
		writeFailure(w, NewKind(ErrBadRequest, "output_tokens must be an integer"))
		return
	}
	ratio := 0.0
	if v := q.Get("cached_input_ratio"); v != "" {
		if ratio, err = strconv.ParseFloat(v, 64); err != nil {
			writeFailure(w, NewKind(ErrBadRequest, "cached_input_ratio must be a number"))
			return
		}
	}
	est, err := t.EstimateEvaluation(model, count, ratio, input, output)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
