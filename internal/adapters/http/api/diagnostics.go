package api

import (
	"net/http"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// DiagnosticHandler runs single pipeline stages for prompt tuning.
type DiagnosticHandler struct {
	orchestrator func() *pipeline.Orchestrator
}

// NewDiagnosticHandler creates a new diagnostic handler.
func NewDiagnosticHandler(o func() *pipeline.Orchestrator) *DiagnosticHandler {
	return &DiagnosticHandler{orchestrator: o}
}

type parseRequest struct {
	ResponseText string `json:"response_text" validate:"required"`
	Competency   string `json:"competency" validate:"omitempty,competency"`
}

type mapRequest struct {
	Sections     map[string]string `json:"sections" validate:"required,min=1"`
	SectionKeys  []string          `json:"section_keys"`
	ResponseText string            `json:"response_text"`
	Competency   string            `json:"competency" validate:"omitempty,competency"`
}

type scoreRequest struct {
	Evidence   map[string]model.Evidence `json:"evidence" validate:"required"`
	Competency string                    `json:"competency" validate:"omitempty,competency"`
}

type feedbackRequest struct {
	Scoring    model.ScoringResult `json:"scoring"`
	Competency string              `json:"competency" validate:"omitempty,competency"`
}

func (h *DiagnosticHandler) run(w http.ResponseWriter, r *http.Request, req any, competency func() string,
	call func(*pipeline.Orchestrator, types.Competency) (*pipeline.Diagnostic, error)) {
	o := h.orchestrator()
	if o == nil {
		writeFailure(w, ErrUnavailable)
		return
	}
	if err := decode(r, req); err != nil {
		writeFailure(w, err)
		return
	}
	comp, err := types.ResolveCompetency(competency())
	if err != nil {
		writeFailure(w, err)
		return
	}
	d, err := call(o, comp)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleParse handles POST /api/diagnostic/parse.
func (h *DiagnosticHandler) HandleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	h.run(w, r, &req, func() string { return req.Competency },
		func(o *pipeline.Orchestrator, c types.Competency) (*pipeline.Diagnostic, error) {
			return o.RunParse(r.Context(), c, req.ResponseText)
		})
}

// HandleMap handles POST /api/diagnostic/map.
func (h *DiagnosticHandler) HandleMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	h.run(w, r, &req, func() string { return req.Competency },
		func(o *pipeline.Orchestrator, c types.Competency) (*pipeline.Diagnostic, error) {
			return o.RunMap(r.Context(), c, model.ParsedResponse{
				RawText:  req.ResponseText,
				Sections: req.Sections,
				Keys:     req.SectionKeys,
			})
		})
}

// HandleScore handles POST /api/diagnostic/score.
func (h *DiagnosticHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	h.run(w, r, &req, func() string { return req.Competency },
		func(o *pipeline.Orchestrator, c types.Competency) (*pipeline.Diagnostic, error) {
			return o.RunScore(r.Context(), c, model.MappedResponse{Evidence: req.Evidence})
		})
}

// HandleFeedback handles POST /api/diagnostic/feedback.
func (h *DiagnosticHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	h.run(w, r, &req, func() string { return req.Competency },
		func(o *pipeline.Orchestrator, c types.Competency) (*pipeline.Diagnostic, error) {
			return o.RunFeedback(r.Context(), c, req.Scoring)
		})
}
