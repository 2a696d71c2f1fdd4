package api

import (
	"errors"
	"net/http"
	"time"

	model "github.com/katarzynaochnikdu/LEM-V1/internal/domain/model"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
)

// AssessHandler handles POST /assess.
type AssessHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewAssessHandler creates a new assess handler.
func NewAssessHandler(deps Dependencies, log logger.Logger) *AssessHandler {
	return &AssessHandler{deps: deps, log: log}
}

type assessRequest struct {
	ParticipantID string `json:"participant_id" validate:"required,max=200"`
	ResponseText  string `json:"response_text" validate:"required,narrative"`
	Competency    string `json:"competency" validate:"omitempty,competency"`
	CaseID        string `json:"case_id" validate:"omitempty,max=200"`
}

type assessResponse struct {
	AssessmentID    string               `json:"assessment_id"`
	ParticipantID   string               `json:"participant_id"`
	CaseID          string               `json:"case_id"`
	Timestamp       time.Time            `json:"timestamp"`
	Competency      types.Competency     `json:"competency"`
	Score           float64              `json:"score"`
	Level           string               `json:"level"`
	LevelCode       string               `json:"level_code"`
	Evidence        map[string][]string  `json:"evidence"`
	Feedback        *model.Feedback      `json:"feedback"`
	DimensionScores map[string]float64   `json:"dimension_scores"`
	ScoringDetails  *model.ScoringResult `json:"scoring_details"`
	Usage           model.Usage          `json:"usage"`
	CostUSD         *float64             `json:"cost_usd,omitempty"`
	Provider        string               `json:"provider,omitempty"`
	Model           string               `json:"model,omitempty"`
}

type rejectionResponse struct {
	errorResponse
	Competency      types.Competency `json:"competency"`
	MissingSections []string         `json:"missing_sections"`
}

type stageFailureResponse struct {
	errorResponse
	Stage        types.Stage `json:"stage"`
	Kind         string      `json:"kind"`
	AssessmentID string      `json:"assessment_id,omitempty"`
}

// HandleAssess runs one narrative through the pipeline.
func (h *AssessHandler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := decode(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	comp, err := types.ResolveCompetency(req.Competency)
	if err != nil {
		writeFailure(w, WrapKind(ErrBadRequest, err))
		return
	}

	res, err := h.deps.Assess(r.Context(), pipeline.Request{
		ParticipantID: req.ParticipantID,
		CaseID:        req.CaseID,
		Competency:    comp,
		ResponseText:  req.ResponseText,
	})
	if err != nil {
		h.writeRunFailure(w, r, res, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssessResponse(res.Assessment))
}

func (h *AssessHandler) writeRunFailure(w http.ResponseWriter, r *http.Request, res *pipeline.Result, err error) {
	status, code := statusFor(err)
	tagError(w, code)

	var rejected *pipeline.RejectedError
	if errors.As(err, &rejected) {
		writeJSON(w, status, rejectionResponse{
			errorResponse:   errorResponse{Code: code, Message: err.Error()},
			Competency:      rejected.Competency,
			MissingSections: rejected.Missing,
		})
		return
	}

	var stage *pipeline.StageError
	if errors.As(err, &stage) {
		resp := stageFailureResponse{
			errorResponse: errorResponse{Code: code, Message: err.Error()},
			Stage:         stage.Stage,
			Kind:          stage.Kind(),
		}
		if res != nil && res.Assessment != nil {
			resp.AssessmentID = res.Assessment.ID
		}
		h.log.Warn(r.Context(), "assessment failed",
			logger.String("stage", string(stage.Stage)),
			logger.String("kind", stage.Kind()),
			logger.Error(err))
		writeJSON(w, status, resp)
		return
	}

	if status >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "assessment error", logger.Error(err))
	}
	writeError(w, status, code, err)
}

func toAssessResponse(a *model.Assessment) assessResponse {
	resp := assessResponse{
		AssessmentID:    a.ID,
		ParticipantID:   a.ParticipantID,
		CaseID:          a.CaseID,
		Timestamp:       a.CreatedAt,
		Competency:      a.Competency,
		Evidence:        a.Quotes(),
		Feedback:        a.Feedback,
		DimensionScores: a.DimensionScores(),
		ScoringDetails:  a.Scoring,
		Usage:           a.Usage,
		CostUSD:         a.CostUSD,
		Provider:        a.Provider,
		Model:           a.Model,
	}
	if a.Scoring != nil {
		resp.Score = a.Scoring.FinalScore
		resp.Level = a.Scoring.Level.Label
		resp.LevelCode = a.Scoring.Level.Code
	}
	return resp
}
