package api

import (
	"context"
	"errors"
	"net/http"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	repository "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/repository"
	pipeline "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pipeline"
	pricing "github.com/katarzynaochnikdu/LEM-V1/internal/domain/pricing"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	rubric "github.com/katarzynaochnikdu/LEM-V1/internal/domain/rubric"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("service not ready")
)

// kindError tags a handler failure with a sentinel kind.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.kind.Error()
	}
	return e.err.Error()
}

func (e *kindError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// NewKind returns an error of kind carrying msg.
func NewKind(kind error, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// WrapKind tags err with kind.
func WrapKind(kind, err error) error {
	return &kindError{kind: kind, err: err}
}

// statusFor maps a domain error onto an HTTP status and an error code.
func statusFor(err error) (int, string) {
	var stage *pipeline.StageError
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, pipeline.ErrRejected):
		return http.StatusBadRequest, "incomplete_response"
	case errors.As(err, &stage):
		if stage.Kind() == "timeout" {
			return http.StatusGatewayTimeout, "stage_timeout"
		}
		return http.StatusBadGateway, "stage_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, types.ErrUnknownCompetency):
		return http.StatusNotFound, "unknown_competency"
	case errors.Is(err, prompts.ErrInvalidModule):
		return http.StatusNotFound, "unknown_module"
	case errors.Is(err, prompts.ErrContentMissing):
		return http.StatusInternalServerError, "prompt_content_missing"
	case errors.Is(err, prompts.ErrUnknownVersion),
		errors.Is(err, prompts.ErrNotFound):
		return http.StatusNotFound, "prompt_not_found"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "assessment_not_found"
	case errors.Is(err, pricing.ErrUnknownModel):
		return http.StatusNotFound, "unknown_model"
	case errors.Is(err, rubric.ErrValidation):
		return http.StatusUnprocessableEntity, "invalid_rubric"
	case errors.Is(err, prompts.ErrInvalidName), errors.Is(err, prompts.ErrTemplate):
		return http.StatusBadRequest, "invalid_prompt"
	case errors.Is(err, pricing.ErrInvalidTokens), errors.Is(err, pricing.ErrInvalidEstimate):
		return http.StatusBadRequest, "invalid_estimate"
	case errors.Is(err, llm.ErrUnknownProvider), errors.Is(err, llm.ErrInvalidSettings):
		return http.StatusBadRequest, "invalid_llm_config"
	case errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "invalid_limit"
	case errors.Is(err, llm.ErrTransport):
		return http.StatusBadGateway, "llm_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
