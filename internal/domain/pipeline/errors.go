package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	extract "github.com/katarzynaochnikdu/LEM-V1/internal/domain/extract"
	prompts "github.com/katarzynaochnikdu/LEM-V1/internal/domain/prompts"
	types "github.com/katarzynaochnikdu/LEM-V1/internal/domain/types"
)

var (
	// ErrRejected matches a RejectedError.
	ErrRejected = errors.New("pipeline: response rejected")
	// ErrStageFailed matches a StageError.
	ErrStageFailed = errors.New("pipeline: stage failed")
)

// RejectedError reports sections that were missing or too short after
// structuring. No further model calls are made for a rejected response.
type RejectedError struct {
	Competency types.Competency
	Missing    []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("pipeline: response incomplete for %s, missing sections: %s",
		e.Competency, strings.Join(e.Missing, ", "))
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected || target == types.ErrValidation
}

// StageError names the stage an assessment failed in.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrStageFailed }

// Kind classifies the underlying cause for metrics and HTTP mapping.
func (e *StageError) Kind() string { return failureKind(e.Err) }

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, llm.ErrTransport):
		return "transport"
	case errors.Is(err, llm.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, extract.ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, prompts.ErrTemplate):
		return "template"
	default:
		return "internal"
	}
}
